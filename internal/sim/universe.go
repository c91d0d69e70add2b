package sim

import (
	"strings"

	"github.com/atmx/classroom-exchange/internal/model"
)

// DefaultUniverse is the 87-ticker classroom universe.
var DefaultUniverse = []string{
	"AAPL", "MSFT", "NVDA", "AMZN", "GOOGL", "META", "TSLA", "AVGO", "ORCL", "CRM",
	"ADBE", "AMD", "INTC", "CSCO", "IBM", "QCOM", "TXN", "NOW", "INTU", "MU",
	"JPM", "BAC", "WFC", "GS", "MS", "C", "BLK", "SCHW", "AXP", "V",
	"MA", "PYPL", "WMT", "COST", "HD", "MCD", "NKE", "SBUX", "TGT", "LOW",
	"PG", "KO", "PEP", "CAT", "DE", "BA", "GE", "HON", "UPS", "LMT",
	"RTX", "MMM", "UNP", "XOM", "CVX", "COP", "SLB", "OXY", "EOG", "UNH",
	"JNJ", "LLY", "PFE", "MRK", "ABBV", "TMO", "ABT", "AMGN", "GILD", "NFLX",
	"DIS", "CMCSA", "T", "VZ", "TMUS", "GME", "AMC", "PLTR", "COIN", "HOOD",
	"RIVN", "LCID", "SOFI", "MARA", "RIOT", "BB", "DKNG",
}

// Reference supplies per-ticker reference data. A nil Reference, or a
// ticker it does not know, yields the Speculative sector and no company name.
type Reference interface {
	Lookup(ticker string) (sector, company string, ok bool)
}

var sectorLabels = map[string]model.Sector{
	"technology":             model.SectorTech,
	"information technology": model.SectorTech,
	"financial services":     model.SectorFinancials,
	"financial":              model.SectorFinancials,
	"financials":             model.SectorFinancials,
	"consumer cyclical":      model.SectorConsumer,
	"consumer defensive":     model.SectorConsumer,
	"consumer discretionary": model.SectorConsumer,
	"consumer staples":       model.SectorConsumer,
	"industrials":            model.SectorIndustrials,
	"energy":                 model.SectorEnergy,
	"healthcare":             model.SectorHealthcare,
	"communication services": model.SectorComm,
	"real estate":            model.SectorIndustrials,
	"basic materials":        model.SectorIndustrials,
	"materials":              model.SectorIndustrials,
	"utilities":              model.SectorIndustrials,
}

// NormalizeSector maps a free-form sector label onto a simulator bucket.
// Unknown labels fall into Speculative.
func NormalizeSector(raw string) model.Sector {
	if s, ok := sectorLabels[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return model.SectorSpeculative
}

func describe(ref Reference, ticker string) (model.Sector, string) {
	if ref == nil {
		return model.SectorSpeculative, ""
	}
	sector, company, ok := ref.Lookup(ticker)
	if !ok {
		return model.SectorSpeculative, ""
	}
	return NormalizeSector(sector), company
}
