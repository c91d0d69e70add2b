// Package report derives positions, P&L and leaderboard views from team
// portfolios and the latest closes. Views are recomputed on every call and
// never stored as a source of truth.
package report

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/ledger"
)

// PositionRow is one held position of one team.
type PositionRow struct {
	Date          string          `json:"date"`
	Team          string          `json:"team"`
	Ticker        string          `json:"ticker"`
	Qty           int64           `json:"qty"`
	Close         decimal.Decimal `json:"close"`
	AvgCost       decimal.Decimal `json:"avg_cost"`
	MarketValue   decimal.Decimal `json:"market_value"`
	Weight        decimal.Decimal `json:"weight"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PnLRow is one team's performance summary.
type PnLRow struct {
	Date          string          `json:"date"`
	Team          string          `json:"team"`
	NAV           decimal.Decimal `json:"nav"`
	Cash          decimal.Decimal `json:"cash"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	TotalReturn   decimal.Decimal `json:"total_return"`
}

// BuildPositions lists every held position. Weight is market value over NAV
// and zero when NAV is not positive. Rows are sorted by team, then market
// value descending.
func BuildPositions(portfolios []*ledger.Portfolio, closes map[string]decimal.Decimal, date string) []PositionRow {
	var rows []PositionRow
	for _, p := range portfolios {
		nav := p.NAV(closes)
		for _, sym := range p.Tickers() {
			qty := p.Positions[sym]
			px := closes[sym]
			avg := p.AvgCost[sym]
			q := decimal.NewFromInt(qty)
			mv := px.Mul(q)

			w := decimal.Zero
			if nav.IsPositive() {
				w = mv.Div(nav)
			}
			rows = append(rows, PositionRow{
				Date:          date,
				Team:          p.Team,
				Ticker:        sym,
				Qty:           qty,
				Close:         px.Round(4),
				AvgCost:       avg.Round(4),
				MarketValue:   mv.Round(2),
				Weight:        w.Round(6),
				UnrealizedPnL: px.Sub(avg).Mul(q).Round(2),
			})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Team != rows[j].Team {
			return rows[i].Team < rows[j].Team
		}
		return rows[i].MarketValue.GreaterThan(rows[j].MarketValue)
	})
	return rows
}

// BuildPnL summarizes each team. Total P&L is NAV minus initialCash and
// total return is total P&L over initialCash. Rows are sorted by NAV
// descending, ties by team.
func BuildPnL(portfolios []*ledger.Portfolio, closes map[string]decimal.Decimal, date string, initialCash decimal.Decimal) []PnLRow {
	rows := make([]PnLRow, 0, len(portfolios))
	for _, p := range portfolios {
		nav := p.NAV(closes)
		total := nav.Sub(initialCash)
		ret := decimal.Zero
		if !initialCash.IsZero() {
			ret = total.Div(initialCash)
		}
		rows = append(rows, PnLRow{
			Date:          date,
			Team:          p.Team,
			NAV:           nav.Round(2),
			Cash:          p.Cash.Round(2),
			RealizedPnL:   p.RealizedPnL.Round(2),
			UnrealizedPnL: p.UnrealizedPnL(closes).Round(2),
			TotalPnL:      total.Round(2),
			TotalReturn:   ret.Round(6),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].NAV.Equal(rows[j].NAV) {
			return rows[i].NAV.GreaterThan(rows[j].NAV)
		}
		return rows[i].Team < rows[j].Team
	})
	return rows
}
