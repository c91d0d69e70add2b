package refdata

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `symbol,companyName,industry,sector,description,fullTimeEmployees,country
aapl,Apple Inc.,Consumer Electronics,Technology,Phones and more,164000,US
XOM,Exxon Mobil,Oil & Gas,Energy,,62000.0,US
GME,GameStop,Specialty Retail,,,,
`

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Len() != 3 {
		t.Fatalf("expected 3 securities, got %d", m.Len())
	}

	sec, ok := m.Get("AAPL")
	if !ok {
		t.Fatal("AAPL not found (symbols should be upper-cased)")
	}
	if sec.CompanyName != "Apple Inc." || sec.Sector != "Technology" || sec.FullTimeEmployees != 164000 {
		t.Errorf("unexpected AAPL: %+v", sec)
	}
	if sec, _ := m.Get("xom"); sec.FullTimeEmployees != 62000 {
		t.Errorf("float employee count not parsed: %+v", sec)
	}

	sector, company, ok := m.Lookup("GME")
	if !ok || sector != "Unknown" || company != "GameStop" {
		t.Errorf("GME lookup: %q %q %v", sector, company, ok)
	}
}

func TestParse_MissingColumns(t *testing.T) {
	_, err := Parse(strings.NewReader("symbol,companyName\nAAPL,Apple\n"))
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("expected ErrMissingColumn, got %v", err)
	}
	if !strings.Contains(err.Error(), "country, industry, sector") {
		t.Errorf("error should list missing columns: %v", err)
	}
}

func TestLoadCSV_Missing(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "ticker_info.csv"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestNilMaster(t *testing.T) {
	var m *Master
	if _, _, ok := m.Lookup("AAPL"); ok {
		t.Error("nil master should know no tickers")
	}
	if m.Len() != 0 {
		t.Error("nil master should be empty")
	}
}
