// Package refdata loads the security master: per-ticker company name,
// sector, industry and country from a CSV export.
package refdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrNotFound      = errors.New("refdata: security master not found")
	ErrMissingColumn = errors.New("refdata: security master missing required columns")
)

var requiredColumns = []string{"symbol", "companyName", "industry", "sector", "country"}

// Security is one row of the master.
type Security struct {
	Symbol            string `json:"symbol"`
	CompanyName       string `json:"company_name"`
	Sector            string `json:"sector"`
	Industry          string `json:"industry"`
	Country           string `json:"country"`
	FullTimeEmployees int64  `json:"full_time_employees,omitempty"`
	Description       string `json:"description,omitempty"`
}

// Master indexes securities by upper-cased symbol. A nil *Master is valid
// and knows no tickers.
type Master struct {
	bySymbol map[string]Security
}

// LoadCSV reads the master from path. A missing file yields ErrNotFound so
// callers can fall back to running without reference data.
func LoadCSV(path string) (*Master, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads a master CSV. The header must carry symbol, companyName,
// industry, sector and country; description and fullTimeEmployees are
// optional.
func Parse(r io.Reader) (*Master, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	var missing []string
	for _, c := range requiredColumns {
		if _, ok := idx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	m := &Master{bySymbol: make(map[string]Security)}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return m, nil
		}
		if err != nil {
			return nil, err
		}
		field := func(name string) string {
			if i, ok := idx[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		sym := strings.ToUpper(field("symbol"))
		if sym == "" {
			continue
		}
		sec := Security{
			Symbol:      sym,
			CompanyName: field("companyName"),
			Sector:      orUnknown(field("sector")),
			Industry:    orUnknown(field("industry")),
			Country:     orUnknown(field("country")),
			Description: field("description"),
		}
		if v := field("fullTimeEmployees"); v != "" {
			// Exports sometimes write counts as floats ("1500.0").
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				sec.FullTimeEmployees = int64(n)
			}
		}
		m.bySymbol[sym] = sec
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// Get returns the security for symbol.
func (m *Master) Get(symbol string) (Security, bool) {
	if m == nil {
		return Security{}, false
	}
	sec, ok := m.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return sec, ok
}

// Lookup returns the raw sector label and company name for ticker.
func (m *Master) Lookup(ticker string) (sector, company string, ok bool) {
	sec, ok := m.Get(ticker)
	if !ok {
		return "", "", false
	}
	return sec.Sector, sec.CompanyName, true
}

// Len is the number of securities loaded.
func (m *Master) Len() int {
	if m == nil {
		return 0
	}
	return len(m.bySymbol)
}
