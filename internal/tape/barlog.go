package tape

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/atmx/classroom-exchange/internal/fsutil"
	"github.com/atmx/classroom-exchange/internal/model"
)

// TimestampLayout is the bar and news timestamp format on disk.
const TimestampLayout = "2006-01-02 15:04:05"

var ErrMissingColumn = errors.New("tape: missing required column")

// BarColumns is the bar log header, in file order.
var BarColumns = []string{
	"timestamp", "date", "bar_index", "ticker", "sector", "regime", "macro_headline",
	"open", "high", "low", "close", "volume",
	"ret", "market_ret", "sector_ret", "shock_ret", "has_news",
}

// columns a bar log must carry to be read back
var requiredBarColumns = []string{"date", "ticker", "open", "high", "low", "close"}

// BarLog is the append-only bar CSV.
type BarLog struct {
	Path string
}

// Append writes bars at the end of the log, writing the header only when
// the file is new.
func (l BarLog) Append(bars []model.Bar) error {
	f, created, err := fsutil.OpenAppend(l.Path)
	if err != nil {
		return fmt.Errorf("open bar log: %w", err)
	}
	defer f.Close()
	if err := writeBars(f, bars, created); err != nil {
		return fmt.Errorf("append bar log: %w", err)
	}
	return f.Sync()
}

// Read loads every bar in the log. A missing file yields no bars.
func (l BarLog) Read() ([]model.Bar, error) {
	f, err := os.Open(l.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadBars(f)
}

func writeBars(w io.Writer, bars []model.Bar, header bool) error {
	cw := csv.NewWriter(w)
	if header {
		if err := cw.Write(BarColumns); err != nil {
			return err
		}
	}
	for _, b := range bars {
		if err := cw.Write(barRecord(b)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func barRecord(b model.Bar) []string {
	hasNews := "0"
	if b.HasNews {
		hasNews = "1"
	}
	return []string{
		b.Timestamp.Format(TimestampLayout),
		b.Date,
		strconv.Itoa(b.BarIndex),
		b.Ticker,
		string(b.Sector),
		string(b.Regime),
		b.MacroHeadline,
		ff(b.Open), ff(b.High), ff(b.Low), ff(b.Close),
		strconv.FormatInt(b.Volume, 10),
		ff(b.TotalReturn), ff(b.MarketReturn), ff(b.SectorReturn), ff(b.ShockReturn),
		hasNews,
	}
}

// ReadBars parses a bar CSV. Columns are located by header name; the
// required price columns must be present, the rest are optional.
func ReadBars(r io.Reader) ([]model.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, c := range requiredBarColumns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var bars []model.Bar
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return bars, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b, err := parseBar(idx, rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
}

func parseBar(idx map[string]int, rec []string) (model.Bar, error) {
	field := func(name string) string {
		if i, ok := idx[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}
	num := func(name string) (float64, error) {
		s := field(name)
		if s == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}

	b := model.Bar{
		Date:          field("date"),
		Ticker:        field("ticker"),
		Sector:        model.Sector(field("sector")),
		Regime:        model.Regime(field("regime")),
		MacroHeadline: field("macro_headline"),
		HasNews:       field("has_news") == "1" || field("has_news") == "true",
	}
	var err error
	if s := field("timestamp"); s != "" {
		if b.Timestamp, err = time.Parse(TimestampLayout, s); err != nil {
			return b, fmt.Errorf("timestamp: %w", err)
		}
	} else if b.Timestamp, err = time.Parse("2006-01-02", b.Date); err != nil {
		return b, fmt.Errorf("date: %w", err)
	}
	if s := field("bar_index"); s != "" {
		if b.BarIndex, err = strconv.Atoi(s); err != nil {
			return b, fmt.Errorf("bar_index: %w", err)
		}
	}
	if s := field("volume"); s != "" {
		if b.Volume, err = strconv.ParseInt(s, 10, 64); err != nil {
			return b, fmt.Errorf("volume: %w", err)
		}
	}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close},
		{"ret", &b.TotalReturn}, {"market_ret", &b.MarketReturn},
		{"sector_ret", &b.SectorReturn}, {"shock_ret", &b.ShockReturn},
	} {
		if *f.dst, err = num(f.name); err != nil {
			return b, err
		}
	}
	return b, nil
}
