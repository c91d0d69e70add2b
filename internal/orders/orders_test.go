package orders

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/model"
)

func body(fields map[string]string) string {
	var b strings.Builder
	for _, k := range []string{FieldTeam, FieldSide, FieldTicker, FieldQty, FieldOrderType, FieldLimitPrice, FieldNotes} {
		v, ok := fields[k]
		if !ok {
			continue
		}
		b.WriteString("### " + k + "\n\n" + v + "\n\n")
	}
	return b.String()
}

func marketBody() map[string]string {
	return map[string]string{
		FieldTeam:       "alpha",
		FieldSide:       "buy",
		FieldTicker:     " aapl ",
		FieldQty:        "25",
		FieldOrderType:  "market",
		FieldLimitPrice: "_No response_",
		FieldNotes:      "first trade",
	}
}

func newParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser([]string{"AAPL", "MSFT", "XOM"})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSections(t *testing.T) {
	s := Sections("intro\r\n### Team name\r\n\r\nalpha\r\n### Side\r\nBUY\r\n")
	if s["Team name"] != "alpha" || s["Side"] != "BUY" {
		t.Errorf("unexpected sections: %#v", s)
	}
	if _, ok := s["intro"]; ok {
		t.Error("text before the first heading must be ignored")
	}
}

func TestParse_Market(t *testing.T) {
	po, err := newParser(t).Parse(body(marketBody()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	o := po.Order
	if o.Team != "alpha" || o.Ticker != "AAPL" || o.Side != model.SideBuy || o.Qty != 25 || o.Type != model.OrderMarket {
		t.Errorf("unexpected order: %+v", o)
	}
	if o.LimitPrice != nil {
		t.Errorf("MARKET order must ignore the typed limit price, got %s", o.LimitPrice)
	}
	if po.Notes != "first trade" {
		t.Errorf("expected notes, got %q", po.Notes)
	}
}

func TestParse_Limit(t *testing.T) {
	f := marketBody()
	f[FieldOrderType] = "LIMIT"
	f[FieldLimitPrice] = "101.25"
	f[FieldSide] = "Sell"
	po, err := newParser(t).Parse(body(f))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if po.Order.Side != model.SideSell || po.Order.LimitPrice == nil || !po.Order.LimitPrice.Equal(decimal.RequireFromString("101.25")) {
		t.Errorf("unexpected order: %+v", po.Order)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
		want  error
	}{
		{"no team", FieldTeam, "", ErrMissingTeam},
		{"bad side", FieldSide, "HOLD", ErrInvalidSide},
		{"unknown ticker", FieldTicker, "ZZZZ", ErrUnknownTicker},
		{"zero qty", FieldQty, "0", ErrInvalidQty},
		{"fractional qty", FieldQty, "1.5", ErrInvalidQty},
		{"bad type", FieldOrderType, "STOP", ErrInvalidType},
	}
	p := newParser(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := marketBody()
			f[tt.field] = tt.value
			if _, err := p.Parse(body(f)); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParse_LimitNeedsPrice(t *testing.T) {
	p := newParser(t)
	for _, raw := range []string{"", "abc", "0", "-5"} {
		f := marketBody()
		f[FieldOrderType] = "LIMIT"
		f[FieldLimitPrice] = raw
		if _, err := p.Parse(body(f)); !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("limit %q: expected ErrInvalidLimit, got %v", raw, err)
		}
	}
}

func TestNewParser_EmptyUniverse(t *testing.T) {
	if _, err := NewParser(nil); !errors.Is(err, ErrEmptyUniverse) {
		t.Errorf("expected ErrEmptyUniverse, got %v", err)
	}
}

func TestDecodeSubmissions_BothLayouts(t *testing.T) {
	wrapped := `{"issues":[{"number":7,"created_at":"2025-01-06T14:03:00Z","user":{"login":"kim"},"body":"x"}]}`
	bare := `[{"number":7,"created_at":"2025-01-06T14:03:00Z","user":{"login":"kim"},"body":"x"}]`
	for _, raw := range []string{wrapped, bare} {
		subs, err := DecodeSubmissions([]byte(raw))
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if len(subs) != 1 || subs[0].Number != 7 || subs[0].User.Login != "kim" || subs[0].CreatedAt.Hour() != 14 {
			t.Errorf("unexpected submissions: %+v", subs)
		}
	}
	if _, err := DecodeSubmissions([]byte("{nope")); !errors.Is(err, ErrBadSubmissions) {
		t.Errorf("expected ErrBadSubmissions, got %v", err)
	}
}

func TestLoadSubmissions_Missing(t *testing.T) {
	if _, err := LoadSubmissions(filepath.Join(t.TempDir(), "orders.json")); !errors.Is(err, ErrNoSubmissions) {
		t.Errorf("expected ErrNoSubmissions, got %v", err)
	}
}

func TestToOrders(t *testing.T) {
	bad := marketBody()
	bad[FieldTicker] = "NOPE"
	path := filepath.Join(t.TempDir(), "orders.json")
	raw := `{"issues":[` +
		`{"number":3,"created_at":"2025-01-06T10:00:00Z","user":{"login":"a"},"body":` + quote(body(marketBody())) + `},` +
		`{"number":4,"created_at":"2025-01-06T10:05:00Z","user":{"login":"b"},"body":` + quote(body(bad)) + `}]}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	subs, err := LoadSubmissions(path)
	if err != nil {
		t.Fatal(err)
	}

	valid, rejected := newParser(t).ToOrders(subs)
	if len(valid) != 1 || len(rejected) != 1 {
		t.Fatalf("expected 1 valid and 1 rejected, got %d/%d", len(valid), len(rejected))
	}
	o := valid.Orders()[0]
	if o.Ref != "3" || o.SubmittedAt.Minute() != 0 {
		t.Errorf("submission metadata not carried: %+v", o)
	}
	if rejected[0].Submission.Number != 4 || !errors.Is(rejected[0].Err, ErrUnknownTicker) {
		t.Errorf("unexpected rejection: %+v", rejected[0])
	}
}

func TestRejected_LogEntry(t *testing.T) {
	bad := marketBody()
	bad[FieldTicker] = " nope "
	bad[FieldQty] = "lots"
	ts := time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC)

	_, rejected := newParser(t).ToOrders([]Submission{{Number: 12, Body: body(bad)}})
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejection, got %d", len(rejected))
	}
	e := rejected[0].LogEntry(ts)
	if e.Status != "REJECT_PARSE" || e.Ref != "12" || !e.Timestamp.Equal(ts) || e.ID == "" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if e.Team != "alpha" || e.Ticker != "NOPE" || e.Side != model.SideBuy || e.OrderType != model.OrderMarket {
		t.Errorf("typed fields not carried over: %+v", e)
	}
	if e.Qty != 0 || e.Filled() {
		t.Errorf("unparseable qty must stay zero and the entry unfilled: %+v", e)
	}
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

func TestBuild(t *testing.T) {
	p := newParser(t)
	px := decimal.NewFromInt(50)

	o, err := p.Build(" beta ", "sell", "msft", 3, "market", &px)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if o.Team != "beta" || o.Ticker != "MSFT" || o.Side != model.SideSell || o.LimitPrice != nil {
		t.Errorf("unexpected order: %+v", o)
	}

	if _, err := p.Build("beta", "BUY", "XOM", -1, "MARKET", nil); !errors.Is(err, ErrInvalidQty) {
		t.Errorf("expected ErrInvalidQty, got %v", err)
	}
	if _, err := p.Build("beta", "BUY", "XOM", 1, "LIMIT", nil); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
}
