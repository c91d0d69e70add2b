package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func TestBuySell_Scenario(t *testing.T) {
	p := New("alpha", d(100000))

	if err := p.Buy("ACME", 100, d(50), d(1)); err != nil {
		t.Fatalf("buy: %v", err)
	}
	if !p.Cash.Equal(d(94999)) {
		t.Errorf("cash after buy = %s, want 94999", p.Cash)
	}
	if !p.AvgCost["ACME"].Equal(d(50)) {
		t.Errorf("avg cost = %s, want 50", p.AvgCost["ACME"])
	}
	if p.Qty("ACME") != 100 {
		t.Errorf("qty = %d, want 100", p.Qty("ACME"))
	}

	if err := p.Sell("ACME", 100, d(60), d(1)); err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !p.Cash.Equal(d(100998)) {
		t.Errorf("cash after sell = %s, want 100998", p.Cash)
	}
	if !p.RealizedPnL.Equal(d(999)) {
		t.Errorf("realized pnl = %s, want 999", p.RealizedPnL)
	}
	if len(p.Positions) != 0 || len(p.AvgCost) != 0 {
		t.Errorf("expected empty positions, got %v / %v", p.Positions, p.AvgCost)
	}
}

func TestBuySell_RoundTripZeroFee(t *testing.T) {
	p := New("alpha", d(10000))

	if err := p.Buy("ACME", 10, d(42.5), decimal.Zero); err != nil {
		t.Fatal(err)
	}
	if err := p.Sell("ACME", 10, d(42.5), decimal.Zero); err != nil {
		t.Fatal(err)
	}
	if !p.Cash.Equal(d(10000)) {
		t.Errorf("cash = %s, want 10000", p.Cash)
	}
	if !p.RealizedPnL.IsZero() {
		t.Errorf("realized pnl = %s, want 0", p.RealizedPnL)
	}
}

func TestBuySell_RoundTripWithFee(t *testing.T) {
	p := New("alpha", d(10000))
	fee := d(2.5)

	if err := p.Buy("ACME", 10, d(42.5), fee); err != nil {
		t.Fatal(err)
	}
	if err := p.Sell("ACME", 10, d(42.5), fee); err != nil {
		t.Fatal(err)
	}
	want := d(10000).Sub(fee.Mul(decimal.NewFromInt(2)))
	if !p.Cash.Equal(want) {
		t.Errorf("cash = %s, want %s", p.Cash, want)
	}
}

func TestBuy_WeightedAverageCost(t *testing.T) {
	p := New("alpha", d(100000))

	if err := p.Buy("ACME", 30, d(10.25), decimal.Zero); err != nil {
		t.Fatal(err)
	}
	if err := p.Buy("ACME", 70, d(13.5), decimal.Zero); err != nil {
		t.Fatal(err)
	}

	want := d(30).Mul(d(10.25)).Add(d(70).Mul(d(13.5))).Div(d(100))
	if !p.AvgCost["ACME"].Equal(want) {
		t.Errorf("avg cost = %s, want %s", p.AvgCost["ACME"], want)
	}
	if p.Qty("ACME") != 100 {
		t.Errorf("qty = %d, want 100", p.Qty("ACME"))
	}
}

func TestBuy_InsufficientCash(t *testing.T) {
	p := New("alpha", d(1000))
	before := p.Clone()

	err := p.Buy("ACME", 100, d(10), d(1))
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	if !p.Cash.Equal(before.Cash) || len(p.Positions) != 0 {
		t.Error("portfolio modified by rejected buy")
	}
}

func TestBuy_ExactCashAllowed(t *testing.T) {
	p := New("alpha", d(1001))
	if err := p.Buy("ACME", 100, d(10), d(1)); err != nil {
		t.Fatalf("expected fill at exact cash, got %v", err)
	}
	if !p.Cash.IsZero() {
		t.Errorf("cash = %s, want 0", p.Cash)
	}
}

func TestSell_InsufficientShares(t *testing.T) {
	p := New("alpha", d(10000))
	if err := p.Buy("ACME", 5, d(10), decimal.Zero); err != nil {
		t.Fatal(err)
	}
	before := p.Clone()

	err := p.Sell("ACME", 6, d(10), decimal.Zero)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares, got %v", err)
	}
	if !p.Cash.Equal(before.Cash) || p.Qty("ACME") != 5 || !p.RealizedPnL.Equal(before.RealizedPnL) {
		t.Error("portfolio modified by rejected sell")
	}

	err = p.Sell("NOPE", 1, d(10), decimal.Zero)
	if !errors.Is(err, ErrInsufficientShares) {
		t.Fatalf("expected ErrInsufficientShares for unheld ticker, got %v", err)
	}
}

func TestSell_FeeWouldOverdrawCash(t *testing.T) {
	p := New("alpha", decimal.Zero)
	p.Positions["ACME"] = 5
	p.AvgCost["ACME"] = d(1)
	before := p.Clone()

	// 1 × 0.6 = 0.6 proceeds against a fee of 1.
	err := p.Sell("ACME", 1, d(0.6), d(1))
	if !errors.Is(err, ErrInsufficientCash) {
		t.Fatalf("expected ErrInsufficientCash, got %v", err)
	}
	if !p.Cash.Equal(before.Cash) || p.Qty("ACME") != 5 || !p.RealizedPnL.Equal(before.RealizedPnL) {
		t.Error("portfolio modified by rejected sell")
	}

	// Selling enough shares to cover the fee is fine.
	if err := p.Sell("ACME", 5, d(0.6), d(1)); err != nil {
		t.Fatalf("expected fill, got %v", err)
	}
	if !p.Cash.Equal(d(2)) || p.Qty("ACME") != 0 {
		t.Errorf("cash = %s qty = %d, want 2 and 0", p.Cash, p.Qty("ACME"))
	}
}

func TestBuySell_NonPositiveQtyIsNoop(t *testing.T) {
	p := New("alpha", d(100))
	if err := p.Buy("ACME", 0, d(10), d(1)); err != nil {
		t.Fatal(err)
	}
	if err := p.Sell("ACME", -3, d(10), d(1)); err != nil {
		t.Fatal(err)
	}
	if !p.Cash.Equal(d(100)) || len(p.Positions) != 0 {
		t.Error("no-op trade modified portfolio")
	}
}

func TestSell_PartialKeepsAvgCost(t *testing.T) {
	p := New("alpha", d(10000))
	if err := p.Buy("ACME", 10, d(20), decimal.Zero); err != nil {
		t.Fatal(err)
	}
	if err := p.Sell("ACME", 4, d(25), decimal.Zero); err != nil {
		t.Fatal(err)
	}
	if p.Qty("ACME") != 6 {
		t.Errorf("qty = %d, want 6", p.Qty("ACME"))
	}
	if !p.AvgCost["ACME"].Equal(d(20)) {
		t.Errorf("avg cost = %s, want 20", p.AvgCost["ACME"])
	}
	if !p.RealizedPnL.Equal(d(20)) {
		t.Errorf("realized = %s, want 20", p.RealizedPnL)
	}
}

func TestNAV_MissingPriceContributesZero(t *testing.T) {
	p := New("alpha", d(1000))
	p.Positions["ACME"] = 10
	p.AvgCost["ACME"] = d(5)
	p.Positions["GHOST"] = 3
	p.AvgCost["GHOST"] = d(7)

	nav := p.NAV(map[string]decimal.Decimal{"ACME": d(6)})
	if !nav.Equal(d(1060)) {
		t.Errorf("nav = %s, want 1060", nav)
	}
}

func TestNormalize(t *testing.T) {
	p := &Portfolio{
		Team:      "alpha",
		Cash:      d(1),
		Positions: map[string]int64{"A": 0, "B": 2},
		AvgCost:   map[string]decimal.Decimal{"A": d(1), "C": d(3)},
	}
	p.Normalize()

	if _, ok := p.Positions["A"]; ok {
		t.Error("zero position A should be removed")
	}
	if _, ok := p.AvgCost["C"]; ok {
		t.Error("orphan avg cost C should be removed")
	}
	if _, ok := p.AvgCost["B"]; !ok {
		t.Error("held ticker B should have an avg cost entry")
	}
}
