package risk

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/ledger"
	"github.com/atmx/classroom-exchange/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func rejectionCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		return ""
	}
	var rej *model.Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected *model.Rejection, got %T: %v", err, err)
	}
	return rej.Code()
}

func TestCheck_WithinLimits(t *testing.T) {
	gate := NewGate(d(0.20))
	p := ledger.New("alpha", d(100000))

	// 100 × 150 = 15,000 of ~115,000 → 13%.
	err := gate.Check(p, "ACME", model.SideBuy, 100, d(150), map[string]decimal.Decimal{"ACME": d(150)})
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheck_WeightLimitExceeded(t *testing.T) {
	gate := NewGate(d(0.20))
	p := ledger.New("alpha", d(100000))
	before := p.Clone()

	// 200 × 150 = 30,000 of 130,000 → 23%.
	err := gate.Check(p, "ACME", model.SideBuy, 200, d(150), map[string]decimal.Decimal{"ACME": d(150)})
	if got := rejectionCode(t, err); got != "POSITION_WEIGHT_LIMIT_ACME" {
		t.Errorf("expected POSITION_WEIGHT_LIMIT_ACME, got %q", got)
	}
	if !p.Cash.Equal(before.Cash) || len(p.Positions) != 0 {
		t.Error("gate must not modify the portfolio")
	}
}

func TestCheck_ExistingPositionBreachesAfterTrade(t *testing.T) {
	gate := NewGate(d(0.20))
	p := ledger.New("alpha", d(1000))
	p.Positions["BIG"] = 10
	p.AvgCost["BIG"] = d(10)
	closes := map[string]decimal.Decimal{"BIG": d(30), "SMALL": d(1)}

	// BIG is 300 of 1300 (23%) regardless of the small buy.
	err := gate.Check(p, "SMALL", model.SideBuy, 1, d(1), closes)
	if got := rejectionCode(t, err); got != "POSITION_WEIGHT_LIMIT_BIG" {
		t.Errorf("expected POSITION_WEIGHT_LIMIT_BIG, got %q", got)
	}
}

func TestCheck_ShortNotAllowed(t *testing.T) {
	gate := NewGate(d(0.20))
	p := ledger.New("alpha", d(1000))
	p.Positions["ACME"] = 5
	p.AvgCost["ACME"] = d(10)

	err := gate.Check(p, "ACME", model.SideSell, 6, d(10), map[string]decimal.Decimal{"ACME": d(10)})
	if got := rejectionCode(t, err); got != "SHORT_NOT_ALLOWED" {
		t.Errorf("expected SHORT_NOT_ALLOWED, got %q", got)
	}
}

func TestCheck_NavNonPositive(t *testing.T) {
	gate := NewGate(d(0.20))
	p := ledger.New("alpha", decimal.Zero)

	err := gate.Check(p, "ACME", model.SideBuy, 1, d(10), nil)
	if got := rejectionCode(t, err); got != "NAV_NONPOSITIVE" {
		t.Errorf("expected NAV_NONPOSITIVE, got %q", got)
	}
}

func TestCheck_NavAfterNonPositive(t *testing.T) {
	gate := NewGate(d(0.20))
	p := ledger.New("alpha", d(100))
	p.Positions["ACME"] = 10
	p.AvgCost["ACME"] = d(10)

	// Negative cash is only offset by the position being sold; the
	// approximation drops the position without crediting the proceeds.
	p.Cash = d(-50)
	closes := map[string]decimal.Decimal{"ACME": d(10)}
	err := gate.Check(p, "ACME", model.SideSell, 10, d(10), closes)
	if got := rejectionCode(t, err); got != "NAV_AFTER_NONPOSITIVE" {
		t.Errorf("expected NAV_AFTER_NONPOSITIVE, got %q", got)
	}
}

func TestCheck_IgnoresFeesInApproximation(t *testing.T) {
	gate := NewGate(d(0.20))
	p := ledger.New("alpha", d(1000))

	// 20 × 12.5 = 250 of 1250 → exactly 20%: allowed (not strictly greater).
	err := gate.Check(p, "ACME", model.SideBuy, 20, d(12.5), nil)
	if err != nil {
		t.Errorf("expected exact-limit trade to pass, got %v", err)
	}
}

func TestNewGate_DefaultWeight(t *testing.T) {
	gate := NewGate(decimal.Zero)
	if !gate.MaxPositionWeight.Equal(DefaultMaxPositionWeight) {
		t.Errorf("expected default weight, got %s", gate.MaxPositionWeight)
	}
}
