// Package risk implements the pre-trade concentration check.
//
// The gate evaluates a proposed trade against a team's existing portfolio and
// rejects it if any held position would exceed a maximum share of the
// portfolio's approximate post-trade value. The post-trade value is
//
//	cash + Σ qty_after × price
//
// priced at the trade's own execution price for the traded ticker and the
// latest close for everything else. Fees and the trade's cash delta are left
// out of this figure on purpose; it measures concentration, not solvency.
package risk

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/ledger"
	"github.com/atmx/classroom-exchange/internal/model"
)

// DefaultMaxPositionWeight is 20% of portfolio value.
var DefaultMaxPositionWeight = decimal.NewFromFloat(0.20)

// Gate enforces a single-position weight limit.
type Gate struct {
	// MaxPositionWeight is the largest allowed value(position)/value(portfolio).
	MaxPositionWeight decimal.Decimal
}

// NewGate creates a gate. A non-positive maxWeight falls back to
// DefaultMaxPositionWeight.
func NewGate(maxWeight decimal.Decimal) *Gate {
	if !maxWeight.IsPositive() {
		maxWeight = DefaultMaxPositionWeight
	}
	return &Gate{MaxPositionWeight: maxWeight}
}

// Check validates a trade. It returns nil if the trade passes, or a
// *model.Rejection describing the violation.
//
// Parameters:
//   - p: the team's portfolio before the trade (not modified)
//   - ticker, side, qty: the proposed trade
//   - execPrice: slippage-adjusted execution price for ticker
//   - closes: latest close per ticker, used for every other held position
func (g *Gate) Check(
	p *ledger.Portfolio,
	ticker string,
	side model.Side,
	qty int64,
	execPrice decimal.Decimal,
	closes map[string]decimal.Decimal,
) error {
	// 1. Hypothetical post-trade share counts.
	after := make(map[string]int64, len(p.Positions)+1)
	for sym, q := range p.Positions {
		after[sym] = q
	}
	switch side {
	case model.SideBuy:
		after[ticker] += qty
	case model.SideSell:
		after[ticker] -= qty
		if after[ticker] < 0 {
			return model.Reject(model.ReasonShortNotAllowed)
		}
	}

	// 2. NAV before and approximate value after.
	if !p.NAV(closes).IsPositive() {
		return model.Reject(model.ReasonNAVNonPositive)
	}

	priceOf := func(sym string) decimal.Decimal {
		if sym == ticker {
			return execPrice
		}
		return closes[sym]
	}

	syms := make([]string, 0, len(after))
	total := p.Cash
	for sym, q := range after {
		if q == 0 {
			continue
		}
		syms = append(syms, sym)
		total = total.Add(priceOf(sym).Mul(decimal.NewFromInt(q)))
	}
	if !total.IsPositive() {
		return model.Reject(model.ReasonNAVAfterNonPositive)
	}

	// 3. Weight of every held position, not just the traded one.
	sort.Strings(syms)
	for _, sym := range syms {
		value := priceOf(sym).Mul(decimal.NewFromInt(after[sym]))
		weight := value.Div(total)
		if weight.GreaterThan(g.MaxPositionWeight) {
			return &model.Rejection{
				Reason: model.ReasonPositionWeightLimit,
				Ticker: sym,
				Detail: "weight " + weight.StringFixed(4) + " > " + g.MaxPositionWeight.String(),
			}
		}
	}

	return nil
}
