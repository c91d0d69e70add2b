// Package ledger implements average-cost portfolio accounting for one team:
// cash, share counts, per-ticker average cost and cumulative realized P&L.
//
// All monetary values use shopspring/decimal, never float64.
package ledger

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	// ErrInsufficientCash is returned when a trade would leave cash negative:
	// a buy costing more than the cash on hand, or a sell whose proceeds do
	// not cover the fee.
	ErrInsufficientCash = errors.New("ledger: insufficient cash")

	// ErrInsufficientShares is returned when a sell exceeds the shares held.
	ErrInsufficientShares = errors.New("ledger: insufficient shares")
)

// Portfolio is one team's persisted ledger. Positions and AvgCost always have
// identical key sets; a ticker that is not held is absent from both.
type Portfolio struct {
	Team        string                     `json:"team"`
	Cash        decimal.Decimal            `json:"cash"`
	Positions   map[string]int64           `json:"positions"`
	AvgCost     map[string]decimal.Decimal `json:"avg_cost"`
	RealizedPnL decimal.Decimal            `json:"realized_pnl"`
}

// New creates an empty portfolio holding only starting cash.
func New(team string, cash decimal.Decimal) *Portfolio {
	return &Portfolio{
		Team:      team,
		Cash:      cash,
		Positions: make(map[string]int64),
		AvgCost:   make(map[string]decimal.Decimal),
	}
}

// Normalize fills nil maps and drops zero-quantity entries so a portfolio
// decoded from storage satisfies the key-set invariant.
func (p *Portfolio) Normalize() {
	if p.Positions == nil {
		p.Positions = make(map[string]int64)
	}
	if p.AvgCost == nil {
		p.AvgCost = make(map[string]decimal.Decimal)
	}
	for sym, qty := range p.Positions {
		if qty == 0 {
			delete(p.Positions, sym)
			delete(p.AvgCost, sym)
			continue
		}
		if _, ok := p.AvgCost[sym]; !ok {
			p.AvgCost[sym] = decimal.Zero
		}
	}
	for sym := range p.AvgCost {
		if _, ok := p.Positions[sym]; !ok {
			delete(p.AvgCost, sym)
		}
	}
}

// Clone returns a deep copy.
func (p *Portfolio) Clone() *Portfolio {
	c := &Portfolio{
		Team:        p.Team,
		Cash:        p.Cash,
		Positions:   make(map[string]int64, len(p.Positions)),
		AvgCost:     make(map[string]decimal.Decimal, len(p.AvgCost)),
		RealizedPnL: p.RealizedPnL,
	}
	for k, v := range p.Positions {
		c.Positions[k] = v
	}
	for k, v := range p.AvgCost {
		c.AvgCost[k] = v
	}
	return c
}

// Qty returns the shares held in sym (0 when not held).
func (p *Portfolio) Qty(sym string) int64 {
	return p.Positions[sym]
}

// Tickers returns the held tickers in sorted order.
func (p *Portfolio) Tickers() []string {
	out := make([]string, 0, len(p.Positions))
	for sym := range p.Positions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// PositionValue is Σ qty × price over held tickers. A ticker missing from
// prices contributes zero.
func (p *Portfolio) PositionValue(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for sym, qty := range p.Positions {
		px, ok := prices[sym]
		if !ok {
			continue
		}
		total = total.Add(px.Mul(decimal.NewFromInt(qty)))
	}
	return total
}

// NAV is cash plus the market value of held positions.
func (p *Portfolio) NAV(prices map[string]decimal.Decimal) decimal.Decimal {
	return p.Cash.Add(p.PositionValue(prices))
}

// Buy adds qty shares of sym at price and debits qty*price+fee. The average
// cost is the running weighted average. On error the portfolio is unchanged.
func (p *Portfolio) Buy(sym string, qty int64, price, fee decimal.Decimal) error {
	if qty <= 0 {
		return nil
	}
	q := decimal.NewFromInt(qty)
	cost := q.Mul(price).Add(fee)
	if cost.GreaterThan(p.Cash) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, cost.StringFixed(2), p.Cash.StringFixed(2))
	}

	prevQty := p.Positions[sym]
	prevAvg := p.AvgCost[sym]
	newQty := prevQty + qty

	newAvg := decimal.NewFromInt(prevQty).Mul(prevAvg).Add(q.Mul(price)).Div(decimal.NewFromInt(newQty))

	p.Positions[sym] = newQty
	p.AvgCost[sym] = newAvg
	p.Cash = p.Cash.Sub(cost)
	return nil
}

// Sell removes qty shares of sym at price and credits qty*price-fee.
// Realized P&L accumulates (price-avg)*qty net of the fee. A position that
// reaches zero is removed. A sell that would leave cash negative returns
// ErrInsufficientCash. On error the portfolio is unchanged.
func (p *Portfolio) Sell(sym string, qty int64, price, fee decimal.Decimal) error {
	if qty <= 0 {
		return nil
	}
	prevQty := p.Positions[sym]
	if qty > prevQty {
		return fmt.Errorf("%w: sell %d %s, have %d", ErrInsufficientShares, qty, sym, prevQty)
	}

	q := decimal.NewFromInt(qty)
	basis := p.AvgCost[sym]
	proceeds := q.Mul(price).Sub(fee)
	if p.Cash.Add(proceeds).IsNegative() {
		return fmt.Errorf("%w: sell proceeds %s do not cover fee %s, have %s",
			ErrInsufficientCash, q.Mul(price).StringFixed(4), fee.StringFixed(2), p.Cash.StringFixed(2))
	}
	pnl := price.Sub(basis).Mul(q).Sub(fee)

	p.RealizedPnL = p.RealizedPnL.Add(pnl)
	p.Cash = p.Cash.Add(proceeds)

	newQty := prevQty - qty
	if newQty == 0 {
		delete(p.Positions, sym)
		delete(p.AvgCost, sym)
	} else {
		p.Positions[sym] = newQty
	}
	return nil
}

// UnrealizedPnL is Σ (price-avg)*qty over held tickers priced in prices.
func (p *Portfolio) UnrealizedPnL(prices map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for sym, qty := range p.Positions {
		px := prices[sym]
		total = total.Add(px.Sub(p.AvgCost[sym]).Mul(decimal.NewFromInt(qty)))
	}
	return total
}
