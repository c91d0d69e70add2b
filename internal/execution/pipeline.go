// Package execution turns a validated order and the bar it trades against
// into a trade-log outcome: price selection, limit touch logic, slippage,
// the risk gate and the ledger mutation, in that order.
//
// All monetary values use shopspring/decimal.
package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/ledger"
	"github.com/atmx/classroom-exchange/internal/model"
	"github.com/atmx/classroom-exchange/internal/risk"
)

var ErrInvalidConfig = errors.New("execution: invalid config")

// PriceField selects which bar price a MARKET order executes at.
type PriceField string

const (
	PriceOpen  PriceField = "open"
	PriceClose PriceField = "close"
)

var bpsDivisor = decimal.NewFromInt(10_000)

// Config holds per-trade costs.
type Config struct {
	FeePerTrade decimal.Decimal
	SlippageBps decimal.Decimal
	PriceField  PriceField
}

// DefaultConfig is a $1 flat fee, 5 bps slippage and close-price execution.
func DefaultConfig() Config {
	return Config{
		FeePerTrade: decimal.NewFromInt(1),
		SlippageBps: decimal.NewFromInt(5),
		PriceField:  PriceClose,
	}
}

func (c Config) Validate() error {
	if c.FeePerTrade.IsNegative() {
		return fmt.Errorf("%w: fee %s < 0", ErrInvalidConfig, c.FeePerTrade)
	}
	if c.SlippageBps.IsNegative() {
		return fmt.Errorf("%w: slippage %s bps < 0", ErrInvalidConfig, c.SlippageBps)
	}
	if c.PriceField != PriceOpen && c.PriceField != PriceClose {
		return fmt.Errorf("%w: price field %q", ErrInvalidConfig, c.PriceField)
	}
	return nil
}

// Pipeline executes orders one at a time against a team's portfolio. It
// keeps no state between calls.
type Pipeline struct {
	cfg  Config
	gate *risk.Gate
}

func NewPipeline(cfg Config, gate *risk.Gate) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if gate == nil {
		gate = risk.NewGate(risk.DefaultMaxPositionWeight)
	}
	return &Pipeline{cfg: cfg, gate: gate}, nil
}

// Execute attempts o against bar and returns the outcome. bar is nil when
// the ticker has no price this step. closes are the latest closes used by
// the risk gate. p is mutated only when the order fills.
func (pl *Pipeline) Execute(p *ledger.Portfolio, o model.Order, bar *model.Bar, closes map[string]decimal.Decimal, ts time.Time) model.TradeLogEntry {
	entry := model.TradeLogEntry{
		ID:         uuid.New().String(),
		Timestamp:  ts,
		Team:       o.Team,
		Ticker:     o.Ticker,
		Side:       o.Side,
		Qty:        o.Qty,
		OrderType:  o.Type,
		LimitPrice: o.LimitPrice,
		Ref:        o.Ref,
	}

	if bar == nil {
		entry.Status = model.Reject(model.ReasonNoPrice).Status()
		return entry
	}

	var raw decimal.Decimal
	switch o.Type {
	case model.OrderLimit:
		if !LimitFills(o.Side, *o.LimitPrice, *bar) {
			entry.Status = model.StatusUnfilledLimit
			return entry
		}
		raw = *o.LimitPrice
	default:
		raw = MarketPrice(*bar, pl.cfg.PriceField)
	}
	execPx := ApplySlippage(raw, o.Side, pl.cfg.SlippageBps)

	if err := pl.gate.Check(p, o.Ticker, o.Side, o.Qty, execPx, closes); err != nil {
		entry.Status = rejectionStatus(err)
		slog.Debug("order rejected by risk gate", "team", o.Team, "ticker", o.Ticker, "error", err)
		return entry
	}

	var err error
	if o.Side == model.SideBuy {
		err = p.Buy(o.Ticker, o.Qty, execPx, pl.cfg.FeePerTrade)
	} else {
		err = p.Sell(o.Ticker, o.Qty, execPx, pl.cfg.FeePerTrade)
	}
	switch {
	case errors.Is(err, ledger.ErrInsufficientCash):
		entry.Status = model.Reject(model.ReasonInsufficientCash).Status()
		return entry
	case errors.Is(err, ledger.ErrInsufficientShares):
		entry.Status = model.Reject(model.ReasonInsufficientShares).Status()
		return entry
	case err != nil:
		entry.Status = rejectionStatus(err)
		return entry
	}

	price := execPx.Round(4)
	fee := pl.cfg.FeePerTrade
	entry.Status = model.StatusFilled
	entry.Price = &price
	entry.Fee = &fee
	return entry
}

func rejectionStatus(err error) model.Status {
	var rej *model.Rejection
	if errors.As(err, &rej) {
		return rej.Status()
	}
	return model.Status("REJECT_" + err.Error())
}

// LimitFills reports whether a limit order touches bar: a BUY fills when
// the bar's low reaches the limit, a SELL when its high does.
func LimitFills(side model.Side, limit decimal.Decimal, bar model.Bar) bool {
	switch side {
	case model.SideBuy:
		return decimal.NewFromFloat(bar.Low).LessThanOrEqual(limit)
	case model.SideSell:
		return decimal.NewFromFloat(bar.High).GreaterThanOrEqual(limit)
	}
	return false
}

// MarketPrice returns the bar price a MARKET order executes at.
func MarketPrice(bar model.Bar, field PriceField) decimal.Decimal {
	if field == PriceOpen {
		return decimal.NewFromFloat(bar.Open)
	}
	return decimal.NewFromFloat(bar.Close)
}

// ApplySlippage moves price against the trader: buys pay up, sells receive
// less.
func ApplySlippage(price decimal.Decimal, side model.Side, bps decimal.Decimal) decimal.Decimal {
	adj := bps.Div(bpsDivisor)
	if side == model.SideSell {
		return price.Mul(decimal.NewFromInt(1).Sub(adj))
	}
	return price.Mul(decimal.NewFromInt(1).Add(adj))
}
