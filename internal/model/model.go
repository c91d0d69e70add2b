// Package model defines the core domain types shared across the exchange:
// simulated bars and news, participant orders, and trade log entries.
// Ledger money uses shopspring/decimal; simulated prices are float64 because
// they come out of a stochastic model and are rounded when emitted.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Regime is the market-wide macro state governing drift and volatility.
type Regime string

const (
	RegimeBull     Regime = "bull"
	RegimeSideways Regime = "sideways"
	RegimeBear     Regime = "bear"
	RegimeCrisis   Regime = "crisis"
)

// Regimes lists every regime in transition-matrix order.
var Regimes = []Regime{RegimeBull, RegimeSideways, RegimeBear, RegimeCrisis}

// Valid reports whether r is one of the four known regimes.
func (r Regime) Valid() bool {
	for _, known := range Regimes {
		if r == known {
			return true
		}
	}
	return false
}

// Sector is one of the eight fixed simulator sector buckets.
type Sector string

const (
	SectorTech        Sector = "Tech"
	SectorFinancials  Sector = "Financials"
	SectorConsumer    Sector = "Consumer"
	SectorIndustrials Sector = "Industrials"
	SectorEnergy      Sector = "Energy"
	SectorHealthcare  Sector = "Healthcare"
	SectorComm        Sector = "Comm"
	SectorSpeculative Sector = "Speculative"
)

// Sectors lists every sector in factor-draw order.
var Sectors = []Sector{
	SectorTech, SectorFinancials, SectorConsumer, SectorIndustrials,
	SectorEnergy, SectorHealthcare, SectorComm, SectorSpeculative,
}

// Index returns the position of s in Sectors, or the Speculative index for
// an unknown sector.
func (s Sector) Index() int {
	for i, known := range Sectors {
		if s == known {
			return i
		}
	}
	return len(Sectors) - 1
}

// Bar is one OHLCV record for one ticker over one simulation step.
// Bars are appended to the bar log once and never modified.
type Bar struct {
	Timestamp     time.Time `json:"timestamp"`
	Date          string    `json:"date"`
	BarIndex      int       `json:"bar_index"`
	Ticker        string    `json:"ticker"`
	Sector        Sector    `json:"sector"`
	Regime        Regime    `json:"regime"`
	MacroHeadline string    `json:"macro_headline,omitempty"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        int64     `json:"volume"`
	TotalReturn   float64   `json:"ret"`
	MarketReturn  float64   `json:"market_ret"`
	SectorReturn  float64   `json:"sector_ret"`
	ShockReturn   float64   `json:"shock_ret"`
	HasNews       bool      `json:"has_news"`
}

// NewsEvent is a ticker-level headline that accompanied a return shock.
type NewsEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Date         string    `json:"date"`
	Ticker       string    `json:"ticker"`
	CompanyName  string    `json:"company_name"`
	EventType    string    `json:"event_type"`
	Sentiment    string    `json:"sentiment"`
	Headline     string    `json:"headline"`
	ShockReturn  float64   `json:"shock_return"`
	MacroContext string    `json:"macro_context,omitempty"`
	Regime       Regime    `json:"regime"`
}

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is MARKET or LIMIT.
type OrderType string

const (
	OrderMarket OrderType = "MARKET"
	OrderLimit  OrderType = "LIMIT"
)

var (
	ErrInvalidSide       = errors.New("model: side must be BUY or SELL")
	ErrInvalidQty        = errors.New("model: quantity must be > 0")
	ErrInvalidOrderType  = errors.New("model: order type must be MARKET or LIMIT")
	ErrMissingLimitPrice = errors.New("model: LIMIT order requires a limit price > 0")
	ErrUnexpectedLimit   = errors.New("model: MARKET order must not carry a limit price")
	ErrMissingTeam       = errors.New("model: team is required")
	ErrMissingTicker     = errors.New("model: ticker is required")
)

// Order is a validated participant order. Construct it with NewOrder; the
// zero value is not a valid order.
type Order struct {
	Team        string           `json:"team"`
	Ticker      string           `json:"ticker"`
	Side        Side             `json:"side"`
	Qty         int64            `json:"qty"`
	Type        OrderType        `json:"order_type"`
	LimitPrice  *decimal.Decimal `json:"limit_price,omitempty"`
	Ref         string           `json:"ref,omitempty"` // submission reference, e.g. issue number
	SubmittedAt time.Time        `json:"submitted_at,omitempty"`
}

// NewOrder validates and builds an Order. limitPrice must be non-nil iff
// orderType is LIMIT.
func NewOrder(team, ticker string, side Side, qty int64, orderType OrderType, limitPrice *decimal.Decimal) (Order, error) {
	if team == "" {
		return Order{}, ErrMissingTeam
	}
	if ticker == "" {
		return Order{}, ErrMissingTicker
	}
	if side != SideBuy && side != SideSell {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}
	if qty <= 0 {
		return Order{}, fmt.Errorf("%w: %d", ErrInvalidQty, qty)
	}
	switch orderType {
	case OrderMarket:
		if limitPrice != nil {
			return Order{}, ErrUnexpectedLimit
		}
	case OrderLimit:
		if limitPrice == nil || !limitPrice.IsPositive() {
			return Order{}, ErrMissingLimitPrice
		}
		lp := *limitPrice
		limitPrice = &lp
	default:
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidOrderType, orderType)
	}
	return Order{
		Team:       team,
		Ticker:     ticker,
		Side:       side,
		Qty:        qty,
		Type:       orderType,
		LimitPrice: limitPrice,
	}, nil
}

// Status is the outcome tag recorded for every attempted order.
type Status string

const (
	StatusFilled        Status = "FILLED"
	StatusUnfilledLimit Status = "UNFILLED_LIMIT"
)

// RejectReason is the closed set of per-order rejection causes.
type RejectReason string

const (
	ReasonNoPrice             RejectReason = "NO_PRICE"
	ReasonShortNotAllowed     RejectReason = "SHORT_NOT_ALLOWED"
	ReasonNAVNonPositive      RejectReason = "NAV_NONPOSITIVE"
	ReasonNAVAfterNonPositive RejectReason = "NAV_AFTER_NONPOSITIVE"
	ReasonPositionWeightLimit RejectReason = "POSITION_WEIGHT_LIMIT"
	ReasonInsufficientCash    RejectReason = "INSUFFICIENT_CASH"
	ReasonInsufficientShares  RejectReason = "INSUFFICIENT_SHARES"

	// ReasonParse marks a submission whose issue body failed validation. It
	// never reaches execution.
	ReasonParse RejectReason = "PARSE"
)

// Rejection is a per-order rejection. It implements error so gates can
// return it directly; callers recover it with errors.As.
type Rejection struct {
	Reason RejectReason
	Ticker string // set for POSITION_WEIGHT_LIMIT
	Detail string
}

// Reject builds a rejection for reason.
func Reject(reason RejectReason) *Rejection {
	return &Rejection{Reason: reason}
}

// Code is the machine-readable code, e.g. POSITION_WEIGHT_LIMIT_ACME.
func (r *Rejection) Code() string {
	if r.Reason == ReasonPositionWeightLimit && r.Ticker != "" {
		return string(r.Reason) + "_" + r.Ticker
	}
	return string(r.Reason)
}

// Status is the trade-log status for this rejection.
func (r *Rejection) Status() Status {
	return Status("REJECT_" + r.Code())
}

func (r *Rejection) Error() string {
	if r.Detail != "" {
		return "rejected: " + r.Code() + ": " + r.Detail
	}
	return "rejected: " + r.Code()
}

// TradeLogEntry is the append-only outcome record for one attempted order.
type TradeLogEntry struct {
	ID         string           `json:"id" db:"id"`
	Timestamp  time.Time        `json:"timestamp" db:"timestamp"`
	Team       string           `json:"team" db:"team"`
	Ticker     string           `json:"ticker" db:"ticker"`
	Side       Side             `json:"side" db:"side"`
	Qty        int64            `json:"qty" db:"qty"`
	Status     Status           `json:"status" db:"status"`
	Price      *decimal.Decimal `json:"price,omitempty" db:"price"`
	Fee        *decimal.Decimal `json:"fee,omitempty" db:"fee"`
	OrderType  OrderType        `json:"order_type" db:"order_type"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty" db:"limit_price"`
	Ref        string           `json:"ref,omitempty" db:"ref"`
}

// Filled reports whether the entry records an executed trade.
func (e TradeLogEntry) Filled() bool {
	return e.Status == StatusFilled
}
