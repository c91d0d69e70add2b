// Package orders turns participant submissions into validated orders.
// Submissions arrive as GitHub issue-form bodies: markdown with one
// "### Label" heading per form field.
package orders

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/model"
)

// Issue-form field labels.
const (
	FieldTeam       = "Team name"
	FieldSide       = "Side"
	FieldTicker     = "Ticker"
	FieldQty        = "Quantity (shares)"
	FieldOrderType  = "Order type"
	FieldLimitPrice = "Limit price (only if LIMIT)"
	FieldNotes      = "Notes (optional)"
)

// sectionRegex matches one issue-form heading: "### Team name".
var sectionRegex = regexp.MustCompile(`(?m)^###\s+(.+?)\s*$`)

var (
	ErrMissingTeam    = errors.New("orders: missing team name")
	ErrInvalidSide    = errors.New("orders: invalid side")
	ErrUnknownTicker  = errors.New("orders: ticker not in universe")
	ErrInvalidQty     = errors.New("orders: quantity must be a positive integer")
	ErrInvalidType    = errors.New("orders: invalid order type")
	ErrInvalidLimit   = errors.New("orders: LIMIT order requires a limit price > 0")
	ErrEmptyUniverse  = errors.New("orders: universe is empty")
	ErrNoSubmissions  = errors.New("orders: submissions file not found")
	ErrBadSubmissions = errors.New("orders: malformed submissions file")
)

// ParsedOrder is a validated order plus the free-text notes that came with
// it.
type ParsedOrder struct {
	Order model.Order
	Notes string
}

// Parser validates issue bodies against a fixed ticker universe.
type Parser struct {
	universe map[string]bool
}

// NewParser creates a parser accepting only tickers in universe.
func NewParser(universe []string) (*Parser, error) {
	if len(universe) == 0 {
		return nil, ErrEmptyUniverse
	}
	set := make(map[string]bool, len(universe))
	for _, t := range universe {
		set[strings.ToUpper(strings.TrimSpace(t))] = true
	}
	return &Parser{universe: set}, nil
}

// Sections splits an issue body into label -> value. Values are trimmed and
// CRLF line endings normalized.
func Sections(body string) map[string]string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	locs := sectionRegex.FindAllStringSubmatchIndex(body, -1)
	out := make(map[string]string, len(locs))
	for i, loc := range locs {
		key := strings.TrimSpace(body[loc[2]:loc[3]])
		end := len(body)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out[key] = strings.TrimSpace(body[loc[1]:end])
	}
	return out
}

// Parse validates one issue body. A MARKET order ignores any limit price the
// participant typed.
func (p *Parser) Parse(body string) (ParsedOrder, error) {
	s := Sections(body)

	qty, err := strconv.ParseInt(s[FieldQty], 10, 64)
	if err != nil {
		qty = 0
	}

	var limit *decimal.Decimal
	if strings.EqualFold(s[FieldOrderType], string(model.OrderLimit)) {
		if px, err := decimal.NewFromString(s[FieldLimitPrice]); err == nil {
			limit = &px
		} else {
			return ParsedOrder{}, fmt.Errorf("%w, got %q", ErrInvalidLimit, s[FieldLimitPrice])
		}
	}

	o, err := p.Build(s[FieldTeam], s[FieldSide], s[FieldTicker], qty, s[FieldOrderType], limit)
	if err != nil {
		if errors.Is(err, ErrInvalidQty) {
			return ParsedOrder{}, fmt.Errorf("%w, got %q", ErrInvalidQty, s[FieldQty])
		}
		return ParsedOrder{}, err
	}
	return ParsedOrder{Order: o, Notes: s[FieldNotes]}, nil
}

// Build validates raw order fields the way the issue form does: side,
// ticker and type are case-insensitive, the ticker must be in the universe,
// and a MARKET order drops any limit price.
func (p *Parser) Build(team, side, ticker string, qty int64, orderType string, limit *decimal.Decimal) (model.Order, error) {
	team = strings.TrimSpace(team)
	if team == "" {
		return model.Order{}, ErrMissingTeam
	}

	sd := model.Side(strings.ToUpper(strings.TrimSpace(side)))
	if sd != model.SideBuy && sd != model.SideSell {
		return model.Order{}, fmt.Errorf("%w: %q", ErrInvalidSide, side)
	}

	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if !p.universe[ticker] {
		return model.Order{}, fmt.Errorf("%w: %q", ErrUnknownTicker, ticker)
	}

	if qty <= 0 {
		return model.Order{}, fmt.Errorf("%w, got %d", ErrInvalidQty, qty)
	}

	ot := model.OrderType(strings.ToUpper(strings.TrimSpace(orderType)))
	switch ot {
	case model.OrderMarket:
		limit = nil
	case model.OrderLimit:
		if limit == nil || !limit.IsPositive() {
			return model.Order{}, ErrInvalidLimit
		}
	default:
		return model.Order{}, fmt.Errorf("%w: %q", ErrInvalidType, orderType)
	}

	return model.NewOrder(team, ticker, sd, qty, ot, limit)
}
