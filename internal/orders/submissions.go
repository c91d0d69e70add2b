package orders

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atmx/classroom-exchange/internal/model"
)

// Submission is one raw order request as exported from the issue tracker.
type Submission struct {
	Number    int       `json:"number"`
	CreatedAt time.Time `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Body string `json:"body"`
}

// LoadSubmissions reads submissions from a JSON file holding either
// {"issues": [...]} or a bare list.
func LoadSubmissions(path string) ([]Submission, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoSubmissions, path)
	}
	if err != nil {
		return nil, err
	}
	return DecodeSubmissions(data)
}

// DecodeSubmissions decodes either accepted submissions layout.
func DecodeSubmissions(data []byte) ([]Submission, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var list []Submission
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadSubmissions, err)
		}
		return list, nil
	}
	var wrapped struct {
		Issues []Submission `json:"issues"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSubmissions, err)
	}
	return wrapped.Issues, nil
}

// Rejected is a submission that failed validation.
type Rejected struct {
	Submission Submission
	Err        error
}

// LogEntry records the rejected submission in the trade log as REJECT_PARSE,
// keyed by issue number. Whatever team, ticker and side the body did name
// are carried over as typed.
func (r Rejected) LogEntry(ts time.Time) model.TradeLogEntry {
	s := Sections(r.Submission.Body)
	e := model.TradeLogEntry{
		ID:        uuid.New().String(),
		Timestamp: ts,
		Team:      strings.TrimSpace(s[FieldTeam]),
		Ticker:    strings.ToUpper(strings.TrimSpace(s[FieldTicker])),
		Status:    model.Reject(model.ReasonParse).Status(),
		Ref:       strconv.Itoa(r.Submission.Number),
	}
	if sd := model.Side(strings.ToUpper(strings.TrimSpace(s[FieldSide]))); sd == model.SideBuy || sd == model.SideSell {
		e.Side = sd
	}
	if qty, err := strconv.ParseInt(strings.TrimSpace(s[FieldQty]), 10, 64); err == nil {
		e.Qty = qty
	}
	if ot := model.OrderType(strings.ToUpper(strings.TrimSpace(s[FieldOrderType]))); ot == model.OrderMarket || ot == model.OrderLimit {
		e.OrderType = ot
	}
	return e
}

// ToOrders parses every submission in order. Valid orders carry the issue
// number as Ref and the creation time as SubmittedAt; invalid ones are
// returned separately and never reach execution.
func (p *Parser) ToOrders(subs []Submission) (ParsedOrders, []Rejected) {
	var valid ParsedOrders
	var rejected []Rejected
	for _, s := range subs {
		po, err := p.Parse(s.Body)
		if err != nil {
			slog.Debug("submission rejected", "issue", s.Number, "user", s.User.Login, "error", err)
			rejected = append(rejected, Rejected{Submission: s, Err: err})
			continue
		}
		po.Order.Ref = strconv.Itoa(s.Number)
		po.Order.SubmittedAt = s.CreatedAt
		valid = append(valid, po)
	}
	return valid, rejected
}

// ParsedOrders is a submission-ordered batch.
type ParsedOrders []ParsedOrder

// Orders drops the notes.
func (ps ParsedOrders) Orders() []model.Order {
	out := make([]model.Order, len(ps))
	for i, p := range ps {
		out[i] = p.Order
	}
	return out
}
