// Package store defines the persistence interface for team portfolios and
// the trade log. Implementations include JSON files (the classroom default),
// PostgreSQL, a Redis read-through cache, and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/ledger"
	"github.com/atmx/classroom-exchange/internal/model"
)

var (
	ErrNotFound         = errors.New("store: portfolio not found")
	ErrCorruptPortfolio = errors.New("store: corrupt portfolio")
	ErrCorruptTradeLog  = errors.New("store: corrupt trade log")
	ErrInvalidTeam      = errors.New("store: invalid team name")
	ErrLockHeld         = errors.New("store: tick lock held")
)

// Store persists one portfolio record per team and an append-only trade log.
type Store interface {
	// LoadPortfolio returns the team's portfolio or ErrNotFound.
	LoadPortfolio(ctx context.Context, team string) (*ledger.Portfolio, error)

	// SavePortfolio overwrites the team's portfolio record.
	SavePortfolio(ctx context.Context, p *ledger.Portfolio) error

	// ListPortfolios returns every stored portfolio sorted by team.
	ListPortfolios(ctx context.Context) ([]*ledger.Portfolio, error)

	// AppendTrades appends entries to the trade log in order.
	AppendTrades(ctx context.Context, entries []model.TradeLogEntry) error

	// ListTrades returns the trade log in append order, filtered to team
	// unless team is empty.
	ListTrades(ctx context.Context, team string) ([]model.TradeLogEntry, error)
}

// LoadOrNew loads the team's portfolio, or starts a fresh one holding
// initialCash when the team has none yet.
func LoadOrNew(ctx context.Context, s Store, team string, initialCash decimal.Decimal) (*ledger.Portfolio, error) {
	p, err := s.LoadPortfolio(ctx, team)
	if errors.Is(err, ErrNotFound) {
		return ledger.New(team, initialCash), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load portfolio %s: %w", team, err)
	}
	return p, nil
}

// ValidateTeam rejects names that cannot serve as a storage key.
func ValidateTeam(team string) error {
	if strings.TrimSpace(team) == "" || team == "." || team == ".." || strings.ContainsAny(team, `/\`+"\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidTeam, team)
	}
	return nil
}
