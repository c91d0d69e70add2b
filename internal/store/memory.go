package store

import (
	"context"
	"sort"
	"sync"

	"github.com/atmx/classroom-exchange/internal/ledger"
	"github.com/atmx/classroom-exchange/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	portfolios map[string]*ledger.Portfolio
	trades     []model.TradeLogEntry
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		portfolios: make(map[string]*ledger.Portfolio),
	}
}

func (s *MemoryStore) LoadPortfolio(_ context.Context, team string) (*ledger.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.portfolios[team]
	if !ok {
		return nil, ErrNotFound
	}
	// Hand out a copy so callers cannot mutate stored state.
	return p.Clone(), nil
}

func (s *MemoryStore) SavePortfolio(_ context.Context, p *ledger.Portfolio) error {
	if err := ValidateTeam(p.Team); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.portfolios[p.Team] = p.Clone()
	return nil
}

func (s *MemoryStore) ListPortfolios(_ context.Context) ([]*ledger.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ledger.Portfolio, 0, len(s.portfolios))
	for _, p := range s.portfolios {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Team < out[j].Team })
	return out, nil
}

func (s *MemoryStore) AppendTrades(_ context.Context, entries []model.TradeLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, entries...)
	return nil
}

func (s *MemoryStore) ListTrades(_ context.Context, team string) ([]model.TradeLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeLogEntry
	for _, e := range s.trades {
		if team == "" || e.Team == team {
			result = append(result, e)
		}
	}
	return result, nil
}
