package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/classroom-exchange/internal/ledger"
	"github.com/atmx/classroom-exchange/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for portfolios. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) SavePortfolio(ctx context.Context, p *ledger.Portfolio) error {
	if err := s.primary.SavePortfolio(ctx, p); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	if err := s.rdb.Del(ctx, portfolioKey(p.Team)).Err(); err != nil {
		slog.Warn("portfolio cache invalidation failed", "team", p.Team, "error", err)
	}
	return nil
}

func (s *CachedStore) AppendTrades(ctx context.Context, entries []model.TradeLogEntry) error {
	return s.primary.AppendTrades(ctx, entries)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) LoadPortfolio(ctx context.Context, team string) (*ledger.Portfolio, error) {
	data, err := s.rdb.Get(ctx, portfolioKey(team)).Bytes()
	if err == nil {
		var p ledger.Portfolio
		if json.Unmarshal(data, &p) == nil {
			p.Normalize()
			return &p, nil
		}
	}

	// Cache miss: read from primary.
	p, err := s.primary.LoadPortfolio(ctx, team)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, portfolioKey(team), data, s.ttl)
	}
	return p, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPortfolios(ctx context.Context) ([]*ledger.Portfolio, error) {
	return s.primary.ListPortfolios(ctx)
}

func (s *CachedStore) ListTrades(ctx context.Context, team string) ([]model.TradeLogEntry, error) {
	return s.primary.ListTrades(ctx, team)
}

func portfolioKey(team string) string { return fmt.Sprintf("portfolio:%s", team) }

// unlockLua deletes the lock key only if it still holds the caller's token.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// TickLock serializes ticks across processes sharing one Redis using SETNX
// with a TTL and a token-checked unlock.
type TickLock struct {
	rdb    *redis.Client
	key    string
	ttl    time.Duration
	unlock *redis.Script
}

// NewTickLock creates a lock on key held for at most ttl.
func NewTickLock(rdb *redis.Client, key string, ttl time.Duration) *TickLock {
	return &TickLock{
		rdb:    rdb,
		key:    "lock:" + key,
		ttl:    ttl,
		unlock: redis.NewScript(unlockLua),
	}
}

// Acquire takes the lock or returns ErrLockHeld. The returned release
// function is safe to call more than once.
func (l *TickLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.New().String()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", l.key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// Background context so release works after the caller's context
		// is cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.unlock.Run(ctx, l.rdb, []string{l.key}, token).Err(); err != nil {
			slog.Warn("tick lock release failed", "key", l.key, "error", err)
		}
	}, nil
}
