package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/atmx/classroom-exchange/internal/fsutil"
	"github.com/atmx/classroom-exchange/internal/ledger"
	"github.com/atmx/classroom-exchange/internal/model"
)

const (
	portfolioPrefix = "portfolio_"
	portfolioSuffix = ".json"
	tradeLogName    = "trades.jsonl"
)

// FileStore keeps one JSON file per team (portfolio_<team>.json) and the
// trade log as JSON lines (trades.jsonl) in a single directory. Portfolio
// writes are atomic.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) portfolioPath(team string) string {
	return filepath.Join(s.dir, portfolioPrefix+team+portfolioSuffix)
}

func (s *FileStore) LoadPortfolio(_ context.Context, team string) (*ledger.Portfolio, error) {
	if err := ValidateTeam(team); err != nil {
		return nil, err
	}
	return s.readPortfolio(s.portfolioPath(team))
}

func (s *FileStore) readPortfolio(path string) (*ledger.Portfolio, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var p ledger.Portfolio
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptPortfolio, filepath.Base(path), err)
	}
	if p.Team == "" {
		return nil, fmt.Errorf("%w: %s: missing team", ErrCorruptPortfolio, filepath.Base(path))
	}
	p.Normalize()
	return &p, nil
}

func (s *FileStore) SavePortfolio(_ context.Context, p *ledger.Portfolio) error {
	if err := ValidateTeam(p.Team); err != nil {
		return err
	}
	return fsutil.WriteJSON(s.portfolioPath(p.Team), p)
}

func (s *FileStore) ListPortfolios(_ context.Context) ([]*ledger.Portfolio, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []*ledger.Portfolio
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, portfolioPrefix) || !strings.HasSuffix(name, portfolioSuffix) {
			continue
		}
		p, err := s.readPortfolio(filepath.Join(s.dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Team < out[j].Team })
	return out, nil
}

func (s *FileStore) AppendTrades(_ context.Context, entries []model.TradeLogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, _, err := fsutil.OpenAppend(filepath.Join(s.dir, tradeLogName))
	if err != nil {
		return fmt.Errorf("open trade log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("append trade log: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func (s *FileStore) ListTrades(_ context.Context, team string) ([]model.TradeLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Join(s.dir, tradeLogName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var result []model.TradeLogEntry
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e model.TradeLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrCorruptTradeLog, line, err)
		}
		if team == "" || e.Team == team {
			result = append(result, e)
		}
	}
	return result, sc.Err()
}
