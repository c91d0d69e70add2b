// Package api serves the exchange over HTTP: dashboard snapshots, team
// portfolios, the trade log, and order submission between ticks.
//
// Orders posted here are queued, not executed. They fill at the next tick's
// bar like orders that arrive as issues.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/ledger"
	"github.com/atmx/classroom-exchange/internal/metrics"
	"github.com/atmx/classroom-exchange/internal/model"
	"github.com/atmx/classroom-exchange/internal/orders"
	"github.com/atmx/classroom-exchange/internal/report"
	"github.com/atmx/classroom-exchange/internal/store"
	"github.com/atmx/classroom-exchange/internal/tick"
)

// Snapshot file names under the site data directory.
const (
	PricesFile      = "latest_prices.json"
	NewsFile        = "latest_news.json"
	LeaderboardFile = "leaderboard.json"
)

// maxRequestBody caps order submission request bodies.
const maxRequestBody = 64 << 10

// Service handles read and submission requests. Reads go straight to the
// store and the snapshot files the tick writes, so several API processes can
// serve one exchange.
type Service struct {
	store       store.Store
	parser      *orders.Parser
	queue       *tick.Queue
	siteDir     string
	initialCash decimal.Decimal
	wsHub       *WSHub // optional
}

// NewService creates the API service. Pass nil for hub if WebSocket
// broadcasting is not needed. A nil queue disables order submission, for
// processes that do not run ticks.
func NewService(st store.Store, parser *orders.Parser, queue *tick.Queue, siteDir string, initialCash decimal.Decimal, hub *WSHub) *Service {
	return &Service{
		store:       st,
		parser:      parser,
		queue:       queue,
		siteDir:     siteDir,
		initialCash: initialCash,
		wsHub:       hub,
	}
}

// --- Request/Response types ---

// OrderRequest is the JSON body for POST /orders.
type OrderRequest struct {
	Team       string           `json:"team"`
	Ticker     string           `json:"ticker"`
	Side       string           `json:"side"`
	Qty        int64            `json:"qty"`
	OrderType  string           `json:"order_type"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	Notes      string           `json:"notes,omitempty"`
}

// OrderAccepted is returned for a queued order.
type OrderAccepted struct {
	Order   model.Order `json:"order"`
	Notes   string      `json:"notes,omitempty"`
	Pending int         `json:"pending"`
}

// PortfolioResponse is one team's portfolio valued at the latest closes.
type PortfolioResponse struct {
	Team          string               `json:"team"`
	AsOf          *time.Time           `json:"as_of"`
	Cash          decimal.Decimal      `json:"cash"`
	NAV           decimal.Decimal      `json:"nav"`
	RealizedPnL   decimal.Decimal      `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal      `json:"unrealized_pnl"`
	TotalPnL      decimal.Decimal      `json:"total_pnl"`
	TotalReturn   decimal.Decimal      `json:"total_return"`
	Positions     []report.PositionRow `json:"positions"`
}

// --- Handlers ---

// GetPrices handles GET /api/v1/prices
func (s *Service) GetPrices(w http.ResponseWriter, r *http.Request) {
	s.serveSnapshot(w, PricesFile)
}

// GetNews handles GET /api/v1/news
func (s *Service) GetNews(w http.ResponseWriter, r *http.Request) {
	s.serveSnapshot(w, NewsFile)
}

// GetLeaderboard handles GET /api/v1/leaderboard
func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	s.serveSnapshot(w, LeaderboardFile)
}

// GetPortfolio handles GET /api/v1/portfolio/{team}
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	team := chi.URLParam(r, "team")
	if err := store.ValidateTeam(team); err != nil {
		writeError(w, "invalid team name", http.StatusBadRequest)
		return
	}

	p, err := s.store.LoadPortfolio(r.Context(), team)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "portfolio not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("load portfolio failed", "team", team, "err", err)
		writeError(w, "failed to load portfolio", http.StatusInternalServerError)
		return
	}

	snap, err := s.latestPrices()
	if err != nil {
		slog.Error("read price snapshot failed", "err", err)
		writeError(w, "failed to load prices", http.StatusInternalServerError)
		return
	}
	closes := make(map[string]decimal.Decimal, len(snap.Rows))
	for _, row := range snap.Rows {
		closes[row.Ticker] = decimal.NewFromFloat(row.Close)
	}

	var date string
	if snap.Timestamp != nil {
		date = snap.Timestamp.Format(time.DateOnly)
	}
	single := []*ledger.Portfolio{p}
	pnl := report.BuildPnL(single, closes, date, s.initialCash)[0]

	writeJSON(w, http.StatusOK, PortfolioResponse{
		Team:          p.Team,
		AsOf:          snap.Timestamp,
		Cash:          pnl.Cash,
		NAV:           pnl.NAV,
		RealizedPnL:   pnl.RealizedPnL,
		UnrealizedPnL: pnl.UnrealizedPnL,
		TotalPnL:      pnl.TotalPnL,
		TotalReturn:   pnl.TotalReturn,
		Positions:     report.BuildPositions(single, closes, date),
	})
}

// ListTrades handles GET /api/v1/trades?team=
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListTrades(r.Context(), r.URL.Query().Get("team"))
	if err != nil {
		slog.Error("list trades failed", "err", err)
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.TradeLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// SubmitOrder handles POST /api/v1/orders
func (s *Service) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, "order submission disabled", http.StatusServiceUnavailable)
		return
	}
	var req OrderRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	o, err := s.parser.Build(req.Team, req.Side, req.Ticker, req.Qty, req.OrderType, req.LimitPrice)
	if err != nil {
		metrics.InvalidSubmissions.Inc()
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.enqueue(w, orders.ParsedOrder{Order: o, Notes: req.Notes})
}

// SubmitIssue handles POST /api/v1/orders/issue. The body is an issue-form
// markdown document, as a participant would file it.
func (s *Service) SubmitIssue(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, "order submission disabled", http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	parsed, err := s.parser.Parse(string(body))
	if err != nil {
		metrics.InvalidSubmissions.Inc()
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.enqueue(w, parsed)
}

func (s *Service) enqueue(w http.ResponseWriter, parsed orders.ParsedOrder) {
	o := parsed.Order
	if err := store.ValidateTeam(o.Team); err != nil {
		metrics.InvalidSubmissions.Inc()
		writeError(w, "invalid team name", http.StatusUnprocessableEntity)
		return
	}
	o.Ref = uuid.New().String()
	o.SubmittedAt = time.Now().UTC()
	s.queue.Submit(o)
	pending := s.queue.Len()

	slog.Info("order queued",
		"team", o.Team,
		"ticker", o.Ticker,
		"side", o.Side,
		"qty", o.Qty,
		"type", o.Type,
		"ref", o.Ref,
		"pending", pending,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{Type: MsgOrderQueued, Team: o.Team, Pending: pending})
	}

	writeJSON(w, http.StatusAccepted, OrderAccepted{Order: o, Notes: parsed.Notes, Pending: pending})
}

// Health handles GET /health
func (s *Service) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "service": "exchange"}
	if s.queue != nil {
		resp["pending_orders"] = s.queue.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

// serveSnapshot streams a snapshot file as written by the last tick.
func (s *Service) serveSnapshot(w http.ResponseWriter, name string) {
	data, err := os.ReadFile(filepath.Join(s.siteDir, name))
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, "no tick has run yet", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("read snapshot failed", "file", name, "err", err)
		writeError(w, "failed to load snapshot", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// latestPrices reads the price snapshot; a missing file is an empty one.
func (s *Service) latestPrices() (report.PricesSnapshot, error) {
	var snap report.PricesSnapshot
	data, err := os.ReadFile(filepath.Join(s.siteDir, PricesFile))
	if errors.Is(err, os.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	err = json.Unmarshal(data, &snap)
	return snap, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
