package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/classroom-exchange/internal/api"
	"github.com/atmx/classroom-exchange/internal/fsutil"
	"github.com/atmx/classroom-exchange/internal/ledger"
	"github.com/atmx/classroom-exchange/internal/model"
	"github.com/atmx/classroom-exchange/internal/orders"
	"github.com/atmx/classroom-exchange/internal/report"
	"github.com/atmx/classroom-exchange/internal/store"
	"github.com/atmx/classroom-exchange/internal/tick"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

type testEnv struct {
	store   *store.MemoryStore
	queue   *tick.Queue
	siteDir string
	handler http.Handler
}

// newTestEnv creates a Service with an in-memory store behind the full
// router.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	ms := store.NewMemoryStore()
	parser, err := orders.NewParser([]string{"AAA", "BBB"})
	if err != nil {
		t.Fatal(err)
	}
	q := &tick.Queue{}
	site := t.TempDir()
	svc := api.NewService(ms, parser, q, site, d(100000), nil)
	return testEnv{store: ms, queue: q, siteDir: site, handler: api.NewRouter(svc, nil, nil)}
}

func (e testEnv) do(t *testing.T, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e testEnv) writePrices(t *testing.T, closes map[string]float64) {
	t.Helper()
	ts := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	snap := report.PricesSnapshot{Timestamp: &ts, Regime: model.RegimeBull}
	for ticker, px := range closes {
		snap.Rows = append(snap.Rows, report.PriceRow{Ticker: ticker, Close: px})
	}
	if err := fsutil.WriteJSON(filepath.Join(e.siteDir, api.PricesFile), snap); err != nil {
		t.Fatal(err)
	}
}

func TestSubmitOrder_Queued(t *testing.T) {
	env := newTestEnv(t)
	body, _ := json.Marshal(api.OrderRequest{
		Team: "alpha", Ticker: "aaa", Side: "buy", Qty: 10, OrderType: "market",
	})

	w := env.do(t, http.MethodPost, "/api/v1/orders", body)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.OrderAccepted
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Order.Ticker != "AAA" || resp.Order.Side != model.SideBuy || resp.Order.Ref == "" {
		t.Errorf("unexpected order: %+v", resp.Order)
	}
	if resp.Pending != 1 || env.queue.Len() != 1 {
		t.Errorf("expected one pending order, got %d/%d", resp.Pending, env.queue.Len())
	}
}

func TestSubmitOrder_Rejected(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{"team":`, http.StatusBadRequest},
		{"oversized body", `{"team":"alpha","notes":"` + strings.Repeat("x", 70<<10) + `"}`, http.StatusBadRequest},
		{"unknown ticker", `{"team":"alpha","ticker":"ZZZ","side":"BUY","qty":1,"order_type":"MARKET"}`, http.StatusUnprocessableEntity},
		{"zero qty", `{"team":"alpha","ticker":"AAA","side":"BUY","qty":0,"order_type":"MARKET"}`, http.StatusUnprocessableEntity},
		{"limit without price", `{"team":"alpha","ticker":"AAA","side":"BUY","qty":1,"order_type":"LIMIT"}`, http.StatusUnprocessableEntity},
		{"path in team", `{"team":"../x","ticker":"AAA","side":"BUY","qty":1,"order_type":"MARKET"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/orders", []byte(tt.body))
			if w.Code != tt.code {
				t.Errorf("expected %d, got %d: %s", tt.code, w.Code, w.Body.String())
			}
			var resp map[string]string
			json.NewDecoder(w.Body).Decode(&resp)
			if resp["error"] == "" {
				t.Error("expected an error message")
			}
		})
	}
	if env.queue.Len() != 0 {
		t.Errorf("rejected orders must not be queued, got %d", env.queue.Len())
	}
}

func TestSubmitIssue(t *testing.T) {
	env := newTestEnv(t)
	body := strings.Join([]string{
		"### Team name", "beta", "",
		"### Side", "SELL", "",
		"### Ticker", "BBB", "",
		"### Quantity (shares)", "5", "",
		"### Order type", "LIMIT", "",
		"### Limit price (only if LIMIT)", "42.5", "",
		"### Notes (optional)", "trim", "",
	}, "\n")

	w := env.do(t, http.MethodPost, "/api/v1/orders/issue", []byte(body))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.OrderAccepted
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Order.Type != model.OrderLimit || resp.Order.LimitPrice == nil || !resp.Order.LimitPrice.Equal(d(42.5)) {
		t.Errorf("unexpected order: %+v", resp.Order)
	}
	if resp.Notes != "trim" {
		t.Errorf("expected notes to round-trip, got %q", resp.Notes)
	}
}

func TestSnapshots(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/api/v1/prices", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 before the first tick, got %d", w.Code)
	}

	env.writePrices(t, map[string]float64{"AAA": 110})
	w := env.do(t, http.MethodGet, "/api/v1/prices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var snap report.PricesSnapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if len(snap.Rows) != 1 || snap.Rows[0].Close != 110 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestGetPortfolio(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if w := env.do(t, http.MethodGet, "/api/v1/portfolio/alpha", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown team, got %d", w.Code)
	}

	p := ledger.New("alpha", d(100000))
	if err := p.Buy("AAA", 10, d(100), d(1)); err != nil {
		t.Fatal(err)
	}
	if err := env.store.SavePortfolio(ctx, p); err != nil {
		t.Fatal(err)
	}
	env.writePrices(t, map[string]float64{"AAA": 110, "BBB": 50})

	w := env.do(t, http.MethodGet, "/api/v1/portfolio/alpha", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.PortfolioResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	// 100000 - 10*100 - 1 fee + 10*110
	if !resp.NAV.Equal(d(100099)) {
		t.Errorf("expected NAV 100099, got %s", resp.NAV)
	}
	if !resp.TotalPnL.Equal(d(99)) {
		t.Errorf("expected total P&L 99, got %s", resp.TotalPnL)
	}
	if len(resp.Positions) != 1 || resp.Positions[0].Ticker != "AAA" || resp.AsOf == nil {
		t.Errorf("unexpected positions: %+v", resp.Positions)
	}
}

func TestListTrades_FilterByTeam(t *testing.T) {
	env := newTestEnv(t)
	ts := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	err := env.store.AppendTrades(context.Background(), []model.TradeLogEntry{
		{ID: "1", Timestamp: ts, Team: "alpha", Ticker: "AAA", Side: model.SideBuy, Qty: 1, Status: model.StatusFilled},
		{ID: "2", Timestamp: ts, Team: "beta", Ticker: "BBB", Side: model.SideBuy, Qty: 1, Status: model.StatusFilled},
	})
	if err != nil {
		t.Fatal(err)
	}

	w := env.do(t, http.MethodGet, "/api/v1/trades?team=beta", nil)
	var entries []model.TradeLogEntry
	json.NewDecoder(w.Body).Decode(&entries)
	if len(entries) != 1 || entries[0].ID != "2" {
		t.Errorf("expected beta's trade only, got %+v", entries)
	}

	w = env.do(t, http.MethodGet, "/api/v1/trades", nil)
	json.NewDecoder(w.Body).Decode(&entries)
	if len(entries) != 2 {
		t.Errorf("expected both trades, got %d", len(entries))
	}
}

func TestHealthAndCORS(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard CORS origin, got %q", got)
	}
}

func TestOriginChecker(t *testing.T) {
	if api.OriginChecker(nil) != nil || api.OriginChecker([]string{"*"}) != nil {
		t.Error("open policies should accept any origin")
	}
	check := api.OriginChecker([]string{"https://a.example"})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
	req.Header.Set("Origin", "https://a.example")
	if !check(req) {
		t.Error("listed origin rejected")
	}
	req.Header.Set("Origin", "https://evil.example")
	if check(req) {
		t.Error("unlisted origin accepted")
	}
}

func TestTickMessage(t *testing.T) {
	res := &tick.Result{
		Timestamp: time.Date(2025, 1, 6, 11, 0, 0, 0, time.UTC),
		Regime:    model.RegimeBear,
		Trades:    make([]model.TradeLogEntry, 3),
	}
	msg := api.TickMessage(res)
	if msg.Type != api.MsgTick || msg.Trades != 3 || msg.Regime != model.RegimeBear || !msg.Timestamp.Equal(res.Timestamp) {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestSubmitOrder_DisabledWithoutQueue(t *testing.T) {
	parser, err := orders.NewParser([]string{"AAA"})
	if err != nil {
		t.Fatal(err)
	}
	svc := api.NewService(store.NewMemoryStore(), parser, nil, t.TempDir(), d(100000), nil)
	h := api.NewRouter(svc, nil, nil)

	body := []byte(`{"team":"alpha","ticker":"AAA","side":"BUY","qty":1,"order_type":"MARKET"}`)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body)))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("health must not depend on the queue, got %d", w.Code)
	}
}
