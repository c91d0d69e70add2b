// Package metrics provides Prometheus instrumentation for the exchange.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atmx/classroom-exchange/internal/model"
)

var (
	// TicksTotal counts completed ticks by outcome (ok, error, skipped).
	TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_ticks_total",
		Help: "Total number of exchange ticks",
	}, []string{"outcome"})

	TickLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "exchange_tick_duration_seconds",
		Help:    "Wall time of one tick: step, execution and reporting",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	BarsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_bars_total",
		Help: "Total number of simulated bars emitted",
	})

	// NewsTotal counts news events by sentiment.
	NewsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_news_total",
		Help: "Total number of simulated news events",
	}, []string{"sentiment"})

	// OrdersTotal counts attempted orders by trade-log status.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_orders_total",
		Help: "Total number of attempted orders by outcome status",
	}, []string{"status"})

	// InvalidSubmissions counts submissions that failed order parsing.
	InvalidSubmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "exchange_invalid_submissions_total",
		Help: "Submissions rejected by the order parser",
	})

	// Regime is 1 for the current market regime and 0 for the others.
	Regime = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "exchange_regime",
		Help: "Current market regime (1 = active)",
	}, []string{"regime"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "exchange_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "exchange_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "exchange_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveStep records the bars and news of one simulation step.
func ObserveStep(bars []model.Bar, news []model.NewsEvent, regime model.Regime) {
	BarsTotal.Add(float64(len(bars)))
	for _, ev := range news {
		NewsTotal.WithLabelValues(ev.Sentiment).Inc()
	}
	SetRegime(regime)
}

// SetRegime marks regime as the active one.
func SetRegime(regime model.Regime) {
	for _, r := range model.Regimes {
		v := 0.0
		if r == regime {
			v = 1
		}
		Regime.WithLabelValues(string(r)).Set(v)
	}
}

// ObserveTrades counts trade log entries by status.
func ObserveTrades(entries []model.TradeLogEntry) {
	for _, e := range entries {
		OrdersTotal.WithLabelValues(string(e.Status)).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Label by route pattern so /portfolio/{team} is one series.
		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if pattern := rc.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
