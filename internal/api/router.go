package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/atmx/classroom-exchange/internal/metrics"
)

// NewRouter mounts the service and hub. An empty origins list allows any
// origin. hub may be nil.
func NewRouter(svc *Service, hub *WSHub, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/health", svc.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}

		// Dashboard snapshots, rewritten every tick.
		r.Get("/prices", svc.GetPrices)
		r.Get("/news", svc.GetNews)
		r.Get("/leaderboard", svc.GetLeaderboard)

		r.Get("/portfolio/{team}", svc.GetPortfolio)
		r.Get("/trades", svc.ListTrades)

		// Orders queue for the next tick.
		r.Post("/orders", svc.SubmitOrder)
		r.Post("/orders/issue", svc.SubmitIssue)
	})

	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	}).Handler(r)
}

// OriginChecker returns a WebSocket origin check matching the CORS policy.
func OriginChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return nil
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
