/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request, echoed in logs
  2. RealIP:        Client address from X-Forwarded-For / X-Real-IP
  3. RequestLogger: slog line per request
  4. Metrics:       Prometheus counters and latency (when enabled)
  5. Recoverer:     Panic recovery (500 instead of crash)
  6. CORS:          Cross-origin requests for browser clients

ROUTE GROUPS:
  /points/user[/{userID}]   Ledger operations
  /points/users             User provisioning
  /points/payers            Payer provisioning
  /healthz                  Liveness
  /metrics                  Prometheus scrape (path configurable)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures the parts of the router that vary by deployment.
type RouterOptions struct {
	AllowedOrigins []string

	// Metrics is optional. When set, requests are instrumented and the
	// registry is served at MetricsPath.
	Metrics     *Metrics
	MetricsPath string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	r.Route("/points", func(r chi.Router) {
		// Ledger routes, with and without an explicit user
		r.Route("/user", func(r chi.Router) {
			r.Get("/", h.GetBalances)
			r.Post("/", h.AddTransaction)
			r.Patch("/", h.SpendPoints)

			r.Route("/{userID}", func(r chi.Router) {
				r.Get("/", h.GetBalances)
				r.Post("/", h.AddTransaction)
				r.Patch("/", h.SpendPoints)
				r.Get("/transactions", h.GetTransactions)
			})
		})

		r.Post("/users", h.CreateUser)

		r.Route("/payers", func(r chi.Router) {
			r.Get("/", h.ListPayers)
			r.Post("/", h.CreatePayer)
		})
	})

	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil && opts.MetricsPath != "" {
		r.Method(http.MethodGet, opts.MetricsPath, opts.Metrics.Handler())
	}

	return r
}
