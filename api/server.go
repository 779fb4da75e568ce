/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client IP from X-Forwarded-For / X-Real-IP (rate limiter key)
  3. Logger:     Request logging (zerolog, with request id)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the back-office frontend
  6. RateLimit:  Mutating requests per client IP (/api only)
  7. Auth:       Bearer JWT; API key on the print/email routes only

ROUTE GROUPS:
  /health                     Liveness (public)
  /api/statements/{id}/print  Bearer or API key
  /api/statements/{id}/email  Bearer or API key
  /api/*                      Bearer

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Authentication middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// RouterConfig carries the cross-cutting settings for NewRouter.
type RouterConfig struct {
	Auth           AuthConfig
	RateLimit      int
	RateWindow     time.Duration
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.Log))
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", APIKeyHeader},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit > 0 && cfg.RateWindow > 0 {
			r.Use(NewRateLimiter(cfg.RateLimit, cfg.RateWindow).Middleware)
		}

		// Print/email pipeline: callable by the scheduler and email service.
		r.Group(func(r chi.Router) {
			r.Use(RequireAuthOrAPIKey(cfg.Auth))
			r.Get("/statements/{id}/print", h.PrintStatement)
			r.Post("/statements/{id}/email", h.EmailStatement)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(cfg.Auth))

			r.Route("/clients", func(r chi.Router) {
				r.Get("/", h.ListClients)
				r.Post("/", h.CreateClient)
				r.Get("/{id}", h.GetClient)
				r.Put("/{id}", h.UpdateClient)
				r.Delete("/{id}", h.DeleteClient)
				r.Get("/{id}/balance", h.GetBalance)
				r.Get("/{id}/invoices", h.ListInvoices)
				r.Post("/{id}/invoices", h.RecordInvoice)
				r.Get("/{id}/statements", h.ListStatements)
				r.Get("/{id}/payments", h.ListClientPayments)
			})

			r.Delete("/invoices/{id}", h.DeleteInvoice)

			r.Post("/statements", h.GenerateStatement)
			r.Get("/statements/{id}", h.GetStatement)
			r.Delete("/statements/{id}", h.DeleteStatement)
			r.Get("/statements/{id}/payments", h.ListStatementPayments)

			r.Route("/payments", func(r chi.Router) {
				r.Post("/", h.ApplyPayment)
				r.Get("/{id}", h.GetPayment)
				r.Put("/{id}", h.UpdatePayment)
				r.Delete("/{id}", h.ReversePayment)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Get("/billing-runs", h.ListBillingRuns)
				r.Post("/billing-runs", h.TriggerBillingRun)
			})

			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		})
	})

	return r
}

// requestLogger logs one line per request with the chi request id.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
