package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/agentdeck/agentdeck/internal/config"
)

// NewRouter builds the chi router with middleware and all API routes.
func NewRouter(h *Handlers, cfg config.Server) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(SecurityHeaders)
	r.Use(CORS(cfg.CORSOrigin))

	r.Get("/health", h.Health)
	// No timeout here: WebSocket connections are long-lived.
	r.Get("/ws", h.hub.HandleWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.Timeout(60 * time.Second))
		if cfg.RateLimitRPS > 0 {
			rl := NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
			rl.StartCleanup(time.Minute, 10*time.Minute)
			r.Use(rl.Handler)
		}
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Projects
		r.Get("/projects", h.ListProjects)
		r.Post("/projects", h.CreateProject)
		r.Get("/projects/{id}", h.GetProject)
		r.Delete("/projects/{id}", h.DeleteProject)
		r.Put("/projects/{id}/rules", h.UpdateRules)

		// Run lifecycle (nested under projects; one run per project)
		r.Post("/projects/{id}/run/start", h.StartRun)
		r.Post("/projects/{id}/run/continue", h.ContinueRun)
		r.Post("/projects/{id}/run/confirm-plan", h.ConfirmPlan)
		r.Post("/projects/{id}/run/modify-plan", h.ModifyPlan)
		r.Get("/projects/{id}/run/logs", h.RunLogs)

		// PR validation
		r.Post("/projects/{id}/validate-pr", h.ValidatePR)

		// Observability
		r.Get("/metrics/remote", h.RemoteMetrics)
	})

	return r
}
