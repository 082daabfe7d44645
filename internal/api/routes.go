package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))
			r.Get("/syncs", h.ListSyncs)
			r.Route("/syncs/{sync_id}", func(r chi.Router) {
				r.Post("/import", h.ImportList)
				r.Post("/import/{remote_id}", h.ImportEntity)
				r.Post("/export/{entity_id}", h.Export)
				r.Get("/state/{operation}", h.GetState)
				r.Delete("/state/{operation}/lock", h.Unlock)
				r.Delete("/state/{operation}/last-run", h.ResetRuns)
			})
		})
	})

	return r
}
