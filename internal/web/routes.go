package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-curator/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	runsHandler := handlers.NewRunsHandler(s.config, s.jobManager, s.journal, s.logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", runsHandler.Start)
		r.Get("/runs", runsHandler.List)
		r.Get("/runs/{runId}", runsHandler.Get)
		r.Get("/runs/{runId}/events", runsHandler.Events)
		r.Get("/runs/{runId}/decisions", runsHandler.Decisions)
		r.Post("/runs/{runId}/cancel", runsHandler.Cancel)
	})
}
