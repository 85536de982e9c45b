package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.metrics.Middleware(routePattern))
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/commands", s.handleDeviceCommand)
			})
		})

		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", s.handleListScenes)
			r.Post("/{id}/execute", s.handleExecuteScene)
		})

		r.Get("/areas", s.handleListAreas)
		r.Get("/adapters", s.handleListAdapters)
		r.Get("/audit", s.handleListAudit)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// routePattern labels metrics by route template so device IDs do not
// explode label cardinality.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
