package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// metricsHandler is implemented by recorders that can be scraped.
type metricsHandler interface {
	Handler() http.Handler
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	if m, ok := s.k.Metrics.(metricsHandler); ok {
		r.Handle("/metrics", m.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", s.handlePing)
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", s.handleListItems)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetItem)
				r.Get("/states", s.handleGetStates)
				r.Post("/states", s.handleSetStates)
				r.Post("/states/{state}", s.handleSetState)
				r.Post("/actions/{action}", s.handleRunAction)
			})
		})

		r.Get("/modules", s.handleListModules)
		r.Post("/config/reload", s.handleReloadConfig)

		r.Get("/history/{id}", s.handleGetHistory)

		r.Route("/scenes", func(r chi.Router) {
			r.Get("/", s.handleListScenes)
			r.Get("/{alias}", s.handleGetScene)
			r.Post("/{alias}/activate", s.handleActivateScene)
		})

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
