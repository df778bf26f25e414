package diag

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/status/ws", s.handleWebSocket)
		r.Get("/journal", s.handleJournal)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	return r
}
