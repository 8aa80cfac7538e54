package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SessionCounter reports the number of live audio sessions.
type SessionCounter interface {
	SessionCount() int
}

// NewRouter serves the MCP streamable HTTP endpoint at mcpPath next to a health check.
func NewRouter(mcpHandler http.Handler, mcpPath string, sessions SessionCounter) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"transport": "http",
			"sessions":  sessions.SessionCount(),
		})
	})

	// Streamable HTTP uses POST for requests, GET for the SSE stream and DELETE to end a session.
	r.Handle(mcpPath, mcpHandler)

	return r
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}
