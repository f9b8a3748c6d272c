// Package api implements the staff-facing HTTP API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scope-engine/scope-assistant/internal/buildinfo"
	"github.com/scope-engine/scope-assistant/internal/session"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	listen   string
	sessions *session.Manager
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates an API server over the session manager.
func NewServer(listen string, sessions *session.Manager, logger *slog.Logger) *Server {
	return &Server{
		listen:   listen,
		sessions: sessions,
		logger:   logger,
	}
}

// Handler builds the route mux. Split from Start so tests can drive it
// through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/chat", s.handleChat)
	mux.HandleFunc("GET /api/v1/version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // a turn can span several model calls
	}

	s.logger.Info("starting API server", "listen", s.listen)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "scope-assistant",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// ChatRequest is the inbound chat message.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// ChatResponse mirrors session.Result on the wire, plus the optional
// rendered HTML body.
type ChatResponse struct {
	Response     string `json:"response"`
	SessionID    string `json:"session_id"`
	HasToolCalls bool   `json:"has_tool_calls"`
	HTML         string `json:"html,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]string{"error": "invalid JSON body"}, s.logger)
		return
	}

	// Turn failures surface as classified text inside a well-formed
	// result, never as a transport error.
	result := s.sessions.Process(r.Context(), req.SessionID, req.Message)

	resp := ChatResponse{
		Response:     result.Response,
		SessionID:    result.SessionID,
		HasToolCalls: result.HasToolCalls,
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "html") {
		html, err := renderMarkdown(result.Response)
		if err != nil {
			s.logger.Warn("markdown rendering failed", "error", err)
		} else {
			resp.HTML = html
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}
