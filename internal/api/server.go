package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/session"
	"github.com/Wilson0406/Self-Improving-LLM-Agent/internal/store"
)

type Server struct {
	router *chi.Mux
	port   int
	ctrl   *session.Controller
	db     *store.Store
	logger *slog.Logger
}

func NewServer(port int, ctrl *session.Controller, db *store.Store, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		ctrl:   ctrl,
		db:     db,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/extractd/status", s.status)
	router.Post("/api/v1/documents", s.upload)
	router.Post("/api/v1/documents/feedback", s.feedback)
	router.Post("/api/v1/prompts/save", s.savePrompt)
	router.Get("/api/v1/documents/export", s.export)
	router.Get("/api/v1/session", s.sessionInfo)

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// Router exposes the handler, used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	connected := false
	if s.db != nil {
		connected = s.db.TestConnection(r.Context())
	}
	snap := s.ctrl.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"service":            "extractd",
		"database_connected": connected,
		"database_offline":   snap.Offline,
		"session_active":     snap.Active,
	})
}

func (s *Server) sessionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError maps controller failures: input errors are the caller's fault,
// everything else is a collaborator failure with the stage in the message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, session.ErrInvalidInput) {
		status = http.StatusBadRequest
	}
	s.logger.Warn("request failed", "status", status, "error", err)
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
