// Package ops exposes the operational HTTP surface: health, per-category
// cycle status, and a manual run trigger.
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/lzhou1110/boardwatch/internal/core"
	"github.com/lzhou1110/boardwatch/internal/observability"
)

// runTimeout bounds a manually triggered cycle. Generous on purpose: a full
// cycle fetches several pages with per-host delays between them.
const runTimeout = 10 * time.Minute

type Server struct {
	router *chi.Mux
	sched  *core.Scheduler
	srv    *http.Server
	logger *slog.Logger
	runCtx context.Context
}

// NewServer builds the ops surface. runCtx scopes manually triggered cycles
// to the process lifetime rather than the HTTP request, so a client
// disconnect cannot abort a cycle mid-flight.
func NewServer(runCtx context.Context, sched *core.Scheduler, addr string, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		sched:  sched,
		logger: logger,
		runCtx: runCtx,
	}
	s.setupRoutes()
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Post("/categories/{name}/run", s.handleRun)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"time":       time.Now(),
		"categories": s.sched.Status(),
		"stats":      observability.Snapshot(),
	})
}

// handleRun triggers a single cycle for one category, the API twin of the
// -once flag.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx, cancel := context.WithTimeout(s.runCtx, runTimeout)
	defer cancel()
	res, err := s.sched.RunOnce(ctx, name)
	switch {
	case errors.Is(err, core.ErrUnknownCategory):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, core.ErrCycleInFlight):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("manual cycle failed", "category", name,
			"kind", observability.ClassifyCycleError(err), "error", err)
		respondJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"result": res,
		})
	default:
		respondJSON(w, http.StatusOK, map[string]any{"result": res})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
