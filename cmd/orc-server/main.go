// Command orc-server exposes the facade's operations as JSON endpoints for
// callers that want to drive the engine remotely without the CLI. It is a
// second thin transport over internal/facade, analogous to cmd/orc, and
// holds no orchestration logic of its own.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/tapps-dev/orc-engine/internal/artifact"
	"github.com/tapps-dev/orc-engine/internal/clock"
	"github.com/tapps-dev/orc-engine/internal/dispatch"
	"github.com/tapps-dev/orc-engine/internal/executor"
	"github.com/tapps-dev/orc-engine/internal/facade"
	"github.com/tapps-dev/orc-engine/internal/statestore"
	"github.com/tapps-dev/orc-engine/internal/workflow"
)

type server struct {
	facade *facade.Facade
	log    *zap.Logger
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	f, err := buildFacade(logger)
	if err != nil {
		logger.Fatal("building facade", zap.Error(err))
	}
	srv := &server{facade: f, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1/workflows", func(r chi.Router) {
		r.Post("/", srv.handleRun)
		r.Get("/", srv.handleList)
		r.Get("/{workflowID}", srv.handleShow)
		r.Post("/{workflowID}/resume", srv.handleResume)
		r.Post("/{workflowID}/cancel", srv.handleCancel)
	})
	r.Post("/api/v1/cleanup", srv.handleCleanup)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	addr := ":" + envOr("ORC_SERVER_PORT", "8080")
	httpServer := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("orc-server listening", zap.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildFacade(logger *zap.Logger) (*facade.Facade, error) {
	projectRoot, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	stateDir := os.Getenv("TAPPS_STATE_DIR")
	if stateDir == "" {
		stateDir = filepath.Join(projectRoot, ".orc", "state")
	}

	store, err := statestore.NewFileStore(stateDir)
	if err != nil {
		return nil, err
	}
	locker := statestore.NewFileLocker(stateDir)
	artifacts := artifact.NewRegistry(projectRoot, filepath.Join(".orc", "artifacts"), nil)

	clk := clock.NewSystemClock()
	scriptDispatcher := dispatch.NewScriptDispatcher(clk, projectRoot, filepath.Join(projectRoot, ".orc", "capability-output"))
	reg := dispatch.NewRegistry()
	for role := range workflow.AgentRoles {
		if err := reg.Bind(role, scriptDispatcher); err != nil {
			return nil, err
		}
	}

	exec := executor.New(store, locker, artifacts, reg, clk, logger)
	return facade.New(exec, store, clock.NewIDGenerator(clk), logger), nil
}

func allowedOrigins() []string {
	v := os.Getenv("ORC_CORS_ORIGINS")
	if v == "" {
		return []string{"*"}
	}
	return []string{v}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type runRequest struct {
	DefinitionYAML string            `json:"definition_yaml"`
	Prompt         string            `json:"prompt"`
	Overrides      map[string]string `json:"overrides"`
}

type resumeRequest struct {
	DefinitionYAML string `json:"definition_yaml"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	def, err := workflow.Parse([]byte(req.DefinitionYAML))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.facade.Run(r.Context(), def, req.Prompt, req.Overrides)
	if res == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleResume(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	def, err := workflow.Parse([]byte(req.DefinitionYAML))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.facade.Resume(r.Context(), def, workflowID)
	if res == nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	changed, err := s.facade.Cancel(r.Context(), workflowID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": changed})
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.facade.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *server) handleShow(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")
	st, err := s.facade.Show(r.Context(), workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("workflow %s not found: %w", workflowID, err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var policy statestore.RetentionPolicy
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	removed, err := s.facade.Cleanup(r.Context(), policy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
