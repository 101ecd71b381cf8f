// Package server provides the HTTP API of the job evaluator.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/gateway"
	"github.com/jonathan/job-evaluator/internal/logger"
	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/server/middleware"
	"github.com/jonathan/job-evaluator/internal/types"
)

// Evaluator is the part of the orchestrator the API reads and starts runs through
type Evaluator interface {
	CreateJob(ctx context.Context, in types.JobIntake) (*types.Job, error)
	StartRun(ctx context.Context, jobID uuid.UUID, cfg types.RunConfig) (*types.Run, error)
	Status(ctx context.Context, jobID uuid.UUID) (*pipeline.Status, error)
	Interview(ctx context.Context, jobID uuid.UUID) (*types.Interview, error)
	Artifacts(ctx context.Context, runID uuid.UUID) ([]types.Artifact, error)
}

// Resumer applies checkpoint decisions
type Resumer interface {
	ApproveGapAnalysis(ctx context.Context, jobID uuid.UUID, approved bool) (*gateway.Result, error)
	SubmitInterviewAnswers(ctx context.Context, jobID uuid.UUID, answers []types.Answer) (*gateway.Result, error)
}

// Deps are the services behind the API
type Deps struct {
	Evaluator Evaluator
	Resumer   Resumer
	// Scheduler continues newly started runs
	Scheduler gateway.Scheduler
	// JWT enables bearer authentication of mutating routes when non-nil
	JWT *JWTService
	Log *zap.Logger
}

// Config holds server configuration
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	eval            Evaluator
	resumer         Resumer
	sched           gateway.Scheduler
	validate        *validator.Validate
	log             *zap.Logger
	shutdownTimeout time.Duration
}

// New creates a new server instance
func New(cfg Config, deps Deps) *Server {
	s := &Server{
		eval:            deps.Evaluator,
		resumer:         deps.Resumer,
		sched:           deps.Scheduler,
		validate:        validator.New(),
		log:             logger.OrNop(deps.Log),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 30 * time.Second
	}

	protect := func(h http.HandlerFunc) http.Handler { return h }
	if deps.JWT != nil {
		auth := middleware.AuthMiddleware(deps.JWT.AsTokenValidator())
		protect = func(h http.HandlerFunc) http.Handler { return auth(h) }
	} else {
		s.log.Warn("no JWT secret configured, mutating routes are unauthenticated")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.Handle("POST /jobs", protect(s.handleCreateJob))
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.Handle("POST /jobs/{id}/runs", protect(s.handleStartRun))
	mux.Handle("POST /jobs/{id}/gap-approval", protect(s.handleGapApproval))
	mux.Handle("POST /jobs/{id}/interview-answers", protect(s.handleInterviewAnswers))
	mux.HandleFunc("GET /jobs/{id}/interview", s.handleGetInterview)
	mux.HandleFunc("GET /runs/{id}/artifacts", s.handleRunArtifacts)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.withLogging(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("failed to encode JSON response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// fail maps err to a status code and writes it. Internal errors are logged
// and not echoed to the client.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.errorResponse(w, status, http.StatusText(status))
		return
	}
	s.errorResponse(w, status, err.Error())
}
