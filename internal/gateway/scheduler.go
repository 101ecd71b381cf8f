package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-evaluator/internal/logger"
	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/types"
)

// ErrWorkersBusy is returned by BackgroundScheduler when no worker is free.
// The run stays pending until the next recovery sweep.
var ErrWorkersBusy = errors.New("all workers busy")

// Continuer drives a run until it pauses or terminates
type Continuer interface {
	Continue(ctx context.Context, runID uuid.UUID) (*types.Run, error)
}

// Scheduler decides where a resumed run continues
type Scheduler interface {
	Schedule(ctx context.Context, runID uuid.UUID) error
}

// InlineScheduler continues runs on the caller's goroutine
type InlineScheduler struct {
	runner Continuer
}

// NewInlineScheduler creates an InlineScheduler
func NewInlineScheduler(runner Continuer) *InlineScheduler {
	return &InlineScheduler{runner: runner}
}

// Schedule continues the run and returns once it pauses or terminates. A run
// another caller already drove to its next checkpoint is not an error.
func (s *InlineScheduler) Schedule(ctx context.Context, runID uuid.UUID) error {
	_, err := s.runner.Continue(ctx, runID)
	if pipeline.IsRunPaused(err) {
		return nil
	}
	return err
}

// BackgroundScheduler continues runs on a bounded set of worker goroutines
// detached from the request that scheduled them. When every worker is busy
// Schedule returns ErrWorkersBusy and the run is left pending for the next
// recovery sweep.
type BackgroundScheduler struct {
	runner Continuer
	log    *zap.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewBackgroundScheduler creates a scheduler with at most workers concurrent runs
func NewBackgroundScheduler(runner Continuer, workers int, log *zap.Logger) *BackgroundScheduler {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	g := &errgroup.Group{}
	g.SetLimit(workers)
	return &BackgroundScheduler{
		runner: runner,
		log:    logger.OrNop(log),
		ctx:    ctx,
		cancel: cancel,
		group:  g,
	}
}

// Schedule hands the run to a worker. It never blocks on the run itself.
func (s *BackgroundScheduler) Schedule(_ context.Context, runID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}

	log := s.log.With(zap.String(logger.FieldRunID, runID.String()))
	started := s.group.TryGo(func() error {
		run, err := s.runner.Continue(s.ctx, runID)
		if pipeline.IsRunPaused(err) {
			log.Debug("run already paused")
			return nil
		}
		if err != nil {
			log.Error("background continue failed", zap.Error(err))
			return nil
		}
		log.Info("background continue finished", zap.String("state", string(run.State.Kind)))
		return nil
	})
	if !started {
		log.Warn("all workers busy, run left pending for recovery")
		return ErrWorkersBusy
	}
	return nil
}

// Shutdown stops accepting runs, cancels in-flight ones and waits for workers
func (s *BackgroundScheduler) Shutdown() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	_ = s.group.Wait()
}

// Wait blocks until every scheduled run has finished
func (s *BackgroundScheduler) Wait() {
	_ = s.group.Wait()
}
