package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/config"
	"github.com/jonathan/job-evaluator/internal/gatekeeper"
	"github.com/jonathan/job-evaluator/internal/llm"
	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/stages"
	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/store/postgres"
	"github.com/jonathan/job-evaluator/internal/store/sqlite"
	"github.com/jonathan/job-evaluator/internal/types"
)

// errNoModel fails model-backed stages in commands that only read state
var errNoModel = errors.New("model-backed stages are not available to this command")

// services are the store and orchestrator a command works with
type services struct {
	store   store.Store
	orch    *pipeline.Orchestrator
	closers []func() error
}

// Close releases the model client and the store
func (s *services) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// open connects the store and builds the orchestrator. Without withModel the
// model-backed stages fail permanently, which read-only commands never reach.
func (a *app) open(ctx context.Context, withModel bool) (*services, error) {
	st, closeStore, err := openStore(ctx, a.cfg, a.log)
	if err != nil {
		return nil, err
	}
	svc := &services{store: st}
	if closeStore != nil {
		svc.closers = append(svc.closers, closeStore)
	}

	var model stages.Executor = stages.ExecutorFunc(func(context.Context, stages.Request) (types.Document, error) {
		return nil, stages.Permanent(errNoModel)
	})
	if withModel {
		if err := a.cfg.RequireAPIKey(); err != nil {
			_ = svc.Close()
			return nil, err
		}
		exec, closeModel, err := a.modelExecutor(ctx, a.cfg, a.log)
		if err != nil {
			_ = svc.Close()
			return nil, err
		}
		model = exec
		if closeModel != nil {
			svc.closers = append(svc.closers, closeModel)
		}
	}

	registry, err := buildRegistry(a.cfg, pipeline.Executors{
		Model:      model,
		Gatekeeper: gatekeeper.NewExecutor(a.cfg.Gatekeeper),
	})
	if err != nil {
		_ = svc.Close()
		return nil, err
	}
	a.log.Debug("pipeline loaded", zap.String("version", registry.Current().Version))

	adapter := stages.NewAdapter(a.cfg.Retry, a.log)
	svc.orch = pipeline.New(st, registry, adapter, a.log)
	return svc, nil
}

// openStore opens the configured backend. SQLite files are migrated on open;
// PostgreSQL schemas are migrated with the migrate command.
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (store.Store, func() error, error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		log.Warn("using the in-memory store, state is lost when the process exits")
		return store.NewMemoryStore(), nil, nil
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case config.BackendPostgres:
		s, err := postgres.Connect(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// buildRegistry registers the default pipeline and, when configured, the
// override published on top of it
func buildRegistry(cfg *config.Config, exec pipeline.Executors) (*pipeline.Registry, error) {
	base := pipeline.DefaultDefinition(exec)
	if cfg.PipelineFile == "" {
		return pipeline.RegistryFor(base, nil)
	}
	o, err := pipeline.LoadOverride(cfg.PipelineFile)
	if err != nil {
		return nil, err
	}
	return pipeline.RegistryFor(base, o)
}

// llmExecutor builds the Gemini-backed stage executor
func llmExecutor(ctx context.Context, cfg *config.Config, log *zap.Logger) (stages.Executor, func() error, error) {
	client, err := llm.NewClient(ctx, &cfg.LLM, cfg.GeminiAPIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	exec, err := llm.NewStageExecutor(client, log)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return exec, client.Close, nil
}
