package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-evaluator/internal/gateway"
	"github.com/jonathan/job-evaluator/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		Long: `Start an HTTP server that exposes the evaluation API. Runs left pending by a
previous shutdown are continued on startup and every server.recover_interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().String("addr", ":8080", "Address to listen on")
	cmd.Flags().Int("workers", 4, "Maximum number of runs continued concurrently")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = a.v.BindPFlag("server.workers", cmd.Flags().Lookup("workers"))
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := a.open(ctx, true)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	jwtCfg, err := a.cfg.JWT()
	if err != nil {
		return err
	}

	workers := a.cfg.Server.Workers
	sched := gateway.NewBackgroundScheduler(svc.orch, workers, a.log)
	defer sched.Shutdown()

	deps := server.Deps{
		Evaluator: svc.orch,
		Resumer:   gateway.New(svc.orch, sched, a.log),
		Scheduler: sched,
		Log:       a.log,
	}
	if jwtCfg != nil {
		deps.JWT = server.NewJWTService(jwtCfg)
	}
	srv := server.New(server.Config{
		Addr:            a.cfg.Server.Addr,
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recoverLoop(gctx, svc.orch, a.cfg.Server.RecoverInterval, workers, a.log)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	return g.Wait()
}

type recoverer interface {
	RecoverRunnable(ctx context.Context, parallelism int) (int, error)
}

// recoverLoop continues pending runs once at startup and then every interval
// until ctx is done. It picks up runs the background workers had no room for.
func recoverLoop(ctx context.Context, r recoverer, interval time.Duration, parallelism int, log *zap.Logger) {
	sweep := func() {
		n, err := r.RecoverRunnable(ctx, parallelism)
		switch {
		case ctx.Err() != nil:
		case err != nil:
			log.Warn("recovery finished with errors", zap.Int("runs", n), zap.Error(err))
		case n > 0:
			log.Info("recovered pending runs", zap.Int("runs", n))
		}
	}

	sweep()
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			sweep()
		}
	}
}
