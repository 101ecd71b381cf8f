package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/config"
)

type migrator interface {
	Migrate(ctx context.Context) error
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Apply the embedded schema migrations to the configured SQLite or PostgreSQL store.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.Store.Backend == config.BackendMemory {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "memory store has no schema, nothing to migrate")
				return nil
			}
			st, closeStore, err := openStore(ctx, a.cfg, a.log)
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			m, ok := st.(migrator)
			if !ok {
				return fmt.Errorf("store backend %s does not support migrations", a.cfg.Store.Backend)
			}
			if err := m.Migrate(ctx); err != nil {
				return err
			}
			a.log.Info("migrations applied", zap.String("backend", a.cfg.Store.Backend))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s store is up to date\n", a.cfg.Store.Backend)
			return nil
		},
	}
}
