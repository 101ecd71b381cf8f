package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/types"
)

func newContinueCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "continue <run-id>",
		Short: "Continue a pending run until it pauses or finishes",
		Long: `Continue a run from its last completed stage. Finished runs are left
unchanged; a paused run is refused and must be resumed with approve or answer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			runID, err := parseID("run", args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := a.open(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			run, err := svc.orch.Continue(ctx, runID)
			var paused *pipeline.ErrRunPaused
			if errors.As(err, &paused) {
				return fmt.Errorf("%w: resolve it with `eval_agent %s`", err, resumeCommand(paused.PendingAction))
			}
			if err != nil {
				return err
			}
			return printStatus(ctx, cmd.OutOrStdout(), svc.orch, run.JobID, format)
		},
	}
	addOutputFlag(cmd, &format)
	return cmd
}

func newRecoverCmd(a *app) *cobra.Command {
	var parallelism int
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Continue every pending run",
		Long: `Continue every run left pending, for example by a crash or shutdown while a
stage was executing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.open(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			if parallelism < 1 {
				parallelism = a.cfg.Server.Workers
			}
			n, err := svc.orch.RecoverRunnable(ctx, parallelism)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "continued %d pending run(s)\n", n)
			return err
		},
	}
	cmd.Flags().IntVarP(&parallelism, "parallelism", "p", 0, "Runs continued concurrently (default server.workers)")
	return cmd
}

func resumeCommand(action types.PendingAction) string {
	if action == types.AwaitingInterviewAnswers {
		return "answer"
	}
	return "approve"
}
