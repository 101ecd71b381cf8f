package main

import (
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show the status of a job and its latest run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			jobID, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := a.open(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			return printStatus(ctx, cmd.OutOrStdout(), svc.orch, jobID, format)
		},
	}
	addOutputFlag(cmd, &format)
	return cmd
}
