package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/job-evaluator/internal/observability"
	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/types"
)

// Output formats
const (
	formatText = "text"
	formatJSON = "json"
)

func addOutputFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVarP(format, "output", "o", formatText, "Output format: text or json")
}

func checkFormat(format string) error {
	if format != formatText && format != formatJSON {
		return fmt.Errorf("unknown output format %q", format)
	}
	return nil
}

func parseID(kind, arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, arg, err)
	}
	return id, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printStatus writes the job's status and whatever its latest run produced
// that a human needs to act on.
func printStatus(ctx context.Context, w io.Writer, orch *pipeline.Orchestrator, jobID uuid.UUID, format string) error {
	st, err := orch.Status(ctx, jobID)
	if err != nil {
		return err
	}
	if format == formatJSON {
		return writeJSON(w, st)
	}

	p := observability.NewPrinter(w)
	p.PrintStatus(st.Job, st.Run)
	run := st.Run
	if run == nil {
		return nil
	}

	if out, ok := run.Output(types.StageGapAnalyzer); ok {
		var gaps types.GapAnalysis
		if err := types.Decode(out.Content, &gaps); err != nil {
			return err
		}
		p.PrintGapAnalysis(&gaps)
	}
	if out, ok := run.Output(types.StageGatekeeper); ok {
		var decision types.GatekeeperDecision
		if err := types.Decode(out.Content, &decision); err != nil {
			return err
		}
		p.PrintDecision(&decision)
	}
	if _, ok := run.Output(types.StageInterviewPrep); ok {
		iv, err := orch.Interview(ctx, jobID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			p.PrintInterview(iv)
		}
	}
	if run.State.Kind == types.StateCompleted {
		artifacts, err := orch.Artifacts(ctx, run.ID)
		if err != nil {
			return err
		}
		p.PrintArtifacts(artifacts)
	}
	return nil
}
