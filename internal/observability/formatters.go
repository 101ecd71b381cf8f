// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/job-evaluator/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 72
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintStatus outputs the job, its latest run and what the run is waiting for.
func (p *Printer) PrintStatus(job *types.Job, run *types.Run) {
	if job == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job:      %s\n", job.ID)
	fmt.Fprintf(&sb, "Company:  %s\n", job.Company)
	fmt.Fprintf(&sb, "Role:     %s\n", job.RoleTitle)
	fmt.Fprintf(&sb, "Status:   %s\n", job.Status)

	if run != nil {
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "Run:      %s (pipeline %s)\n", run.ID, run.PipelineVersion)
		fmt.Fprintf(&sb, "State:    %s\n", run.State.Kind)
		if action := run.PendingAction(); action != "" {
			fmt.Fprintf(&sb, "Waiting:  %s\n", action)
		}
		if f := run.State.Failure; f != nil {
			fmt.Fprintf(&sb, "Failure:  %s at %s\n", f.Reason, f.Stage)
		}
		if run.Outcome != nil {
			fmt.Fprintf(&sb, "Outcome:  %s\n", *run.Outcome)
		}
		if len(run.Outputs) > 0 {
			stages := make([]string, len(run.Outputs))
			for i, out := range run.Outputs {
				stages[i] = out.Stage
			}
			fmt.Fprintf(&sb, "Stages:   %s\n", strings.Join(stages, " → "))
		}
	}

	p.printBox("JOB STATUS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintGapAnalysis outputs the requirement classifications awaiting approval.
func (p *Printer) PrintGapAnalysis(gaps *types.GapAnalysis) {
	if gaps == nil {
		return
	}

	var sb strings.Builder
	if gaps.Summary != "" {
		sb.WriteString(gaps.Summary + "\n\n")
	}
	for _, g := range gaps.Gaps {
		mark := "✗"
		switch g.Classification {
		case types.ClassificationMet:
			mark = "✓"
		case types.ClassificationPartial:
			mark = "~"
		}
		fmt.Fprintf(&sb, "%s %s\n", mark, g.Requirement)
	}
	if len(gaps.Strengths) > 0 {
		sb.WriteString("\nStrengths:\n")
		count := min(len(gaps.Strengths), maxItemsToShow)
		for i := 0; i < count; i++ {
			fmt.Fprintf(&sb, "  • %s\n", gaps.Strengths[i])
		}
		if len(gaps.Strengths) > maxItemsToShow {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(gaps.Strengths)-maxItemsToShow)
		}
	}

	p.printBox("GAP ANALYSIS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintDecision outputs the gatekeeper verdict.
func (p *Printer) PrintDecision(d *types.GatekeeperDecision) {
	if d == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Action:   %s\n", strings.ToUpper(d.Action))
	fmt.Fprintf(&sb, "Fit:      %.1f%% (%s)\n", d.FitAnalysis.FitPercentage, d.FitAnalysis.FitBand)
	if d.FitAnalysis.AutoRejectTriggered {
		sb.WriteString("Auto-reject:\n")
		for _, r := range d.FitAnalysis.AutoRejectReasons {
			fmt.Fprintf(&sb, "  • %s\n", r)
		}
	}
	if len(d.FitAnalysis.RedFlags) > 0 {
		sb.WriteString("Red flags:\n")
		for _, f := range d.FitAnalysis.RedFlags {
			fmt.Fprintf(&sb, "  [%s] %s\n", f.Severity, f.Detail)
		}
	}
	fmt.Fprintf(&sb, "Next:     %s", d.NextStep)

	p.printBox("GATEKEEPER DECISION", sb.String())
}

// PrintInterview outputs the questions and, once answered, the notes.
func (p *Printer) PrintInterview(iv *types.Interview) {
	if iv == nil || len(iv.Questions) == 0 {
		return
	}

	answers := make(map[string]string, len(iv.Answers))
	for _, a := range iv.Answers {
		answers[a.QuestionID] = a.Text
	}

	var sb strings.Builder
	for i, q := range iv.Questions {
		fmt.Fprintf(&sb, "%s  %s\n", q.ID, q.Text)
		if q.TargetGap != "" {
			fmt.Fprintf(&sb, "    gap: %s\n", q.TargetGap)
		}
		if a, ok := answers[q.ID]; ok {
			fmt.Fprintf(&sb, "    answer: %s\n", a)
		}
		if i < len(iv.Questions)-1 {
			sb.WriteString("\n")
		}
	}

	if iv.Notes != nil {
		if len(iv.Notes.KeyPoints) > 0 {
			sb.WriteString("\nKey points:\n")
			for _, k := range iv.Notes.KeyPoints {
				fmt.Fprintf(&sb, "  • %s\n", k)
			}
		}
		if len(iv.Notes.OpenRisks) > 0 {
			sb.WriteString("\nOpen risks:\n")
			for _, r := range iv.Notes.OpenRisks {
				fmt.Fprintf(&sb, "  • %s\n", r)
			}
		}
	}

	p.printBox("INTERVIEW", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintArtifacts outputs the deliverables of a completed run in full.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintArtifacts(artifacts []types.Artifact) {
	for _, a := range artifacts {
		border := strings.Repeat("═", boxWidth)
		fmt.Fprintf(p.out, "%s\n%s\n%s\n", border, strings.ToUpper(strings.ReplaceAll(a.Kind, "_", " ")), border)
		fmt.Fprintf(p.out, "%s\n\n", strings.TrimSpace(a.Content))
	}
}
