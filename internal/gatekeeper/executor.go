package gatekeeper

import (
	"context"
	"fmt"
	"time"

	"github.com/jonathan/job-evaluator/internal/stages"
	"github.com/jonathan/job-evaluator/internal/types"
)

// Executor runs the decision engine as a pipeline stage
type Executor struct {
	cfg Config
	now func() time.Time
}

// NewExecutor creates a gatekeeper stage executor
func NewExecutor(cfg Config) *Executor {
	return &Executor{cfg: cfg, now: time.Now}
}

// Invoke decides on the gap analysis found in the request projection
func (e *Executor) Invoke(ctx context.Context, req stages.Request) (types.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, ok := req.Input.Output(types.StageGapAnalyzer)
	if !ok {
		return nil, stages.Permanent(fmt.Errorf("gatekeeper requires %s output", types.StageGapAnalyzer))
	}
	var gaps types.GapAnalysis
	if err := types.Decode(doc, &gaps); err != nil {
		return nil, stages.Permanent(err)
	}

	in := Input{
		Gaps:        gaps.Gaps,
		Concerns:    gaps.Concerns,
		Description: req.Input.Description,
	}
	if job := req.Input.Job; job != nil {
		in.Compensation = job.Compensation
		in.RemotePolicy = job.RemotePolicy
		in.Employment = job.EmploymentType
	}

	decision := Decide(e.cfg, in, e.now())
	return types.ToDocument(decision)
}
