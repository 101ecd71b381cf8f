// Package stages wraps stage executors behind a uniform, contract-checked interface.
package stages

import (
	"context"

	"github.com/jonathan/job-evaluator/internal/schemas"
	"github.com/jonathan/job-evaluator/internal/types"
)

// Projection is the slice of run state a stage is allowed to read
type Projection struct {
	Job         *types.Job                `json:"job,omitempty"`
	Description string                    `json:"description,omitempty"`
	ResumeText  string                    `json:"resume,omitempty"`
	Outputs     map[string]types.Document `json:"outputs,omitempty"`
	Interview   *types.Interview          `json:"interview,omitempty"`
}

// Output returns a prior stage output included in the projection
func (p Projection) Output(stage string) (types.Document, bool) {
	doc, ok := p.Outputs[stage]
	return doc, ok
}

// Request is one executor invocation
type Request struct {
	Stage    string
	Input    Projection
	Contract schemas.Contract
	// PriorViolations describes why the previous attempt was rejected
	PriorViolations []string
	Attempt         int
	// Tier is the model tier routed to this stage
	Tier string
}

// Executor produces a candidate output document for a stage. It must be safe to
// call repeatedly for the same request.
type Executor interface {
	Invoke(ctx context.Context, req Request) (types.Document, error)
}

// StageChecker is implemented by executors that serve only some stages. A
// definition naming a stage the executor rejects fails validation.
type StageChecker interface {
	CheckStage(stage string) error
}

// ExecutorFunc adapts a function to the Executor interface
type ExecutorFunc func(ctx context.Context, req Request) (types.Document, error)

// Invoke calls f
func (f ExecutorFunc) Invoke(ctx context.Context, req Request) (types.Document, error) {
	return f(ctx, req)
}
