// Package store defines the durable Run State Store and its in-memory implementation.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-evaluator/internal/types"
)

// Sentinel errors shared by every Store implementation
var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrActiveRunExists        = errors.New("job already has an active run")
	ErrInvalidTransition      = errors.New("invalid transition")
)

// Transition is one atomic change to a Run and the rows that travel with it.
// Either every part is applied or none is.
type Transition struct {
	// Run carries the new run state; its Version is ignored
	Run *types.Run
	// ExpectedVersion must equal the stored run version
	ExpectedVersion int64
	// Output is appended to the run's stage outputs
	Output *types.StageOutput
	// Interview is created for the run
	Interview *types.Interview
	// Answers are recorded on the run's existing interview
	Answers    []types.Answer
	AnsweredAt time.Time
	// Artifacts are created for the run
	Artifacts []types.Artifact
	// JobStatus, when set, updates the owning job
	JobStatus types.JobStatus
}

// Store persists jobs, runs and their children
type Store interface {
	CreateJob(ctx context.Context, job *types.Job, desc *types.JobDescription) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	GetJobDescription(ctx context.Context, jobID uuid.UUID) (*types.JobDescription, error)

	// CreateRun stores a new run and sets the job status in one step. It fails
	// with ErrActiveRunExists when the job already has a non-terminal run.
	CreateRun(ctx context.Context, run *types.Run, jobStatus types.JobStatus) error
	GetRun(ctx context.Context, id uuid.UUID) (*types.Run, error)
	GetLatestRunForJob(ctx context.Context, jobID uuid.UUID) (*types.Run, error)
	// ListRunnableRuns returns the identifiers of runs in the pending state
	ListRunnableRuns(ctx context.Context) ([]uuid.UUID, error)

	// ApplyTransition applies t if the stored version equals t.ExpectedVersion
	// and returns the stored run with its version bumped by one.
	ApplyTransition(ctx context.Context, t Transition) (*types.Run, error)

	GetInterview(ctx context.Context, runID uuid.UUID) (*types.Interview, error)
	ListArtifacts(ctx context.Context, runID uuid.UUID) ([]types.Artifact, error)

	Close() error
}

// CheckTransition verifies that t may be applied on top of current. Backends
// call it before writing.
func CheckTransition(current *types.Run, t Transition) error {
	if t.Run == nil {
		return fmt.Errorf("%w: run is required", ErrInvalidTransition)
	}
	if t.Run.ID != current.ID {
		return fmt.Errorf("%w: run id mismatch", ErrInvalidTransition)
	}
	if current.Version != t.ExpectedVersion {
		return ErrConcurrentModification
	}
	if current.IsTerminal() {
		return fmt.Errorf("%w: run is %s", ErrInvalidTransition, current.State.Kind)
	}
	if t.Output != nil {
		if t.Output.Position != len(current.Outputs) {
			return fmt.Errorf("%w: output position %d, expected %d", ErrInvalidTransition, t.Output.Position, len(current.Outputs))
		}
		if _, dup := current.Output(t.Output.Stage); dup {
			return fmt.Errorf("%w: stage %s already recorded", ErrInvalidTransition, t.Output.Stage)
		}
	}
	return nil
}

// NextRun returns the run as it is stored after t is applied
func NextRun(current *types.Run, t Transition, now time.Time) *types.Run {
	next := t.Run.Clone()
	next.JobID = current.JobID
	next.CreatedAt = current.CreatedAt
	next.Outputs = append([]types.StageOutput(nil), current.Outputs...)
	if t.Output != nil {
		next.Outputs = append(next.Outputs, *t.Output)
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now
	return next
}
