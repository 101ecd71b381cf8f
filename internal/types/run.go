package types

import (
	"time"

	"github.com/google/uuid"
)

// Document is a stage output document as produced by an executor
type Document map[string]any

// StateKind names the state machine position of a Run
type StateKind string

// StateKind constants. Failed, Completed, Rejected and Passed are terminal.
const (
	StatePending   StateKind = "pending"
	StatePaused    StateKind = "paused"
	StateFailed    StateKind = "failed"
	StateCompleted StateKind = "completed"
	StateRejected  StateKind = "rejected"
	StatePassed    StateKind = "passed"
)

// PendingAction is the outstanding human decision blocking a paused Run
type PendingAction string

// PendingAction constants
const (
	AwaitingGapApproval      PendingAction = "awaiting_gap_approval"
	AwaitingInterviewAnswers PendingAction = "awaiting_interview_answers"
)

// Failure records why a Run reached the failed state
type Failure struct {
	Reason   string   `json:"reason"`
	Stage    string   `json:"stage,omitempty"`
	Attempts int      `json:"attempts,omitempty"`
	Details  []string `json:"details,omitempty"`
}

// RunState is the persisted state machine position of a Run
type RunState struct {
	Kind       StateKind     `json:"kind"`
	StageIndex int           `json:"stage_index"`
	Checkpoint PendingAction `json:"checkpoint,omitempty"`
	Failure    *Failure      `json:"failure,omitempty"`
}

// IsTerminal reports whether no transition may leave this state
func (s RunState) IsTerminal() bool {
	switch s.Kind {
	case StateFailed, StateCompleted, StateRejected, StatePassed:
		return true
	}
	return false
}

// StageOutput is one validated document recorded for a completed stage
type StageOutput struct {
	Stage     string    `json:"stage"`
	Position  int       `json:"position"`
	Content   Document  `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckpointResolution records the human decision that released a checkpoint
type CheckpointResolution struct {
	Checkpoint PendingAction `json:"checkpoint"`
	Decision   string        `json:"decision"`
	ResolvedAt time.Time     `json:"resolved_at"`
}

// Checkpoint decisions
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
	DecisionAnswered = "answered"
)

// RunConfig holds per-run configuration captured when the run starts
type RunConfig struct {
	ResumeText string `json:"resume_text"`
	// MaxRetries overrides the pipeline retry budget when positive
	MaxRetries int `json:"max_retries,omitempty"`
	// StageTimeoutSeconds overrides the per-attempt executor timeout when positive
	StageTimeoutSeconds int `json:"stage_timeout_seconds,omitempty"`
}

// Run is one execution attempt of the pipeline for a Job
type Run struct {
	ID              uuid.UUID              `json:"id"`
	JobID           uuid.UUID              `json:"job_id"`
	PipelineVersion string                 `json:"pipeline_version"`
	ModelRouting    map[string]string      `json:"model_routing,omitempty"`
	Config          RunConfig              `json:"config"`
	State           RunState               `json:"state"`
	Outputs         []StageOutput          `json:"outputs"`
	Resolutions     []CheckpointResolution `json:"resolutions,omitempty"`
	Outcome         *string                `json:"outcome,omitempty"`
	Version         int64                  `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
}

// IsTerminal reports whether the run has a final outcome
func (r *Run) IsTerminal() bool {
	return r.State.IsTerminal()
}

// PendingAction returns the outstanding checkpoint, or "" when the run is not paused
func (r *Run) PendingAction() PendingAction {
	if r.State.Kind != StatePaused {
		return ""
	}
	return r.State.Checkpoint
}

// Output returns the recorded output for a stage
func (r *Run) Output(stage string) (StageOutput, bool) {
	for _, out := range r.Outputs {
		if out.Stage == stage {
			return out, true
		}
	}
	return StageOutput{}, false
}

// Resolution returns the recorded decision for a checkpoint
func (r *Run) Resolution(checkpoint PendingAction) (CheckpointResolution, bool) {
	for _, res := range r.Resolutions {
		if res.Checkpoint == checkpoint {
			return res, true
		}
	}
	return CheckpointResolution{}, false
}

// Clone returns a deep-enough copy for building a transition without mutating the original
func (r *Run) Clone() *Run {
	cp := *r
	cp.Outputs = append([]StageOutput(nil), r.Outputs...)
	cp.Resolutions = append([]CheckpointResolution(nil), r.Resolutions...)
	if r.ModelRouting != nil {
		cp.ModelRouting = make(map[string]string, len(r.ModelRouting))
		for k, v := range r.ModelRouting {
			cp.ModelRouting[k] = v
		}
	}
	if r.State.Failure != nil {
		f := *r.State.Failure
		cp.State.Failure = &f
	}
	if r.Outcome != nil {
		o := *r.Outcome
		cp.Outcome = &o
	}
	return &cp
}

// Artifact is a terminal deliverable produced by a run
type Artifact struct {
	ID        uuid.UUID      `json:"id"`
	RunID     uuid.UUID      `json:"run_id"`
	Kind      string         `json:"kind"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
