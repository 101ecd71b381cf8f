package pipeline

import (
	"fmt"

	"github.com/jonathan/job-evaluator/internal/schemas"
	"github.com/jonathan/job-evaluator/internal/stages"
	"github.com/jonathan/job-evaluator/internal/types"
)

// Inputs a stage may read besides prior stage outputs
const (
	InputJob         = "job"
	InputDescription = "description"
	InputResume      = "resume"
	InputInterview   = "interview"
)

// Model tiers routed to executors
const (
	TierLite     = "lite"
	TierStandard = "standard"
	TierAdvanced = "advanced"
)

// StageDef declares one pipeline stage
type StageDef struct {
	ID       string
	Executor stages.Executor
	// Reads lists the inputs and prior stage identifiers the stage may see
	Reads    []string
	Contract schemas.Contract
	// Checkpoint, when set, pauses the run after this stage completes
	Checkpoint types.PendingAction
	// Tier is the default model tier for the stage
	Tier string
}

// Definition is an ordered, immutable stage list identified by a version
type Definition struct {
	Version string
	Stages  []StageDef
}

// Executors are the executors a definition is built from
type Executors struct {
	Model      stages.Executor
	Gatekeeper stages.Executor
}

// DefaultVersion is the version of DefaultDefinition
const DefaultVersion = "v1"

// DefaultDefinition returns the evaluation pipeline: analysis, gap approval,
// gatekeeping, interview preparation, answer synthesis and application writing.
func DefaultDefinition(exec Executors) *Definition {
	return &Definition{
		Version: DefaultVersion,
		Stages: []StageDef{
			{
				ID:       types.StageJobAnalyzer,
				Executor: exec.Model,
				Reads:    []string{InputJob, InputDescription},
				Contract: schemas.JobAnalyzerContract(),
				Tier:     TierLite,
			},
			{
				ID:         types.StageGapAnalyzer,
				Executor:   exec.Model,
				Reads:      []string{InputJob, InputDescription, InputResume, types.StageJobAnalyzer},
				Contract:   schemas.GapAnalyzerContract(),
				Checkpoint: types.AwaitingGapApproval,
				Tier:       TierStandard,
			},
			{
				ID:       types.StageGatekeeper,
				Executor: exec.Gatekeeper,
				Reads:    []string{InputJob, InputDescription, types.StageGapAnalyzer},
				Contract: schemas.GatekeeperContract(),
			},
			{
				ID:         types.StageInterviewPrep,
				Executor:   exec.Model,
				Reads:      []string{InputResume, types.StageGapAnalyzer, types.StageGatekeeper},
				Contract:   schemas.InterviewPrepContract(),
				Checkpoint: types.AwaitingInterviewAnswers,
				Tier:       TierStandard,
			},
			{
				ID:       types.StageAnswerSynthesizer,
				Executor: exec.Model,
				Reads:    []string{InputInterview, types.StageGapAnalyzer},
				Contract: schemas.AnswerSynthesizerContract(),
				Tier:     TierStandard,
			},
			{
				ID:       types.StageApplicationWriter,
				Executor: exec.Model,
				Reads: []string{
					InputJob, InputResume,
					types.StageJobAnalyzer, types.StageGapAnalyzer, types.StageGatekeeper,
					types.StageInterviewPrep, types.StageAnswerSynthesizer,
				},
				Contract: schemas.ApplicationWriterContract(),
				Tier:     TierAdvanced,
			},
		},
	}
}

// Validate checks that stage identifiers are unique, every stage has an
// executor that accepts it and every read refers to an input or an earlier stage.
func (d *Definition) Validate() error {
	if d.Version == "" {
		return fmt.Errorf("pipeline version is required")
	}
	if len(d.Stages) == 0 {
		return fmt.Errorf("pipeline %s has no stages", d.Version)
	}
	seen := make(map[string]bool, len(d.Stages))
	for i, s := range d.Stages {
		if s.ID == "" {
			return fmt.Errorf("pipeline %s: stage %d has no id", d.Version, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("pipeline %s: duplicate stage %s", d.Version, s.ID)
		}
		if s.Executor == nil {
			return fmt.Errorf("pipeline %s: stage %s has no executor", d.Version, s.ID)
		}
		if checker, ok := s.Executor.(stages.StageChecker); ok {
			if err := checker.CheckStage(s.ID); err != nil {
				return fmt.Errorf("pipeline %s: stage %s: %w", d.Version, s.ID, err)
			}
		}
		if s.Contract.Stage != s.ID {
			return fmt.Errorf("pipeline %s: stage %s uses the contract of %s", d.Version, s.ID, s.Contract.Stage)
		}
		if s.Checkpoint != "" && i == len(d.Stages)-1 {
			return fmt.Errorf("pipeline %s: last stage %s cannot pause", d.Version, s.ID)
		}
		for _, r := range s.Reads {
			switch r {
			case InputJob, InputDescription, InputResume, InputInterview:
				continue
			}
			if !seen[r] {
				return fmt.Errorf("pipeline %s: stage %s reads %s, which does not run before it", d.Version, s.ID, r)
			}
		}
		seen[s.ID] = true
	}
	return nil
}

// Index returns the position of a stage, or -1
func (d *Definition) Index(stage string) int {
	for i, s := range d.Stages {
		if s.ID == stage {
			return i
		}
	}
	return -1
}

// Routing returns the default stage-to-tier routing of the definition
func (d *Definition) Routing() map[string]string {
	routing := make(map[string]string, len(d.Stages))
	for _, s := range d.Stages {
		if s.Tier != "" {
			routing[s.ID] = s.Tier
		}
	}
	return routing
}

// Registry holds immutable definitions keyed by version. New runs use the
// current definition; existing runs keep the one they started with.
type Registry struct {
	current string
	defs    map[string]*Definition
}

// NewRegistry creates a registry whose current definition is current
func NewRegistry(current *Definition, older ...*Definition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*Definition)}
	for _, d := range append([]*Definition{current}, older...) {
		if d == nil {
			return nil, fmt.Errorf("nil pipeline definition")
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.defs[d.Version]; dup {
			return nil, fmt.Errorf("pipeline version %s registered twice", d.Version)
		}
		r.defs[d.Version] = d
	}
	r.current = current.Version
	return r, nil
}

// Current returns the definition new runs start under
func (r *Registry) Current() *Definition {
	return r.defs[r.current]
}

// Get returns the definition for a version
func (r *Registry) Get(version string) (*Definition, bool) {
	d, ok := r.defs[version]
	return d, ok
}

// For returns the definition a run executes under. A version this registry
// no longer holds, such as an override replaced since the run started, is
// rebuilt from the current stage list and the routing stored on the run,
// provided the run's routing and recorded outputs fit that stage list.
func (r *Registry) For(run *types.Run) (*Definition, error) {
	if d, ok := r.defs[run.PipelineVersion]; ok {
		return d, nil
	}
	current := r.Current()
	if run.PipelineVersion == "" || run.State.StageIndex > len(current.Stages) {
		return nil, &ErrUnknownPipelineVersion{Version: run.PipelineVersion}
	}
	for _, out := range run.Outputs {
		if out.Position >= len(current.Stages) || current.Stages[out.Position].ID != out.Stage {
			return nil, &ErrUnknownPipelineVersion{Version: run.PipelineVersion}
		}
	}
	def, err := Override{Version: run.PipelineVersion, Tiers: run.ModelRouting}.Apply(current)
	if err != nil {
		return nil, &ErrUnknownPipelineVersion{Version: run.PipelineVersion}
	}
	return def, nil
}
