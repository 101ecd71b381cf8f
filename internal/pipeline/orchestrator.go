// Package pipeline sequences evaluation stages over durable run state and
// exposes the entry points that resume a paused run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/job-evaluator/internal/logger"
	"github.com/jonathan/job-evaluator/internal/stages"
	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/types"
)

// Orchestrator drives runs through their pipeline definition. Progress on a
// single run is serialized in-process by a per-run lock and across processes
// by the store's version check.
type Orchestrator struct {
	store    store.Store
	registry *Registry
	adapter  *stages.Adapter
	locks    *runLocks
	log      *zap.Logger
	now      func() time.Time
}

// New creates an Orchestrator
func New(st store.Store, registry *Registry, adapter *stages.Adapter, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: registry,
		adapter:  adapter,
		locks:    newRunLocks(),
		log:      logger.OrNop(log),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Status is the externally visible state of a job
type Status struct {
	Job           *types.Job          `json:"job"`
	Run           *types.Run          `json:"run,omitempty"`
	PendingAction types.PendingAction `json:"pending_action,omitempty"`
}

// Resolution is the outcome of a resume call
type Resolution struct {
	Run *types.Run
	// Applied is false when the checkpoint had already been resolved
	Applied bool
}

// CreateJob registers a job and its description
func (o *Orchestrator) CreateJob(ctx context.Context, in types.JobIntake) (*types.Job, error) {
	job, desc := types.NewJob(in, o.now())
	if err := o.store.CreateJob(ctx, job, desc); err != nil {
		return nil, err
	}
	o.log.Info("job created", zap.String(logger.FieldJobID, job.ID.String()), zap.String("company", job.Company))
	return job, nil
}

// StartRun creates a run at the first stage of the current pipeline definition
func (o *Orchestrator) StartRun(ctx context.Context, jobID uuid.UUID, cfg types.RunConfig) (*types.Run, error) {
	if _, err := o.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}

	def := o.registry.Current()
	now := o.now()
	run := &types.Run{
		ID:              uuid.New(),
		JobID:           jobID,
		PipelineVersion: def.Version,
		ModelRouting:    def.Routing(),
		Config:          cfg,
		State:           types.RunState{Kind: types.StatePending},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := o.store.CreateRun(ctx, run, types.JobStatusEvaluating); err != nil {
		return nil, err
	}

	o.log.Info("run started",
		zap.String(logger.FieldRunID, run.ID.String()),
		zap.String(logger.FieldJobID, jobID.String()),
		zap.String("pipeline_version", def.Version),
	)
	return run, nil
}

// Continue drives a run until it pauses or terminates and returns the stored
// run. A terminal run is returned unchanged. A run that is already paused is
// rejected with ErrRunPaused; only the matching resume call moves it on. When
// ctx is cancelled mid-stage the run stays pending and ctx.Err() is returned.
func (o *Orchestrator) Continue(ctx context.Context, runID uuid.UUID) (*types.Run, error) {
	unlock := o.locks.lock(runID)
	defer unlock()

	for first := true; ; first = false {
		run, err := o.store.GetRun(ctx, runID)
		if err != nil {
			return nil, err
		}
		if run.IsTerminal() {
			return run, nil
		}
		if run.State.Kind == types.StatePaused {
			if first {
				return nil, &ErrRunPaused{RunID: run.ID, PendingAction: run.PendingAction()}
			}
			return run, nil
		}

		def, err := o.registry.For(run)
		if err != nil {
			return nil, err
		}
		if run.State.StageIndex >= len(def.Stages) {
			return nil, fmt.Errorf("run %s is pending at stage %d of a %d-stage pipeline",
				run.ID, run.State.StageIndex, len(def.Stages))
		}

		err = o.step(ctx, def, run)
		if errors.Is(err, store.ErrConcurrentModification) {
			o.log.Warn("run advanced elsewhere, re-reading", zap.String(logger.FieldRunID, run.ID.String()))
			continue
		}
		if err != nil {
			return nil, err
		}
	}
}

// step executes the stage at the run's index and records the result
func (o *Orchestrator) step(ctx context.Context, def *Definition, run *types.Run) error {
	idx := run.State.StageIndex
	stage := def.Stages[idx]
	log := o.log.With(zap.String(logger.FieldRunID, run.ID.String()), zap.String(logger.FieldStage, stage.ID))

	input, err := o.project(ctx, run, stage)
	if err != nil {
		return err
	}

	log.Info("executing stage", zap.Int("position", idx))
	res, err := o.adapterFor(run).Execute(ctx, stage.Executor, stages.Request{
		Stage:    stage.ID,
		Input:    input,
		Contract: stage.Contract,
		Tier:     tierFor(run, stage),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return o.fail(ctx, run, stage, err)
	}
	return o.advance(ctx, def, run, res)
}

// project collects the inputs a stage declared it reads. Only outputs already
// recorded on the run are visible, so no stage observes a later one.
func (o *Orchestrator) project(ctx context.Context, run *types.Run, stage StageDef) (stages.Projection, error) {
	p := stages.Projection{Outputs: make(map[string]types.Document)}
	for _, r := range stage.Reads {
		switch r {
		case InputJob:
			job, err := o.store.GetJob(ctx, run.JobID)
			if err != nil {
				return p, fmt.Errorf("failed to load job: %w", err)
			}
			p.Job = job
		case InputDescription:
			desc, err := o.store.GetJobDescription(ctx, run.JobID)
			if err != nil {
				return p, fmt.Errorf("failed to load job description: %w", err)
			}
			p.Description = desc.Text
		case InputResume:
			p.ResumeText = run.Config.ResumeText
		case InputInterview:
			iv, err := o.store.GetInterview(ctx, run.ID)
			if err != nil {
				return p, fmt.Errorf("failed to load interview: %w", err)
			}
			p.Interview = iv
		default:
			if out, ok := run.Output(r); ok {
				p.Outputs[r] = out.Content
			}
		}
	}
	return p, nil
}

// advance records a validated output and moves the run to its next state
func (o *Orchestrator) advance(ctx context.Context, def *Definition, run *types.Run, res *stages.Result) error {
	idx := run.State.StageIndex
	stage := def.Stages[idx]
	now := o.now()

	next := run.Clone()
	t := store.Transition{
		Run:             next,
		ExpectedVersion: run.Version,
		Output:          &types.StageOutput{Stage: stage.ID, Position: idx, Content: res.Document, CreatedAt: now},
	}

	var terminal types.StateKind
	switch stage.ID {
	case types.StageGatekeeper:
		var decision types.GatekeeperDecision
		if err := types.Decode(res.Document, &decision); err != nil {
			return o.fail(ctx, run, stage, &stages.StageContractViolation{Stage: stage.ID, Attempts: res.Attempts, Cause: err})
		}
		if decision.Action == types.ActionPass {
			terminal = types.StatePassed
		}
	case types.StageInterviewPrep:
		var qs types.QuestionSet
		if err := types.Decode(res.Document, &qs); err != nil {
			return o.fail(ctx, run, stage, &stages.StageContractViolation{Stage: stage.ID, Attempts: res.Attempts, Cause: err})
		}
		t.Interview = &types.Interview{RunID: run.ID, Questions: qs.Questions, CreatedAt: now}
	case types.StageApplicationWriter:
		var pkg types.ApplicationPackage
		if err := types.Decode(res.Document, &pkg); err != nil {
			return o.fail(ctx, run, stage, &stages.StageContractViolation{Stage: stage.ID, Attempts: res.Attempts, Cause: err})
		}
		for _, draft := range pkg.Artifacts {
			t.Artifacts = append(t.Artifacts, types.Artifact{
				ID:        uuid.New(),
				RunID:     run.ID,
				Kind:      draft.Kind,
				Content:   draft.Content,
				Metadata:  draft.Metadata,
				CreatedAt: now,
			})
		}
	}

	switch {
	case terminal != "":
		next.State = types.RunState{Kind: terminal, StageIndex: idx + 1}
	case stage.Checkpoint != "":
		next.State = types.RunState{Kind: types.StatePaused, StageIndex: idx + 1, Checkpoint: stage.Checkpoint}
	case idx+1 == len(def.Stages):
		next.State = types.RunState{Kind: types.StateCompleted, StageIndex: idx + 1}
	default:
		next.State = types.RunState{Kind: types.StatePending, StageIndex: idx + 1}
	}
	if next.IsTerminal() {
		outcome := string(next.State.Kind)
		next.Outcome = &outcome
	}
	t.JobStatus = jobStatusFor(next.State)

	if _, err := o.store.ApplyTransition(ctx, t); err != nil {
		return err
	}

	o.log.Info("stage recorded",
		zap.String(logger.FieldRunID, run.ID.String()),
		zap.String(logger.FieldStage, stage.ID),
		zap.Int(logger.FieldAttempt, res.Attempts),
		zap.String("state", string(next.State.Kind)),
	)
	return nil
}

// fail moves the run to its terminal failed state, keeping the cause for operators
func (o *Orchestrator) fail(ctx context.Context, run *types.Run, stage StageDef, cause error) error {
	failure := &types.Failure{Reason: stages.FailureReason(cause), Stage: stage.ID, Attempts: 1}
	var violation *stages.StageContractViolation
	var unavailable *stages.ExecutorUnavailable
	switch {
	case errors.As(cause, &violation):
		failure.Attempts = violation.Attempts
		failure.Details = violation.Details()
	case errors.As(cause, &unavailable):
		failure.Attempts = unavailable.Attempt
		failure.Details = []string{unavailable.Error()}
	default:
		failure.Details = []string{cause.Error()}
	}

	next := run.Clone()
	next.State = types.RunState{Kind: types.StateFailed, StageIndex: run.State.StageIndex, Failure: failure}
	outcome := string(types.StateFailed)
	next.Outcome = &outcome

	_, err := o.store.ApplyTransition(ctx, store.Transition{
		Run:             next,
		ExpectedVersion: run.Version,
		JobStatus:       types.JobStatusFailed,
	})
	if err != nil {
		return err
	}

	o.log.Error("run failed",
		zap.String(logger.FieldRunID, run.ID.String()),
		zap.String(logger.FieldStage, stage.ID),
		zap.String("reason", failure.Reason),
		zap.Strings("details", failure.Details),
	)
	return nil
}

func (o *Orchestrator) adapterFor(run *types.Run) *stages.Adapter {
	if run.Config.MaxRetries <= 0 && run.Config.StageTimeoutSeconds <= 0 {
		return o.adapter
	}
	policy := o.adapter.Policy()
	if run.Config.MaxRetries > 0 {
		policy.MaxRetries = run.Config.MaxRetries
	}
	if run.Config.StageTimeoutSeconds > 0 {
		policy.Timeout = time.Duration(run.Config.StageTimeoutSeconds) * time.Second
	}
	return o.adapter.WithPolicy(policy)
}

func tierFor(run *types.Run, stage StageDef) string {
	if tier, ok := run.ModelRouting[stage.ID]; ok && tier != "" {
		return tier
	}
	return stage.Tier
}

func jobStatusFor(s types.RunState) types.JobStatus {
	switch s.Kind {
	case types.StatePaused:
		switch s.Checkpoint {
		case types.AwaitingGapApproval:
			return types.JobStatusAwaitingGapApproval
		case types.AwaitingInterviewAnswers:
			return types.JobStatusAwaitingInterviewAnswers
		}
	case types.StateCompleted:
		return types.JobStatusCompleted
	case types.StateRejected:
		return types.JobStatusRejected
	case types.StatePassed:
		return types.JobStatusPassed
	case types.StateFailed:
		return types.JobStatusFailed
	}
	return types.JobStatusEvaluating
}

// ApproveGapAnalysis resolves the gap approval checkpoint of the job's latest
// run. Approval makes the run pending again; rejection ends it as rejected.
// A repeated call on an already resolved checkpoint returns the current run.
func (o *Orchestrator) ApproveGapAnalysis(ctx context.Context, jobID uuid.UUID, approved bool) (*Resolution, error) {
	return o.resolve(ctx, jobID, types.AwaitingGapApproval, func(run *types.Run) (store.Transition, error) {
		now := o.now()
		next := run.Clone()
		decision := types.DecisionApproved
		if approved {
			next.State = types.RunState{Kind: types.StatePending, StageIndex: run.State.StageIndex}
		} else {
			decision = types.DecisionRejected
			next.State = types.RunState{Kind: types.StateRejected, StageIndex: run.State.StageIndex}
			outcome := string(types.StateRejected)
			next.Outcome = &outcome
		}
		next.Resolutions = append(next.Resolutions, types.CheckpointResolution{
			Checkpoint: types.AwaitingGapApproval,
			Decision:   decision,
			ResolvedAt: now,
		})
		return store.Transition{Run: next, ExpectedVersion: run.Version, JobStatus: jobStatusFor(next.State)}, nil
	})
}

// SubmitInterviewAnswers records answers for the job's latest run and makes it
// pending again. Answers referencing unknown questions are rejected without
// touching the run. Once answered, any further call returns the current run
// whatever answers it carries.
func (o *Orchestrator) SubmitInterviewAnswers(ctx context.Context, jobID uuid.UUID, answers []types.Answer) (*Resolution, error) {
	return o.resolve(ctx, jobID, types.AwaitingInterviewAnswers, func(run *types.Run) (store.Transition, error) {
		if err := checkAnswers(answers); err != nil {
			return store.Transition{}, err
		}
		iv, err := o.store.GetInterview(ctx, run.ID)
		if err != nil {
			return store.Transition{}, fmt.Errorf("failed to load interview: %w", err)
		}
		var unknown []string
		for _, a := range answers {
			if !iv.HasQuestion(a.QuestionID) {
				unknown = append(unknown, a.QuestionID)
			}
		}
		if len(unknown) > 0 {
			return store.Transition{}, &ErrUnknownAnswerReference{QuestionIDs: unknown}
		}

		now := o.now()
		next := run.Clone()
		next.State = types.RunState{Kind: types.StatePending, StageIndex: run.State.StageIndex}
		next.Resolutions = append(next.Resolutions, types.CheckpointResolution{
			Checkpoint: types.AwaitingInterviewAnswers,
			Decision:   types.DecisionAnswered,
			ResolvedAt: now,
		})
		return store.Transition{
			Run:             next,
			ExpectedVersion: run.Version,
			Answers:         answers,
			AnsweredAt:      now,
			JobStatus:       types.JobStatusEvaluating,
		}, nil
	})
}

func checkAnswers(answers []types.Answer) error {
	if len(answers) == 0 {
		return &ErrInvalidAnswers{Message: "at least one answer is required"}
	}
	seen := make(map[string]bool, len(answers))
	for i, a := range answers {
		if a.QuestionID == "" {
			return &ErrInvalidAnswers{Message: fmt.Sprintf("answer %d has no question_id", i)}
		}
		if a.Text == "" {
			return &ErrInvalidAnswers{Message: fmt.Sprintf("answer to %s is empty", a.QuestionID)}
		}
		if seen[a.QuestionID] {
			return &ErrInvalidAnswers{Message: fmt.Sprintf("question %s answered twice", a.QuestionID)}
		}
		seen[a.QuestionID] = true
	}
	return nil
}

// resolve applies the transition built by apply when the latest run of the
// job is paused at checkpoint. The check and the write happen under the
// run's lock and the write is conditional on the version that was checked.
func (o *Orchestrator) resolve(
	ctx context.Context,
	jobID uuid.UUID,
	checkpoint types.PendingAction,
	apply func(run *types.Run) (store.Transition, error),
) (*Resolution, error) {
	if _, err := o.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	latest, err := o.store.GetLatestRunForJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &ErrInvalidResumeState{JobID: jobID, Expected: checkpoint}
	}
	if err != nil {
		return nil, err
	}

	unlock := o.locks.lock(latest.ID)
	defer unlock()

	run, err := o.store.GetRun(ctx, latest.ID)
	if err != nil {
		return nil, err
	}
	if run.PendingAction() != checkpoint {
		if _, resolved := run.Resolution(checkpoint); resolved {
			return &Resolution{Run: run}, nil
		}
		return nil, &ErrInvalidResumeState{
			JobID:    jobID,
			Expected: checkpoint,
			Actual:   run.PendingAction(),
			State:    run.State.Kind,
		}
	}

	t, err := apply(run)
	if err != nil {
		return nil, err
	}
	stored, err := o.store.ApplyTransition(ctx, t)
	if err != nil {
		return nil, err
	}

	o.log.Info("checkpoint resolved",
		zap.String(logger.FieldRunID, run.ID.String()),
		zap.String(logger.FieldJobID, jobID.String()),
		zap.String("checkpoint", string(checkpoint)),
		zap.String("state", string(stored.State.Kind)),
	)
	return &Resolution{Run: stored, Applied: true}, nil
}

// Status returns the job, its latest run and the run's pending action
func (o *Orchestrator) Status(ctx context.Context, jobID uuid.UUID) (*Status, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	st := &Status{Job: job}
	run, err := o.store.GetLatestRunForJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	st.Run = run
	st.PendingAction = run.PendingAction()
	return st, nil
}

// Interview returns the interview of the job's latest run. Notes are derived
// from the answer synthesizer output once it exists.
func (o *Orchestrator) Interview(ctx context.Context, jobID uuid.UUID) (*types.Interview, error) {
	if _, err := o.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	run, err := o.store.GetLatestRunForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	iv, err := o.store.GetInterview(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	if out, ok := run.Output(types.StageAnswerSynthesizer); ok {
		var synthesis types.SynthesisOutput
		if err := types.Decode(out.Content, &synthesis); err != nil {
			return nil, err
		}
		iv.Notes = &synthesis.Notes
	}
	return iv, nil
}

// Artifacts lists the deliverables of a run
func (o *Orchestrator) Artifacts(ctx context.Context, runID uuid.UUID) ([]types.Artifact, error) {
	if _, err := o.store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return o.store.ListArtifacts(ctx, runID)
}

// RecoverRunnable continues every pending run, at most parallelism at a time,
// and returns how many runs it continued. Runs that fail to continue are
// reported together; they do not stop the others.
func (o *Orchestrator) RecoverRunnable(ctx context.Context, parallelism int) (int, error) {
	ids, err := o.store.ListRunnableRuns(ctx)
	if err != nil {
		return 0, err
	}
	if parallelism < 1 {
		parallelism = 1
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for _, id := range ids {
		g.Go(func() error {
			run, err := o.Continue(gctx, id)
			if IsRunPaused(err) {
				// another worker got there first
				o.log.Debug("run already paused", zap.String(logger.FieldRunID, id.String()))
				return nil
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				o.log.Error("failed to continue run", zap.String(logger.FieldRunID, id.String()), zap.Error(err))
				mu.Lock()
				errs = append(errs, fmt.Errorf("run %s: %w", id, err))
				mu.Unlock()
				return nil
			}
			o.log.Info("run recovered", zap.String(logger.FieldRunID, id.String()), zap.String("state", string(run.State.Kind)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(ids), err
	}
	return len(ids), errors.Join(errs...)
}
