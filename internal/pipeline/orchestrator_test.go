package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-evaluator/internal/gatekeeper"
	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/pipeline/pipelinetest"
	"github.com/jonathan/job-evaluator/internal/stages"
	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/types"
)

var stageOrder = []string{
	types.StageJobAnalyzer,
	types.StageGapAnalyzer,
	types.StageGatekeeper,
	types.StageInterviewPrep,
	types.StageAnswerSynthesizer,
	types.StageApplicationWriter,
}

// assertPrefix checks that recorded outputs are a gapless prefix of the stage order
func assertPrefix(t *testing.T, run *types.Run) {
	t.Helper()
	require.LessOrEqual(t, len(run.Outputs), len(stageOrder))
	for i, out := range run.Outputs {
		assert.Equal(t, i, out.Position)
		assert.Equal(t, stageOrder[i], out.Stage)
	}
}

func setup(t *testing.T) (*pipeline.Orchestrator, *pipelinetest.Model, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	model := pipelinetest.NewModel()
	return pipelinetest.NewOrchestrator(t, st, model, gatekeeper.DefaultConfig()), model, st
}

func TestOrchestrator_FullRun(t *testing.T) {
	o, model, st := setup(t)
	ctx := context.Background()
	job, run := pipelinetest.Intake(t, o, "Build and operate Go services on Postgres.")
	assert.Equal(t, types.StatePending, run.State.Kind)
	assert.Equal(t, 0, run.State.StageIndex)
	assert.Equal(t, pipeline.DefaultVersion, run.PipelineVersion)

	run, err := o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assertPrefix(t, run)
	require.Len(t, run.Outputs, 2)
	assert.Equal(t, types.AwaitingGapApproval, run.PendingAction())
	gotJob, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusAwaitingGapApproval, gotJob.Status)

	res, err := o.ApproveGapAnalysis(ctx, job.ID, true)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, types.StatePending, res.Run.State.Kind)
	assert.Equal(t, 2, res.Run.State.StageIndex)

	run, err = o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assertPrefix(t, run)
	require.Len(t, run.Outputs, 4)
	assert.Equal(t, types.AwaitingInterviewAnswers, run.PendingAction())
	assert.Equal(t, types.ActionProceed, run.Outputs[2].Content["action"])

	iv, err := o.Interview(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, iv.Questions, 2)
	assert.Nil(t, iv.Notes)

	res, err = o.SubmitInterviewAnswers(ctx, job.ID, []types.Answer{
		{QuestionID: "q1", Text: "I scaled an order API."},
		{QuestionID: "q2", Text: "With goose."},
	})
	require.NoError(t, err)
	assert.True(t, res.Applied)

	run, err = o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assertPrefix(t, run)
	require.Len(t, run.Outputs, 6)
	assert.Equal(t, types.StateCompleted, run.State.Kind)
	require.NotNil(t, run.Outcome)
	assert.Equal(t, "completed", *run.Outcome)
	assert.Empty(t, run.PendingAction())

	artifacts, err := o.Artifacts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, artifacts, 2)
	assert.Equal(t, "cover_letter", artifacts[0].Kind)
	assert.Equal(t, "talking_points", artifacts[1].Kind)

	iv, err = o.Interview(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, iv.Notes)
	assert.Equal(t, []string{"PostgreSQL"}, iv.Notes.ResolvedGaps)
	assert.True(t, iv.Answered())

	status, err := o.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusCompleted, status.Job.Status)
	assert.Empty(t, status.PendingAction)

	for _, stage := range stageOrder {
		if stage == types.StageGatekeeper {
			continue
		}
		assert.Equal(t, 1, model.Calls(stage), stage)
	}
}

func TestOrchestrator_ProjectionsOnlyCarryDeclaredInputs(t *testing.T) {
	o, model, _ := setup(t)
	pipelinetest.PausedAt(t, o, types.AwaitingInterviewAnswers)

	analyzer := model.Requests(types.StageJobAnalyzer)
	require.Len(t, analyzer, 1)
	assert.NotNil(t, analyzer[0].Input.Job)
	assert.NotEmpty(t, analyzer[0].Input.Description)
	assert.Empty(t, analyzer[0].Input.ResumeText)
	assert.Empty(t, analyzer[0].Input.Outputs)
	assert.Equal(t, pipeline.TierLite, analyzer[0].Tier)

	gaps := model.Requests(types.StageGapAnalyzer)
	require.Len(t, gaps, 1)
	assert.NotEmpty(t, gaps[0].Input.ResumeText)
	_, ok := gaps[0].Input.Output(types.StageJobAnalyzer)
	assert.True(t, ok)

	prep := model.Requests(types.StageInterviewPrep)
	require.Len(t, prep, 1)
	assert.Nil(t, prep[0].Input.Job)
	_, ok = prep[0].Input.Output(types.StageGatekeeper)
	assert.True(t, ok)
	_, ok = prep[0].Input.Output(types.StageJobAnalyzer)
	assert.False(t, ok)
}

func TestContinue_RejectsPausedAndIgnoresTerminalRuns(t *testing.T) {
	o, model, _ := setup(t)
	ctx := context.Background()
	job, run := pipelinetest.PausedAt(t, o, types.AwaitingGapApproval)

	_, err := o.Continue(ctx, run.ID)
	var paused *pipeline.ErrRunPaused
	require.ErrorAs(t, err, &paused)
	assert.Equal(t, run.ID, paused.RunID)
	assert.Equal(t, types.AwaitingGapApproval, paused.PendingAction)
	assert.Equal(t, 1, model.Calls(types.StageGapAnalyzer))

	status, err := o.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Version, status.Run.Version)
	assert.Equal(t, types.AwaitingGapApproval, status.PendingAction)

	_, err = o.ApproveGapAnalysis(ctx, job.ID, false)
	require.NoError(t, err)
	rejected, err := o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateRejected, rejected.State.Kind)

	again, err := o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, rejected.Version, again.Version)
}

func TestContinue_UnknownRun(t *testing.T) {
	o, _, _ := setup(t)
	_, err := o.Continue(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestApproveGapAnalysis_IsIdempotent(t *testing.T) {
	o, _, _ := setup(t)
	ctx := context.Background()
	job, _ := pipelinetest.PausedAt(t, o, types.AwaitingGapApproval)

	first, err := o.ApproveGapAnalysis(ctx, job.ID, true)
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := o.ApproveGapAnalysis(ctx, job.ID, true)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, first.Run.Version, second.Run.Version)
	assert.Equal(t, first.Run.State, second.Run.State)
	assert.Len(t, second.Run.Resolutions, 1)
}

func TestApproveGapAnalysis_ConcurrentCallsApplyOnce(t *testing.T) {
	o, _, _ := setup(t)
	ctx := context.Background()
	job, run := pipelinetest.PausedAt(t, o, types.AwaitingGapApproval)

	var wg sync.WaitGroup
	results := make([]*pipeline.Resolution, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.ApproveGapAnalysis(ctx, job.ID, true)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Applied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)

	status, err := o.Status(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Version+1, status.Run.Version)
}

func TestApproveGapAnalysis_RejectionIsTerminal(t *testing.T) {
	o, model, st := setup(t)
	ctx := context.Background()
	job, run := pipelinetest.PausedAt(t, o, types.AwaitingGapApproval)

	res, err := o.ApproveGapAnalysis(ctx, job.ID, false)
	require.NoError(t, err)
	assert.Equal(t, types.StateRejected, res.Run.State.Kind)
	require.NotNil(t, res.Run.Outcome)
	assert.Equal(t, "rejected", *res.Run.Outcome)
	resolution, ok := res.Run.Resolution(types.AwaitingGapApproval)
	require.True(t, ok)
	assert.Equal(t, types.DecisionRejected, resolution.Decision)

	gotJob, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusRejected, gotJob.Status)

	_, err = o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assert.Zero(t, model.Calls(types.StageInterviewPrep))

	// a fresh run may be started once the previous one is terminal
	_, err = o.StartRun(ctx, job.ID, types.RunConfig{ResumeText: "updated resume"})
	assert.NoError(t, err)
}

func TestApproveGapAnalysis_InvalidState(t *testing.T) {
	o, _, _ := setup(t)
	ctx := context.Background()

	t.Run("unknown job", func(t *testing.T) {
		_, err := o.ApproveGapAnalysis(ctx, uuid.New(), true)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("job without run", func(t *testing.T) {
		job, err := o.CreateJob(ctx, types.JobIntake{Company: "Acme", RoleTitle: "SRE", Description: "d", ResumeText: "r"})
		require.NoError(t, err)
		_, err = o.ApproveGapAnalysis(ctx, job.ID, true)
		var invalid *pipeline.ErrInvalidResumeState
		assert.ErrorAs(t, err, &invalid)
	})

	t.Run("run not yet paused", func(t *testing.T) {
		job, run := pipelinetest.Intake(t, o, "Go services.")
		_, err := o.ApproveGapAnalysis(ctx, job.ID, true)
		var invalid *pipeline.ErrInvalidResumeState
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, types.StatePending, invalid.State)
		assert.Equal(t, types.AwaitingGapApproval, invalid.Expected)

		status, err := o.Status(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, run.Version, status.Run.Version)
	})

	t.Run("paused at the other checkpoint", func(t *testing.T) {
		job, _ := pipelinetest.PausedAt(t, o, types.AwaitingGapApproval)
		_, err := o.SubmitInterviewAnswers(ctx, job.ID, []types.Answer{{QuestionID: "q1", Text: "a"}})
		var invalid *pipeline.ErrInvalidResumeState
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, types.AwaitingGapApproval, invalid.Actual)
	})
}

func TestSubmitInterviewAnswers_UnknownQuestionLeavesRunPaused(t *testing.T) {
	o, model, st := setup(t)
	ctx := context.Background()
	job, run := pipelinetest.PausedAt(t, o, types.AwaitingInterviewAnswers)

	_, err := o.SubmitInterviewAnswers(ctx, job.ID, []types.Answer{
		{QuestionID: "q1", Text: "fine"},
		{QuestionID: "q9", Text: "no such question"},
	})
	var unknown *pipeline.ErrUnknownAnswerReference
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"q9"}, unknown.QuestionIDs)

	after, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AwaitingInterviewAnswers, after.PendingAction())
	assert.Equal(t, run.Version, after.Version)

	iv, err := st.GetInterview(ctx, run.ID)
	require.NoError(t, err)
	assert.False(t, iv.Answered())
	assert.Zero(t, model.Calls(types.StageAnswerSynthesizer))
}

func TestSubmitInterviewAnswers_Validation(t *testing.T) {
	o, _, _ := setup(t)
	ctx := context.Background()
	job, _ := pipelinetest.PausedAt(t, o, types.AwaitingInterviewAnswers)

	tests := []struct {
		name    string
		answers []types.Answer
	}{
		{"empty", nil},
		{"missing question id", []types.Answer{{Text: "a"}}},
		{"empty answer", []types.Answer{{QuestionID: "q1"}}},
		{"duplicate", []types.Answer{{QuestionID: "q1", Text: "a"}, {QuestionID: "q1", Text: "b"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.SubmitInterviewAnswers(ctx, job.ID, tt.answers)
			var invalid *pipeline.ErrInvalidAnswers
			assert.ErrorAs(t, err, &invalid)
		})
	}
}

func TestSubmitInterviewAnswers_SecondCallReturnsExistingStatus(t *testing.T) {
	o, _, _ := setup(t)
	ctx := context.Background()
	job, _ := pipelinetest.PausedAt(t, o, types.AwaitingInterviewAnswers)
	answers := []types.Answer{{QuestionID: "q1", Text: "a"}}

	first, err := o.SubmitInterviewAnswers(ctx, job.ID, answers)
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := o.SubmitInterviewAnswers(ctx, job.ID, answers)
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Equal(t, first.Run.Version, second.Run.Version)

	// the checkpoint is resolved, so even an empty submission reports it
	third, err := o.SubmitInterviewAnswers(ctx, job.ID, nil)
	require.NoError(t, err)
	assert.False(t, third.Applied)
	assert.Equal(t, first.Run.Version, third.Run.Version)
}

func TestContinue_ContractViolationFailsRun(t *testing.T) {
	o, model, st := setup(t)
	ctx := context.Background()
	model.On(types.StageJobAnalyzer, func(ctx context.Context, req stages.Request) (types.Document, error) {
		doc := pipelinetest.Document(req.Stage)
		delete(doc, "confidence")
		return doc, nil
	})
	job, run := pipelinetest.Intake(t, o, "Go services.")

	run, err := o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, run.State.Kind)
	require.NotNil(t, run.State.Failure)
	assert.Equal(t, stages.ReasonContractViolation, run.State.Failure.Reason)
	assert.Equal(t, types.StageJobAnalyzer, run.State.Failure.Stage)
	assert.Equal(t, 3, run.State.Failure.Attempts)
	assert.Contains(t, run.State.Failure.Details, "MissingField(confidence)")
	assert.Empty(t, run.Outputs)
	assert.Equal(t, 3, model.Calls(types.StageJobAnalyzer))

	gotJob, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusFailed, gotJob.Status)

	// failed is permanent
	again, err := o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Version, again.Version)
	assert.Equal(t, 3, model.Calls(types.StageJobAnalyzer))
}

func TestContinue_RetryRecoversWithinBudget(t *testing.T) {
	o, model, _ := setup(t)
	ctx := context.Background()
	calls := 0
	model.On(types.StageJobAnalyzer, func(ctx context.Context, req stages.Request) (types.Document, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("upstream 503")
		}
		assert.NotEmpty(t, req.PriorViolations)
		return pipelinetest.Document(req.Stage), nil
	})
	_, run := pipelinetest.Intake(t, o, "Go services.")

	run, err := o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AwaitingGapApproval, run.PendingAction())
	assert.Equal(t, 2, calls)
}

func TestContinue_PermanentExecutorErrorFailsImmediately(t *testing.T) {
	o, model, _ := setup(t)
	model.On(types.StageJobAnalyzer, func(ctx context.Context, req stages.Request) (types.Document, error) {
		return nil, stages.Permanent(errors.New("invalid api key"))
	})
	_, run := pipelinetest.Intake(t, o, "Go services.")

	run, err := o.Continue(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, run.State.Kind)
	assert.Equal(t, stages.ReasonExecutorUnavailable, run.State.Failure.Reason)
	assert.Equal(t, 1, model.Calls(types.StageJobAnalyzer))
}

func TestContinue_RunConfigOverridesRetryBudget(t *testing.T) {
	o, model, _ := setup(t)
	ctx := context.Background()
	model.On(types.StageJobAnalyzer, func(ctx context.Context, req stages.Request) (types.Document, error) {
		return types.Document{}, nil
	})
	job, err := o.CreateJob(ctx, types.JobIntake{Company: "Acme", RoleTitle: "SRE", Description: "d", ResumeText: "r"})
	require.NoError(t, err)
	run, err := o.StartRun(ctx, job.ID, types.RunConfig{ResumeText: "r", MaxRetries: 4})
	require.NoError(t, err)

	run, err = o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateFailed, run.State.Kind)
	assert.Equal(t, 5, model.Calls(types.StageJobAnalyzer))
}

func TestContinue_CancellationLeavesRunPending(t *testing.T) {
	o, model, st := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	model.On(types.StageJobAnalyzer, func(c context.Context, req stages.Request) (types.Document, error) {
		cancel()
		<-c.Done()
		return nil, c.Err()
	})
	_, run := pipelinetest.Intake(t, o, "Go services.")

	_, err := o.Continue(ctx, run.ID)
	assert.ErrorIs(t, err, context.Canceled)

	after, err := st.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatePending, after.State.Kind)
	assert.Equal(t, 0, after.State.StageIndex)
	assert.Equal(t, run.Version, after.Version)
}

func TestContinue_GatekeeperPassEndsRun(t *testing.T) {
	st := store.NewMemoryStore()
	model := pipelinetest.NewModel()
	cfg := gatekeeper.DefaultConfig()
	cfg.Criteria.Keywords = []string{"security clearance"}
	o := pipelinetest.NewOrchestrator(t, st, model, cfg)
	ctx := context.Background()

	job, run := pipelinetest.Intake(t, o, "Active security clearance required. Go services.")
	_, err := o.Continue(ctx, run.ID)
	require.NoError(t, err)
	_, err = o.ApproveGapAnalysis(ctx, job.ID, true)
	require.NoError(t, err)

	run, err = o.Continue(ctx, run.ID)
	require.NoError(t, err)
	assertPrefix(t, run)
	assert.Equal(t, types.StatePassed, run.State.Kind)
	require.Len(t, run.Outputs, 3)
	assert.Equal(t, types.ActionPass, run.Outputs[2].Content["action"])
	fit := run.Outputs[2].Content["fit_analysis"].(map[string]any)
	assert.Equal(t, true, fit["auto_reject_triggered"])
	assert.Equal(t, 100.0, fit["fit_percentage"])
	assert.Zero(t, model.Calls(types.StageInterviewPrep))

	gotJob, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusPassed, gotJob.Status)
}

func TestContinue_ConcurrentCallersExecuteEachStageOnce(t *testing.T) {
	o, model, _ := setup(t)
	_, run := pipelinetest.Intake(t, o, "Go services.")

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// one caller drives the run; the rest find it paused
			got, err := o.Continue(context.Background(), run.ID)
			if pipeline.IsRunPaused(err) {
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, types.AwaitingGapApproval, got.PendingAction())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, model.Calls(types.StageJobAnalyzer))
	assert.Equal(t, 1, model.Calls(types.StageGapAnalyzer))
}

func TestStartRun(t *testing.T) {
	o, _, _ := setup(t)
	ctx := context.Background()

	_, err := o.StartRun(ctx, uuid.New(), types.RunConfig{})
	assert.ErrorIs(t, err, store.ErrNotFound)

	job, run := pipelinetest.Intake(t, o, "Go services.")
	assert.Equal(t, pipeline.TierAdvanced, run.ModelRouting[types.StageApplicationWriter])
	_, err = o.StartRun(ctx, job.ID, types.RunConfig{})
	assert.ErrorIs(t, err, store.ErrActiveRunExists)
}

func TestContinue_RunsKeepTheirPipelineVersion(t *testing.T) {
	st := store.NewMemoryStore()
	model := pipelinetest.NewModel()
	ctx := context.Background()
	v1 := pipelinetest.NewOrchestrator(t, st, model, gatekeeper.DefaultConfig())
	_, run := pipelinetest.Intake(t, v1, "Go services.")

	base := pipeline.DefaultDefinition(pipeline.Executors{Model: model, Gatekeeper: gatekeeper.NewExecutor(gatekeeper.DefaultConfig())})
	reg, err := pipeline.RegistryFor(base, &pipeline.Override{Version: "v2", Tiers: map[string]string{types.StageJobAnalyzer: pipeline.TierAdvanced}})
	require.NoError(t, err)
	v2 := pipeline.New(st, reg, stages.NewAdapter(pipelinetest.Fast(), nil), nil)

	run, err = v2.Continue(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultVersion, run.PipelineVersion)
	assert.Equal(t, pipeline.TierLite, model.Requests(types.StageJobAnalyzer)[0].Tier)

	job2, run2 := pipelinetest.Intake(t, v2, "More Go services.")
	assert.Equal(t, "v2", run2.PipelineVersion)
	_, err = v2.Continue(ctx, run2.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.TierAdvanced, model.Requests(types.StageJobAnalyzer)[1].Tier)
	assert.NotEqual(t, uuid.Nil, job2.ID)

	// a process that no longer registers v2 continues v2 runs with their stored routing
	_, err = v1.ApproveGapAnalysis(ctx, job2.ID, true)
	require.NoError(t, err)
	run2, err = v1.Continue(ctx, run2.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", run2.PipelineVersion)
	assert.Equal(t, types.AwaitingInterviewAnswers, run2.PendingAction())

	// a run whose recorded stages do not fit this pipeline cannot be continued
	job3, err := v1.CreateJob(ctx, types.JobIntake{Company: "Initech", RoleTitle: "SRE", Description: "Pager duty."})
	require.NoError(t, err)
	foreign := &types.Run{
		ID:              uuid.New(),
		JobID:           job3.ID,
		PipelineVersion: "v9",
		ModelRouting:    map[string]string{"legacy_screen": pipeline.TierLite},
		State:           types.RunState{Kind: types.StatePending},
	}
	require.NoError(t, st.CreateRun(ctx, foreign, types.JobStatusEvaluating))
	_, err = v1.Continue(ctx, foreign.ID)
	var unknown *pipeline.ErrUnknownPipelineVersion
	assert.ErrorAs(t, err, &unknown)
}

func TestRecoverRunnable(t *testing.T) {
	o, model, st := setup(t)
	ctx := context.Background()

	var runs []*types.Run
	for i := 0; i < 4; i++ {
		_, run := pipelinetest.Intake(t, o, "Go services.")
		runs = append(runs, run)
	}
	ids, err := st.ListRunnableRuns(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, pipelinetest.RunIDs(runs...), ids)

	n, err := o.RecoverRunnable(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, 4, model.Calls(types.StageGapAnalyzer))

	for _, r := range runs {
		got, err := st.GetRun(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, types.AwaitingGapApproval, got.PendingAction())
	}

	ids, err = st.ListRunnableRuns(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
