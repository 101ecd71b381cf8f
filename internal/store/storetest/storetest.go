// Package storetest provides a conformance suite run against every store backend.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/types"
)

// Factory returns a fresh, empty store
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"JobRoundTrip", testJobRoundTrip},
		{"CreateRunSetsJobStatus", testCreateRunSetsJobStatus},
		{"OneActiveRunPerJob", testOneActiveRunPerJob},
		{"TransitionBumpsVersion", testTransitionBumpsVersion},
		{"StaleVersionRejected", testStaleVersionRejected},
		{"OutputsFormPrefix", testOutputsFormPrefix},
		{"InterviewLifecycle", testInterviewLifecycle},
		{"ArtifactsCreatedWithTransition", testArtifacts},
		{"ListRunnableRuns", testListRunnableRuns},
		{"ConcurrentTransitions", testConcurrentTransitions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

// NewJob creates and stores a job fixture
func NewJob(t *testing.T, s store.Store) *types.Job {
	t.Helper()
	job, desc := types.NewJob(types.JobIntake{
		Company:      "Acme",
		RoleTitle:    "Platform Engineer",
		Compensation: "$150k",
		Description:  "Build the platform in Go.",
		ResumeText:   "Go developer",
	}, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, s.CreateJob(context.Background(), job, desc))
	return job
}

// NewRun creates and stores a pending run for job
func NewRun(t *testing.T, s store.Store, job *types.Job) *types.Run {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	run := &types.Run{
		ID:              uuid.New(),
		JobID:           job.ID,
		PipelineVersion: "v1",
		ModelRouting:    map[string]string{types.StageJobAnalyzer: "lite"},
		Config:          types.RunConfig{ResumeText: "Go developer"},
		State:           types.RunState{Kind: types.StatePending},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	require.NoError(t, s.CreateRun(context.Background(), run, types.JobStatusEvaluating))
	return run
}

func output(stage string, position int) *types.StageOutput {
	return &types.StageOutput{
		Stage:    stage,
		Position: position,
		Content: types.Document{
			"agent":      stage,
			"timestamp":  "2026-10-18T10:00:00Z",
			"confidence": 0.75,
			"summary":    "ok",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func advanced(run *types.Run, index int) *types.Run {
	next := run.Clone()
	next.State = types.RunState{Kind: types.StatePending, StageIndex: index}
	return next
}

func testJobRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()
	job := NewJob(t, s)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Company, got.Company)
	assert.Equal(t, job.Compensation, got.Compensation)
	assert.Equal(t, types.JobStatusNew, got.Status)

	desc, err := s.GetJobDescription(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Build the platform in Go.", desc.Text)

	_, err = s.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetRun(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetLatestRunForJob(ctx, job.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCreateRunSetsJobStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	job := NewJob(t, s)
	run := NewRun(t, s, job)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusEvaluating, got.Status)

	stored, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stored.Version)
	assert.Equal(t, types.StatePending, stored.State.Kind)
	assert.Equal(t, "lite", stored.ModelRouting[types.StageJobAnalyzer])
	assert.Equal(t, "Go developer", stored.Config.ResumeText)
	assert.Empty(t, stored.Outputs)
	assert.Nil(t, stored.Outcome)
}

func testOneActiveRunPerJob(t *testing.T, s store.Store) {
	ctx := context.Background()
	job := NewJob(t, s)
	first := NewRun(t, s, job)

	second := *first
	second.ID = uuid.New()
	err := s.CreateRun(ctx, &second, types.JobStatusEvaluating)
	assert.ErrorIs(t, err, store.ErrActiveRunExists)

	failed := first.Clone()
	outcome := string(types.StateFailed)
	failed.State = types.RunState{Kind: types.StateFailed, Failure: &types.Failure{Reason: "StageContractViolation", Details: []string{"MissingField(confidence)"}}}
	failed.Outcome = &outcome
	stored, err := s.ApplyTransition(ctx, store.Transition{Run: failed, ExpectedVersion: 0, JobStatus: types.JobStatusFailed})
	require.NoError(t, err)
	require.NotNil(t, stored.State.Failure)
	assert.Equal(t, []string{"MissingField(confidence)"}, stored.State.Failure.Details)

	second.CreatedAt = second.CreatedAt.Add(time.Second)
	require.NoError(t, s.CreateRun(ctx, &second, types.JobStatusEvaluating))

	latest, err := s.GetLatestRunForJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	_, err = s.ApplyTransition(ctx, store.Transition{Run: advanced(failed, 1), ExpectedVersion: 1})
	assert.ErrorIs(t, err, store.ErrInvalidTransition, "terminal runs never transition")
}

func testTransitionBumpsVersion(t *testing.T, s store.Store) {
	ctx := context.Background()
	job := NewJob(t, s)
	run := NewRun(t, s, job)

	next := advanced(run, 1)
	next.State = types.RunState{Kind: types.StatePaused, StageIndex: 1, Checkpoint: types.AwaitingGapApproval}
	stored, err := s.ApplyTransition(ctx, store.Transition{
		Run:             next,
		ExpectedVersion: 0,
		Output:          output(types.StageJobAnalyzer, 0),
		JobStatus:       types.JobStatusAwaitingGapApproval,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, types.AwaitingGapApproval, stored.PendingAction())

	reread, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reread.Version)
	assert.Equal(t, types.StatePaused, reread.State.Kind)
	require.Len(t, reread.Outputs, 1)
	assert.Equal(t, 0.75, reread.Outputs[0].Content["confidence"])

	gotJob, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusAwaitingGapApproval, gotJob.Status)
}

func testStaleVersionRejected(t *testing.T, s store.Store) {
	ctx := context.Background()
	job := NewJob(t, s)
	run := NewRun(t, s, job)

	_, err := s.ApplyTransition(ctx, store.Transition{Run: advanced(run, 1), ExpectedVersion: 0, Output: output(types.StageJobAnalyzer, 0)})
	require.NoError(t, err)

	_, err = s.ApplyTransition(ctx, store.Transition{
		Run:             advanced(run, 2),
		ExpectedVersion: 0,
		Output:          output(types.StageGapAnalyzer, 1),
		JobStatus:       types.JobStatusFailed,
	})
	assert.ErrorIs(t, err, store.ErrConcurrentModification)

	reread, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reread.Version)
	assert.Len(t, reread.Outputs, 1)
	gotJob, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobStatusEvaluating, gotJob.Status, "rejected transitions leave the job untouched")

	_, err = s.ApplyTransition(ctx, store.Transition{Run: &types.Run{ID: uuid.New()}, ExpectedVersion: 0})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testOutputsFormPrefix(t *testing.T, s store.Store) {
	ctx := context.Background()
	job := NewJob(t, s)
	run := NewRun(t, s, job)

	_, err := s.ApplyTransition(ctx, store.Transition{Run: advanced(run, 1), ExpectedVersion: 0, Output: output(types.StageJobAnalyzer, 1)})
	assert.ErrorIs(t, err, store.ErrInvalidTransition, "gap in positions")

	_, err = s.ApplyTransition(ctx, store.Transition{Run: advanced(run, 1), ExpectedVersion: 0, Output: output(types.StageJobAnalyzer, 0)})
	require.NoError(t, err)

	_, err = s.ApplyTransition(ctx, store.Transition{Run: advanced(run, 2), ExpectedVersion: 1, Output: output(types.StageJobAnalyzer, 1)})
	assert.ErrorIs(t, err, store.ErrInvalidTransition, "stage recorded twice")

	_, err = s.ApplyTransition(ctx, store.Transition{Run: advanced(run, 2), ExpectedVersion: 1, Output: output(types.StageGapAnalyzer, 1)})
	require.NoError(t, err)

	reread, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, reread.Outputs, 2)
	for i, out := range reread.Outputs {
		assert.Equal(t, i, out.Position)
	}
	assert.Equal(t, types.StageJobAnalyzer, reread.Outputs[0].Stage)
	assert.Equal(t, types.StageGapAnalyzer, reread.Outputs[1].Stage)
}

func testInterviewLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	job := NewJob(t, s)
	run := NewRun(t, s, job)

	_, err := s.GetInterview(ctx, run.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	paused := run.Clone()
	paused.State = types.RunState{Kind: types.StatePaused, StageIndex: 3, Checkpoint: types.AwaitingInterviewAnswers}
	_, err = s.ApplyTransition(ctx, store.Transition{
		Run:             paused,
		ExpectedVersion: 0,
		Interview: &types.Interview{
			RunID: run.ID,
			Questions: []types.Question{
				{ID: "q1", Text: "Tell me about Kafka", Theme: "streaming", TargetGap: "kafka"},
				{ID: "q2", Text: "Largest team led?", Theme: "leadership", TargetGap: "management"},
			},
			CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		},
	})
	require.NoError(t, err)

	iv, err := s.GetInterview(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, iv.Questions, 2)
	assert.Equal(t, "q1", iv.Questions[0].ID)
	assert.Equal(t, "management", iv.Questions[1].TargetGap)
	assert.False(t, iv.Answered())

	resumed := paused.Clone()
	resumed.State = types.RunState{Kind: types.StatePending, StageIndex: 4}
	resumed.Resolutions = append(resumed.Resolutions, types.CheckpointResolution{
		Checkpoint: types.AwaitingInterviewAnswers,
		Decision:   types.DecisionAnswered,
		ResolvedAt: time.Now().UTC().Truncate(time.Microsecond),
	})
	answers := []types.Answer{{QuestionID: "q1", Text: "Built a pipeline"}, {QuestionID: "q2", Text: "Six people"}}
	stored, err := s.ApplyTransition(ctx, store.Transition{
		Run:             resumed,
		ExpectedVersion: 1,
		Answers:         answers,
		AnsweredAt:      time.Now().UTC(),
	})
	require.NoError(t, err)
	_, resolved := stored.Resolution(types.AwaitingInterviewAnswers)
	assert.True(t, resolved)

	iv, err = s.GetInterview(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, iv.Answered())
	assert.Equal(t, answers, iv.Answers)

	_, err = s.ApplyTransition(ctx, store.Transition{Run: advanced(resumed, 4), ExpectedVersion: 2, Answers: answers, AnsweredAt: time.Now()})
	assert.ErrorIs(t, err, store.ErrInvalidTransition, "answers are recorded once")
}

func testArtifacts(t *testing.T, s store.Store) {
	ctx := context.Background()
	job := NewJob(t, s)
	run := NewRun(t, s, job)

	done := run.Clone()
	outcome := string(types.StateCompleted)
	done.State = types.RunState{Kind: types.StateCompleted, StageIndex: 6}
	done.Outcome = &outcome
	now := time.Now().UTC().Truncate(time.Microsecond)
	_, err := s.ApplyTransition(ctx, store.Transition{
		Run:             done,
		ExpectedVersion: 0,
		Artifacts: []types.Artifact{
			{ID: uuid.New(), RunID: run.ID, Kind: "cover_letter", Content: "Dear Acme", Metadata: map[string]any{"tone": "warm"}, CreatedAt: now},
			{ID: uuid.New(), RunID: run.ID, Kind: "talking_points", Content: "- Go", CreatedAt: now},
		},
		JobStatus: types.JobStatusCompleted,
	})
	require.NoError(t, err)

	arts, err := s.ListArtifacts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "cover_letter", arts[0].Kind)
	assert.Equal(t, "warm", arts[0].Metadata["tone"])
	assert.Equal(t, "talking_points", arts[1].Kind)

	stored, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Outcome)
	assert.Equal(t, "completed", *stored.Outcome)

	none, err := s.ListArtifacts(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testListRunnableRuns(t *testing.T, s store.Store) {
	ctx := context.Background()
	pendingRun := NewRun(t, s, NewJob(t, s))
	pausedRun := NewRun(t, s, NewJob(t, s))

	paused := pausedRun.Clone()
	paused.State = types.RunState{Kind: types.StatePaused, StageIndex: 1, Checkpoint: types.AwaitingGapApproval}
	_, err := s.ApplyTransition(ctx, store.Transition{Run: paused, ExpectedVersion: 0})
	require.NoError(t, err)

	ids, err := s.ListRunnableRuns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pendingRun.ID}, ids)
}

func testConcurrentTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	run := NewRun(t, s, NewJob(t, s))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyTransition(ctx, store.Transition{
				Run:             advanced(run, 1),
				ExpectedVersion: 0,
				Output:          output(types.StageJobAnalyzer, 0),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case assert.ErrorIs(t, err, store.ErrConcurrentModification):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)

	reread, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reread.Version)
	assert.Len(t, reread.Outputs, 1)
}
