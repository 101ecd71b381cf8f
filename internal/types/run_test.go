package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStateIsTerminal(t *testing.T) {
	tests := []struct {
		kind StateKind
		want bool
	}{
		{StatePending, false},
		{StatePaused, false},
		{StateFailed, true},
		{StateCompleted, true},
		{StateRejected, true},
		{StatePassed, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, RunState{Kind: tt.kind}.IsTerminal())
		})
	}
}

func TestRunPendingAction(t *testing.T) {
	run := &Run{State: RunState{Kind: StatePaused, Checkpoint: AwaitingInterviewAnswers}}
	assert.Equal(t, AwaitingInterviewAnswers, run.PendingAction())

	// a stale checkpoint on a non-paused run is not pending
	run.State.Kind = StatePending
	assert.Empty(t, run.PendingAction())
}

func TestRunOutputAndResolution(t *testing.T) {
	run := &Run{
		Outputs: []StageOutput{{Stage: StageJobAnalyzer, Position: 0}, {Stage: StageGapAnalyzer, Position: 1}},
		Resolutions: []CheckpointResolution{
			{Checkpoint: AwaitingGapApproval, Decision: DecisionApproved, ResolvedAt: time.Now()},
		},
	}

	out, ok := run.Output(StageGapAnalyzer)
	require.True(t, ok)
	assert.Equal(t, 1, out.Position)
	_, ok = run.Output(StageGatekeeper)
	assert.False(t, ok)

	res, ok := run.Resolution(AwaitingGapApproval)
	require.True(t, ok)
	assert.Equal(t, DecisionApproved, res.Decision)
	_, ok = run.Resolution(AwaitingInterviewAnswers)
	assert.False(t, ok)
}

func TestRunClone(t *testing.T) {
	outcome := string(StatePassed)
	run := &Run{
		ID:           uuid.New(),
		ModelRouting: map[string]string{StageGapAnalyzer: "standard"},
		State:        RunState{Kind: StateFailed, Failure: &Failure{Reason: "SchemaViolation", Details: []string{"x"}}},
		Outputs:      []StageOutput{{Stage: StageJobAnalyzer}},
		Outcome:      &outcome,
	}

	cp := run.Clone()
	cp.ModelRouting[StageGapAnalyzer] = "advanced"
	cp.State.Failure.Reason = "ExecutorTimeout"
	cp.Outputs = append(cp.Outputs, StageOutput{Stage: StageGapAnalyzer})
	cp.Outputs[0].Stage = "changed"
	*cp.Outcome = "changed"

	assert.Equal(t, "standard", run.ModelRouting[StageGapAnalyzer])
	assert.Equal(t, "SchemaViolation", run.State.Failure.Reason)
	assert.Len(t, run.Outputs, 1)
	assert.Equal(t, StageJobAnalyzer, run.Outputs[0].Stage)
	assert.Equal(t, string(StatePassed), *run.Outcome)
}

func TestInterview(t *testing.T) {
	iv := &Interview{Questions: []Question{{ID: "q1"}, {ID: "q2"}}}

	assert.True(t, iv.HasQuestion("q2"))
	assert.False(t, iv.HasQuestion("q3"))
	assert.False(t, iv.Answered())

	now := time.Now()
	iv.AnsweredAt = &now
	assert.True(t, iv.Answered())
}

func TestNewJob(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	job, desc := NewJob(JobIntake{
		Company:     "Acme",
		RoleTitle:   "Platform Engineer",
		Description: "Operate Go services.",
		ResumeText:  "not stored on the job",
	}, now)

	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, JobStatusNew, job.Status)
	assert.Equal(t, now, job.CreatedAt)
	assert.Equal(t, job.ID, desc.JobID)
	assert.Equal(t, "Operate Go services.", desc.Text)
}
