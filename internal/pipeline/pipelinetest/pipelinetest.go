// Package pipelinetest provides scripted executors and fixtures for tests that
// drive the orchestrator.
package pipelinetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/gatekeeper"
	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/stages"
	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/types"
)

// Model is a stage executor that answers every model-backed stage with a
// valid document. Individual stages can be scripted with On.
type Model struct {
	mu        sync.Mutex
	calls     map[string]int
	requests  map[string][]stages.Request
	overrides map[string]stages.ExecutorFunc
}

// NewModel creates a Model
func NewModel() *Model {
	return &Model{
		calls:     make(map[string]int),
		requests:  make(map[string][]stages.Request),
		overrides: make(map[string]stages.ExecutorFunc),
	}
}

// On replaces the response for a stage
func (m *Model) On(stage string, fn stages.ExecutorFunc) *Model {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[stage] = fn
	return m
}

// Calls returns how often a stage was invoked
func (m *Model) Calls(stage string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[stage]
}

// Requests returns the requests seen for a stage
func (m *Model) Requests(stage string) []stages.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stages.Request(nil), m.requests[stage]...)
}

// Invoke implements stages.Executor
func (m *Model) Invoke(ctx context.Context, req stages.Request) (types.Document, error) {
	m.mu.Lock()
	m.calls[req.Stage]++
	m.requests[req.Stage] = append(m.requests[req.Stage], req)
	fn := m.overrides[req.Stage]
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return Document(req.Stage), nil
}

// Document returns a valid output document for a model-backed stage
func Document(stage string) types.Document {
	doc := types.Document{
		"agent":      stage,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"confidence": 0.8,
	}
	switch stage {
	case types.StageJobAnalyzer:
		doc["requirements"] = []any{
			map[string]any{"id": "r1", "text": "Go services", "importance": "required"},
			map[string]any{"id": "r2", "text": "PostgreSQL", "importance": "required"},
			map[string]any{"id": "r3", "text": "Kubernetes", "importance": "preferred"},
		}
		doc["seniority"] = "senior"
		doc["summary"] = "Backend platform role"
	case types.StageGapAnalyzer:
		doc["gaps"] = []any{
			map[string]any{"requirement": "Go services", "classification": "met", "evidence": "six years of Go"},
			map[string]any{"requirement": "PostgreSQL", "classification": "met", "evidence": "ran Postgres clusters"},
			map[string]any{"requirement": "Kubernetes", "classification": "met", "evidence": "operated EKS"},
		}
		doc["strengths"] = []any{"Go", "databases"}
		doc["summary"] = "Strong match"
	case types.StageInterviewPrep:
		doc["questions"] = []any{
			map[string]any{"id": "q1", "text": "Describe a Go service you scaled.", "theme": "depth", "target_gap": "Go services"},
			map[string]any{"id": "q2", "text": "How do you run Postgres migrations?", "theme": "operations", "target_gap": "PostgreSQL"},
		}
	case types.StageAnswerSynthesizer:
		doc["notes"] = map[string]any{
			"key_points":    []any{"scaled a Go API to 10k rps"},
			"resolved_gaps": []any{"PostgreSQL"},
			"open_risks":    []any{},
		}
		doc["recommendation"] = "strong"
	case types.StageApplicationWriter:
		doc["artifacts"] = []any{
			map[string]any{"kind": "cover_letter", "content": "Dear hiring team"},
			map[string]any{"kind": "talking_points", "content": "- Go at scale", "metadata": map[string]any{"count": 1}},
		}
	}
	return doc
}

// Fast is a retry policy without backoff for tests
func Fast() stages.RetryPolicy {
	return stages.RetryPolicy{MaxRetries: 2, Timeout: 5 * time.Second}
}

// NewOrchestrator wires an orchestrator over st with the default definition
func NewOrchestrator(t *testing.T, st store.Store, model stages.Executor, gk gatekeeper.Config) *pipeline.Orchestrator {
	t.Helper()
	reg, err := pipeline.NewRegistry(pipeline.DefaultDefinition(pipeline.Executors{
		Model:      model,
		Gatekeeper: gatekeeper.NewExecutor(gk),
	}))
	require.NoError(t, err)
	return pipeline.New(st, reg, stages.NewAdapter(Fast(), zap.NewNop()), zap.NewNop())
}

// Intake registers a job with the given description and starts a run for it
func Intake(t *testing.T, o *pipeline.Orchestrator, description string) (*types.Job, *types.Run) {
	t.Helper()
	ctx := context.Background()
	job, err := o.CreateJob(ctx, types.JobIntake{
		Company:        "Acme",
		RoleTitle:      "Platform Engineer",
		RemotePolicy:   "remote",
		EmploymentType: "full-time",
		Compensation:   "$170,000 - $190,000",
		Description:    description,
		ResumeText:     "Six years of Go, Postgres and Kubernetes.",
	})
	require.NoError(t, err)
	run, err := o.StartRun(ctx, job.ID, types.RunConfig{ResumeText: "Six years of Go, Postgres and Kubernetes."})
	require.NoError(t, err)
	return job, run
}

// PausedAt drives a fresh run until it pauses at checkpoint
func PausedAt(t *testing.T, o *pipeline.Orchestrator, checkpoint types.PendingAction) (*types.Job, *types.Run) {
	t.Helper()
	ctx := context.Background()
	job, run := Intake(t, o, "Build and operate Go services on Postgres.")
	run, err := o.Continue(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, types.AwaitingGapApproval, run.PendingAction())
	if checkpoint == types.AwaitingGapApproval {
		return job, run
	}

	_, err = o.ApproveGapAnalysis(ctx, job.ID, true)
	require.NoError(t, err)
	run, err = o.Continue(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, checkpoint, run.PendingAction())
	return job, run
}

// RunIDs returns the identifiers of runs
func RunIDs(runs ...*types.Run) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(runs))
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	return ids
}
