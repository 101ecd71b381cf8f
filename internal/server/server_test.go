package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/job-evaluator/internal/config"
	"github.com/jonathan/job-evaluator/internal/gatekeeper"
	"github.com/jonathan/job-evaluator/internal/gateway"
	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/pipeline/pipelinetest"
	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/types"
)

const testSecret = "server-test-secret-0123456789"

type testServer struct {
	*Server
	orch  *pipeline.Orchestrator
	model *pipelinetest.Model
	jwt   *JWTService
}

func newTestServer(t *testing.T, withAuth bool) *testServer {
	t.Helper()
	model := pipelinetest.NewModel()
	orch := pipelinetest.NewOrchestrator(t, store.NewMemoryStore(), model, gatekeeper.DefaultConfig())
	sched := gateway.NewInlineScheduler(orch)

	deps := Deps{
		Evaluator: orch,
		Resumer:   gateway.New(orch, sched, nil),
		Scheduler: sched,
	}
	ts := &testServer{orch: orch, model: model}
	if withAuth {
		ts.jwt = NewJWTService(&config.JWTConfig{Secret: testSecret, ExpirationHours: 1})
		deps.JWT = ts.jwt
	}
	ts.Server = New(Config{Addr: ":0"}, deps)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

var intake = types.JobIntake{
	Company:      "Acme",
	RoleTitle:    "Platform Engineer",
	RemotePolicy: "remote",
	Description:  "Build and operate Go services on Postgres.",
	ResumeText:   "Six years of Go, Postgres and Kubernetes.",
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, w)["status"])
}

func TestFullEvaluationOverHTTP(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/jobs", intake, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeBody[CreateJobResponse](t, w)
	jobID := created.Job.ID

	w = ts.do(t, http.MethodGet, "/jobs/"+jobID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decodeBody[pipeline.Status](t, w)
	assert.Equal(t, types.JobStatusAwaitingGapApproval, status.Job.Status)
	assert.Equal(t, types.AwaitingGapApproval, status.PendingAction)

	w = ts.do(t, http.MethodPost, "/jobs/"+jobID.String()+"/gap-approval", map[string]bool{"approved": true}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decodeBody[gateway.Result](t, w)
	assert.Equal(t, types.JobStatusAwaitingInterviewAnswers, res.Status)
	assert.Equal(t, gateway.MsgGapApproved, res.Message)

	w = ts.do(t, http.MethodGet, "/jobs/"+jobID.String()+"/interview", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	iv := decodeBody[types.Interview](t, w)
	require.Len(t, iv.Questions, 2)
	assert.Nil(t, iv.Notes)

	answers := InterviewAnswersRequest{Answers: []types.Answer{
		{QuestionID: "q1", Text: "I scaled an order API."},
		{QuestionID: "q2", Text: "Versioned goose migrations."},
	}}
	w = ts.do(t, http.MethodPost, "/jobs/"+jobID.String()+"/interview-answers", answers, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, types.JobStatusCompleted, decodeBody[gateway.Result](t, w).Status)

	w = ts.do(t, http.MethodGet, "/jobs/"+jobID.String()+"/interview", nil, "")
	iv = decodeBody[types.Interview](t, w)
	assert.Len(t, iv.Answers, 2)
	assert.NotNil(t, iv.Notes)

	w = ts.do(t, http.MethodGet, "/runs/"+created.Run.ID.String()+"/artifacts", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var artifacts struct {
		RunID     uuid.UUID        `json:"run_id"`
		Artifacts []types.Artifact `json:"artifacts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &artifacts))
	assert.Equal(t, created.Run.ID, artifacts.RunID)
	assert.NotEmpty(t, artifacts.Artifacts)

	// a second submission is acknowledged without side effects
	w = ts.do(t, http.MethodPost, "/jobs/"+jobID.String()+"/interview-answers", answers, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, gateway.MsgAlreadyResolved, decodeBody[gateway.Result](t, w).Message)
}

func TestStartRun(t *testing.T) {
	ts := newTestServer(t, false)

	w := ts.do(t, http.MethodPost, "/jobs", intake, "")
	require.Equal(t, http.StatusCreated, w.Code)
	jobID := decodeBody[CreateJobResponse](t, w).Job.ID

	body := StartRunRequest{ResumeText: "Updated resume."}
	w = ts.do(t, http.MethodPost, "/jobs/"+jobID.String()+"/runs", body, "")
	assert.Equal(t, http.StatusConflict, w.Code, "the first run is still paused")

	w = ts.do(t, http.MethodPost, "/jobs/"+jobID.String()+"/gap-approval", map[string]bool{"approved": false}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, types.JobStatusRejected, decodeBody[gateway.Result](t, w).Status)

	w = ts.do(t, http.MethodPost, "/jobs/"+jobID.String()+"/runs", body, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	run := decodeBody[types.Run](t, w)
	assert.Equal(t, "Updated resume.", run.Config.ResumeText)

	w = ts.do(t, http.MethodGet, "/jobs/"+jobID.String(), nil, "")
	status := decodeBody[pipeline.Status](t, w)
	assert.Equal(t, run.ID, status.Run.ID)
	assert.Equal(t, types.AwaitingGapApproval, status.PendingAction)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(t, http.MethodPost, "/jobs", intake, "")
	require.Equal(t, http.StatusCreated, w.Code)
	jobID := decodeBody[CreateJobResponse](t, w).Job.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "unknown job", method: http.MethodGet, path: "/jobs/" + uuid.NewString(), want: http.StatusNotFound},
		{name: "bad id", method: http.MethodGet, path: "/jobs/not-a-uuid", want: http.StatusUnprocessableEntity},
		{name: "unknown run", method: http.MethodGet, path: "/runs/" + uuid.NewString() + "/artifacts", want: http.StatusNotFound},
		{name: "malformed body", method: http.MethodPost, path: "/jobs", body: "{", want: http.StatusBadRequest},
		{name: "empty body", method: http.MethodPost, path: "/jobs", body: "", want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/jobs", body: `{"company": "Acme", "salary": 1}`, want: http.StatusBadRequest},
		{name: "missing intake fields", method: http.MethodPost, path: "/jobs", body: types.JobIntake{Company: "Acme"}, want: http.StatusUnprocessableEntity},
		{name: "approval without decision", method: http.MethodPost, path: "/jobs/" + jobID + "/gap-approval", body: map[string]any{}, want: http.StatusUnprocessableEntity},
		{
			name: "answers before interview", method: http.MethodPost, path: "/jobs/" + jobID + "/interview-answers",
			body: InterviewAnswersRequest{Answers: []types.Answer{{QuestionID: "q1", Text: "yes"}}}, want: http.StatusBadRequest,
		},
		{
			name: "empty answer", method: http.MethodPost, path: "/jobs/" + jobID + "/interview-answers",
			body: InterviewAnswersRequest{Answers: []types.Answer{{QuestionID: "q1"}}}, want: http.StatusUnprocessableEntity,
		},
		{name: "unknown route", method: http.MethodDelete, path: "/jobs/" + jobID, want: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, tt.method, tt.path, tt.body, "")
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestUnknownAnswerReference(t *testing.T) {
	ts := newTestServer(t, false)
	job, _ := pipelinetest.PausedAt(t, ts.orch, types.AwaitingInterviewAnswers)

	body := InterviewAnswersRequest{Answers: []types.Answer{{QuestionID: "q9", Text: "?"}}}
	w := ts.do(t, http.MethodPost, "/jobs/"+job.ID.String()+"/interview-answers", body, "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, decodeBody[map[string]string](t, w)["error"], "q9")
}

func TestAuthRequiredForMutations(t *testing.T) {
	ts := newTestServer(t, true)

	w := ts.do(t, http.MethodPost, "/jobs", intake, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	other := NewJWTService(&config.JWTConfig{Secret: "some-other-secret-0123", ExpirationHours: 1})
	forged, err := other.GenerateToken("mallory")
	require.NoError(t, err)
	w = ts.do(t, http.MethodPost, "/jobs", intake, forged)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := ts.jwt.GenerateToken("recruiter")
	require.NoError(t, err)
	w = ts.do(t, http.MethodPost, "/jobs", intake, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	jobID := decodeBody[CreateJobResponse](t, w).Job.ID

	// reads stay open
	w = ts.do(t, http.MethodGet, "/jobs/"+jobID.String(), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
