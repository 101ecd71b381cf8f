package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/config"
	"github.com/jonathan/job-evaluator/internal/gateway"
	"github.com/jonathan/job-evaluator/internal/ingestion"
	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/pipeline/pipelinetest"
	"github.com/jonathan/job-evaluator/internal/stages"
	"github.com/jonathan/job-evaluator/internal/types"
)

type cli struct {
	t       *testing.T
	dir     string
	cfgPath string
	model   *pipelinetest.Model
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("JWT_SECRET", "")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "eval_agent.yaml")
	yaml := fmt.Sprintf("store:\n  backend: sqlite\n  path: %s\n", filepath.Join(dir, "eval.db"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o644))
	return &cli{t: t, dir: dir, cfgPath: cfgPath, model: pipelinetest.NewModel()}
}

func (c *cli) write(name, content string) string {
	c.t.Helper()
	path := filepath.Join(c.dir, name)
	require.NoError(c.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	a := newApp()
	a.modelExecutor = func(context.Context, *config.Config, *zap.Logger) (stages.Executor, func() error, error) {
		return c.model, nil, nil
	}
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", c.cfgPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (c *cli) intake() *pipeline.Status {
	c.t.Helper()
	job := c.write("posting.md", "# Platform Engineer\n\nBuild and operate Go services on Postgres.\n")
	resume := c.write("resume.txt", "Jane Doe\n\nSix years of Go, Postgres and Kubernetes.\n")

	out, err := c.run("intake", "--job", job, "--resume", resume, "--company", "Acme", "--role", "Platform Engineer", "-o", "json")
	require.NoError(c.t, err, out)
	var st pipeline.Status
	require.NoError(c.t, json.Unmarshal([]byte(out), &st), out)
	return &st
}

func TestIntakeApproveAnswer(t *testing.T) {
	c := newCLI(t)

	st := c.intake()
	assert.Equal(t, types.JobStatusAwaitingGapApproval, st.Job.Status)
	assert.Equal(t, types.AwaitingGapApproval, st.PendingAction)
	assert.Equal(t, sourceFile, st.Job.Source)
	assert.Equal(t, "Six years of Go, Postgres and Kubernetes.", lastLine(st.Run.Config.ResumeText))
	jobID := st.Job.ID.String()

	out, err := c.run("status", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "JOB STATUS")
	assert.Contains(t, out, "GAP ANALYSIS")
	assert.Contains(t, out, "✓ Go services")

	out, err = c.run("approve", jobID, "--yes")
	require.NoError(t, err, out)
	assert.Contains(t, out, gateway.MsgGapApproved)
	assert.Contains(t, out, "GATEKEEPER DECISION")
	assert.Contains(t, out, "q1  Describe a Go service you scaled.")

	answers := c.write("answers.json", `{"q2": "goose, versioned and reviewed", "q1": "An order API at 10k rps"}`)
	out, err = c.run("answer", jobID, "--answers", answers, "-o", "json")
	require.NoError(t, err, out)
	var res gateway.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, types.JobStatusCompleted, res.Status)
	assert.Equal(t, gateway.MsgAnswersRecorded, res.Message)

	out, err = c.run("status", jobID)
	require.NoError(t, err)
	assert.Contains(t, out, "COVER LETTER")
	assert.Contains(t, out, "Dear hiring team")
	assert.Contains(t, out, "answer: An order API at 10k rps")

	// resubmission is acknowledged without another run of the pipeline
	calls := c.model.Calls(types.StageApplicationWriter)
	out, err = c.run("answer", jobID, "--answers", answers, "-o", "json")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, gateway.MsgAlreadyResolved, res.Message)
	assert.Equal(t, calls, c.model.Calls(types.StageApplicationWriter))
}

func TestApproveReject(t *testing.T) {
	c := newCLI(t)
	st := c.intake()

	out, err := c.run("approve", st.Job.ID.String(), "--no", "-o", "json")
	require.NoError(t, err, out)
	var res gateway.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, types.JobStatusRejected, res.Status)
	assert.Equal(t, 0, c.model.Calls(types.StageInterviewPrep))
}

func TestIntakeWithoutContinue(t *testing.T) {
	c := newCLI(t)
	job := c.write("posting.txt", "Operate Go services.")
	resume := c.write("resume.txt", "Go developer.")

	out, err := c.run("intake", "--job", job, "--resume", resume, "--company", "Acme", "--role", "SRE", "--no-continue", "-o", "json")
	require.NoError(t, err, out)
	var st pipeline.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st), out)
	assert.Equal(t, types.JobStatusEvaluating, st.Job.Status)
	assert.Equal(t, types.StatePending, st.Run.State.Kind)
	assert.Equal(t, 0, c.model.Calls(types.StageJobAnalyzer))

	out, err = c.run("recover")
	require.NoError(t, err, out)
	assert.Contains(t, out, "continued 1 pending run(s)")

	_, err = c.run("continue", st.Run.ID.String())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "paused awaiting_gap_approval")
	assert.Contains(t, err.Error(), "eval_agent approve")
	assert.Equal(t, 1, c.model.Calls(types.StageJobAnalyzer), "continuing a paused run executes nothing")

	out, err = c.run("status", st.Job.ID.String(), "-o", "json")
	require.NoError(t, err, out)
	require.NoError(t, json.Unmarshal([]byte(out), &st), out)
	assert.Equal(t, types.AwaitingGapApproval, st.PendingAction)
}

type countingRecoverer struct {
	cancel context.CancelFunc
	stopAt int
	n      int
}

func (r *countingRecoverer) RecoverRunnable(ctx context.Context, parallelism int) (int, error) {
	r.n++
	if r.n == r.stopAt {
		r.cancel()
	}
	return 0, nil
}

func TestRecoverLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &countingRecoverer{cancel: cancel, stopAt: 3}

	recoverLoop(ctx, r, time.Millisecond, 2, zap.NewNop())
	assert.Equal(t, 3, r.n, "startup sweep plus one per tick until cancelled")

	once := &countingRecoverer{cancel: func() {}}
	recoverLoop(context.Background(), once, 0, 2, zap.NewNop())
	assert.Equal(t, 1, once.n, "no interval sweeps only at startup")
}

func TestCommandErrors(t *testing.T) {
	c := newCLI(t)
	resume := c.write("resume.txt", "Go developer.")
	job := c.write("posting.txt", "Operate Go services.")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad job id", args: []string{"status", "not-a-uuid"}, want: "invalid job id"},
		{name: "unknown job", args: []string{"status", "7d8f0c4e-4a43-4a8e-9a57-1d3f7d3f0b11"}, want: "not found"},
		{name: "no posting", args: []string{"intake", "--resume", resume}, want: "job"},
		{name: "both postings", args: []string{"intake", "--resume", resume, "--job", job, "--job-url", "https://example.com"}, want: "none of the others"},
		{name: "missing company", args: []string{"intake", "--resume", resume, "--job", job, "--role", "SRE"}, want: "Company is required"},
		{name: "bad output", args: []string{"status", "7d8f0c4e-4a43-4a8e-9a57-1d3f7d3f0b11", "-o", "yaml"}, want: "unknown output format"},
		{name: "approve both", args: []string{"approve", "7d8f0c4e-4a43-4a8e-9a57-1d3f7d3f0b11", "--yes", "--no"}, want: "none of the others"},
		{name: "token without secret", args: []string{"token", "recruiter"}, want: "JWT_SECRET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.run(tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestModelCommandsRequireAPIKey(t *testing.T) {
	c := newCLI(t)
	t.Setenv("GEMINI_API_KEY", "")

	_, err := c.run("recover")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestTokenCommand(t *testing.T) {
	c := newCLI(t)
	secret := "cli-test-secret-0123456789"
	t.Setenv("JWT_SECRET", secret)

	out, err := c.run("token", "recruiter")
	require.NoError(t, err)

	token, err := jwt.Parse(lastLine(out), func(*jwt.Token) (any, error) { return []byte(secret), nil })
	require.NoError(t, err)
	sub, err := token.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "recruiter", sub)
}

func TestMigrateCommand(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite store is up to date")

	t.Setenv("EVAL_STORE_BACKEND", "memory")
	out, err = c.run("migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing to migrate")
}

func TestBuildRegistryWithOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version": "v2", "tiers": {"gap_analyzer": "advanced"}}`), 0o644))

	cfg := config.Default()
	cfg.PipelineFile = path
	exec := pipeline.Executors{Model: pipelinetest.NewModel(), Gatekeeper: pipelinetest.NewModel()}

	reg, err := buildRegistry(cfg, exec)
	require.NoError(t, err)
	assert.Equal(t, "v2", reg.Current().Version)
	_, ok := reg.Get(pipeline.DefaultVersion)
	assert.True(t, ok, "runs started under the default version can still continue")

	require.NoError(t, os.WriteFile(path, []byte(`{"version": "v3", "tiers": {"gap_analyzer": "huge"}}`), 0o644))
	_, err = buildRegistry(cfg, exec)
	assert.Error(t, err)

	cfg.PipelineFile = ""
	reg, err = buildRegistry(cfg, exec)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultVersion, reg.Current().Version)
}

func TestBuildIntake(t *testing.T) {
	posting := &ingestion.Posting{
		URL:      "https://boards.greenhouse.io/acme/jobs/1",
		Platform: ingestion.PlatformGreenhouse,
		Title:    "Platform Engineer",
		Company:  "Acme",
		Text:     "Operate Go services.",
	}

	in, err := buildIntake(&intakeOptions{role: "Staff Platform Engineer"}, posting, "", "resume")
	require.NoError(t, err)
	assert.Equal(t, "Acme", in.Company)
	assert.Equal(t, "Staff Platform Engineer", in.RoleTitle, "flags win over page metadata")
	assert.Equal(t, "greenhouse", in.Source)
	assert.Equal(t, posting.URL, in.PostingURL)
	assert.Equal(t, posting.Text, in.Description)

	in, err = buildIntake(&intakeOptions{company: "Acme", role: "SRE", source: "referral"}, nil, "From a file.", "resume")
	require.NoError(t, err)
	assert.Equal(t, "referral", in.Source)
	assert.Empty(t, in.PostingURL)

	_, err = buildIntake(&intakeOptions{company: "Acme", role: "SRE"}, nil, "From a file.", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ResumeText is required")
}

func TestParseAnswers(t *testing.T) {
	list, err := parseAnswers([]byte(`[{"question_id": "q1", "answer": "yes"}]`))
	require.NoError(t, err)
	assert.Equal(t, []types.Answer{{QuestionID: "q1", Text: "yes"}}, list)

	list, err = parseAnswers([]byte(`{"q2": "b", "q1": "a"}`))
	require.NoError(t, err)
	assert.Equal(t, []types.Answer{{QuestionID: "q1", Text: "a"}, {QuestionID: "q2", Text: "b"}}, list)

	_, err = parseAnswers([]byte(`"just text"`))
	assert.Error(t, err)
}

func lastLine(s string) string {
	lines := bytes.Split(bytes.TrimSpace([]byte(s)), []byte("\n"))
	return string(lines[len(lines)-1])
}
