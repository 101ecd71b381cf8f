package stages

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jonathan/job-evaluator/internal/schemas"
	"github.com/jonathan/job-evaluator/internal/types"
)

func summaryContract() schemas.Contract {
	return schemas.NewContract("summarizer", schemas.Required("summary", schemas.TypeString))
}

func validDoc() types.Document {
	return types.Document{
		"agent":      "summarizer",
		"timestamp":  "2026-10-18T10:00:00Z",
		"confidence": 0.9,
		"summary":    "ok",
	}
}

func missingConfidence() types.Document {
	doc := validDoc()
	delete(doc, "confidence")
	return doc
}

// scripted returns the scripted responses in order and records every request
type scripted struct {
	calls    atomic.Int32
	requests []Request
	steps    []func(ctx context.Context) (types.Document, error)
}

func (s *scripted) Invoke(ctx context.Context, req Request) (types.Document, error) {
	n := int(s.calls.Add(1)) - 1
	s.requests = append(s.requests, req)
	step := s.steps[len(s.steps)-1]
	if n < len(s.steps) {
		step = s.steps[n]
	}
	return step(ctx)
}

func returns(doc types.Document) func(context.Context) (types.Document, error) {
	return func(context.Context) (types.Document, error) { return doc, nil }
}

func fails(err error) func(context.Context) (types.Document, error) {
	return func(context.Context) (types.Document, error) { return nil, err }
}

func blocks() func(context.Context) (types.Document, error) {
	return func(ctx context.Context) (types.Document, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func newTestAdapter(policy RetryPolicy, log *zap.Logger) *Adapter {
	a := NewAdapter(policy, log)
	a.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return a
}

func request() Request {
	return Request{Stage: "summarizer", Contract: summaryContract()}
}

func TestExecute_FirstAttemptValid(t *testing.T) {
	exec := &scripted{steps: []func(context.Context) (types.Document, error){returns(validDoc())}}
	a := newTestAdapter(DefaultRetryPolicy(), nil)

	res, err := a.Execute(context.Background(), exec, request())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, "ok", res.Document["summary"])
	assert.EqualValues(t, 1, exec.calls.Load())
}

func TestExecute_RetriesWithViolationContext(t *testing.T) {
	exec := &scripted{steps: []func(context.Context) (types.Document, error){
		returns(missingConfidence()),
		returns(validDoc()),
	}}
	a := newTestAdapter(DefaultRetryPolicy(), nil)

	res, err := a.Execute(context.Background(), exec, request())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)

	require.Len(t, exec.requests, 2)
	assert.Empty(t, exec.requests[0].PriorViolations)
	assert.Equal(t, 1, exec.requests[0].Attempt)
	assert.Equal(t, []string{"MissingField(confidence)"}, exec.requests[1].PriorViolations)
	assert.Equal(t, 2, exec.requests[1].Attempt)
}

func TestExecute_BudgetExhausted(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantCalls  int
	}{
		{"default budget", 2, 3},
		{"single retry", 1, 2},
		{"no retries", 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			policy := DefaultRetryPolicy()
			policy.MaxRetries = tt.maxRetries
			exec := &scripted{steps: []func(context.Context) (types.Document, error){returns(missingConfidence())}}

			res, err := newTestAdapter(policy, zap.New(core)).Execute(context.Background(), exec, request())
			assert.Nil(t, res)

			var violation *StageContractViolation
			require.ErrorAs(t, err, &violation)
			assert.Equal(t, "summarizer", violation.Stage)
			assert.Equal(t, tt.wantCalls, violation.Attempts)
			assert.Contains(t, violation.Violations, schemas.Violation{Kind: schemas.MissingField, Field: "confidence"})
			assert.NoError(t, violation.Cause)
			assert.Equal(t, ReasonContractViolation, FailureReason(err))
			assert.EqualValues(t, tt.wantCalls, exec.calls.Load())
			assert.Equal(t, tt.wantCalls, logs.FilterMessage("stage output rejected").Len())
		})
	}
}

func TestExecute_TimeoutCountsAgainstBudget(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.MaxRetries = 1
	policy.Timeout = 10 * time.Millisecond
	exec := &scripted{steps: []func(context.Context) (types.Document, error){blocks()}}

	_, err := newTestAdapter(policy, nil).Execute(context.Background(), exec, request())

	var violation *StageContractViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, 2, violation.Attempts)
	var timeout *ExecutorTimeout
	require.ErrorAs(t, violation.Cause, &timeout)
	assert.Equal(t, 2, timeout.Attempt)
	assert.Equal(t, ReasonContractViolation, FailureReason(err))
	assert.NotEmpty(t, violation.Details())
}

func TestExecute_TimeoutThenSuccess(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.Timeout = 10 * time.Millisecond
	exec := &scripted{steps: []func(context.Context) (types.Document, error){blocks(), returns(validDoc())}}

	res, err := newTestAdapter(policy, nil).Execute(context.Background(), exec, request())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	require.Len(t, exec.requests, 2)
	assert.Contains(t, exec.requests[1].PriorViolations[0], "timed out")
}

func TestExecute_TransientErrorRetried(t *testing.T) {
	exec := &scripted{steps: []func(context.Context) (types.Document, error){
		fails(errors.New("connection reset by peer")),
		returns(validDoc()),
	}}

	res, err := newTestAdapter(DefaultRetryPolicy(), nil).Execute(context.Background(), exec, request())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
}

func TestExecute_PermanentErrorStopsImmediately(t *testing.T) {
	cause := errors.New("missing gap analysis")
	exec := &scripted{steps: []func(context.Context) (types.Document, error){fails(Permanent(cause))}}

	_, err := newTestAdapter(DefaultRetryPolicy(), nil).Execute(context.Background(), exec, request())

	var unavailable *ExecutorUnavailable
	require.ErrorAs(t, err, &unavailable)
	assert.True(t, unavailable.Permanent)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ReasonExecutorUnavailable, FailureReason(err))
	assert.EqualValues(t, 1, exec.calls.Load())
}

func TestExecute_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := &scripted{steps: []func(context.Context) (types.Document, error){
		func(ctx context.Context) (types.Document, error) {
			cancel()
			return nil, ctx.Err()
		},
	}}

	_, err := newTestAdapter(DefaultRetryPolicy(), nil).Execute(ctx, exec, request())
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 1, exec.calls.Load())
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{BackoffBase: 200 * time.Millisecond, BackoffMax: time.Second}
	assert.Equal(t, time.Duration(0), p.Backoff(0))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(3))
	assert.Equal(t, time.Second, p.Backoff(4))
	assert.Equal(t, time.Second, p.Backoff(30))

	assert.Equal(t, time.Duration(0), RetryPolicy{}.Backoff(3))
}

func TestRetryPolicy_Attempts(t *testing.T) {
	assert.Equal(t, 3, DefaultRetryPolicy().Attempts())
	assert.Equal(t, 1, RetryPolicy{MaxRetries: -4}.Attempts())
}

func TestIsPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	assert.False(t, IsPermanent(errors.New("x")))
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
}
