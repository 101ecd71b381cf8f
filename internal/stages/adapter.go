package stages

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/logger"
	"github.com/jonathan/job-evaluator/internal/schemas"
	"github.com/jonathan/job-evaluator/internal/types"
)

// RetryPolicy bounds how often and how long a stage executor is invoked
type RetryPolicy struct {
	// MaxRetries is the number of attempts allowed after the first one
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	// Timeout bounds a single attempt
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// BackoffBase is the delay before the first retry; it doubles per retry
	BackoffBase time.Duration `mapstructure:"backoff_base" validate:"gte=0"`
	// BackoffMax caps the delay between attempts
	BackoffMax time.Duration `mapstructure:"backoff_max" validate:"gte=0"`
}

// DefaultRetryPolicy returns the default policy: two retries, two minutes per attempt
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  2,
		Timeout:     2 * time.Minute,
		BackoffBase: 200 * time.Millisecond,
		BackoffMax:  5 * time.Second,
	}
}

// Attempts is the total attempt budget
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Backoff returns the delay to wait after a failed attempt
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BackoffBase <= 0 || attempt < 1 {
		return 0
	}
	d := float64(p.BackoffBase) * math.Pow(2, float64(attempt-1))
	if p.BackoffMax > 0 && d > float64(p.BackoffMax) {
		return p.BackoffMax
	}
	return time.Duration(d)
}

// Result is a validated stage output
type Result struct {
	Document types.Document
	Attempts int
}

// Adapter invokes executors and admits only documents that satisfy the stage contract
type Adapter struct {
	policy RetryPolicy
	log    *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewAdapter creates an Adapter with the given policy
func NewAdapter(policy RetryPolicy, log *zap.Logger) *Adapter {
	return &Adapter{
		policy: policy,
		log:    logger.OrNop(log),
		sleep:  sleepContext,
	}
}

// Policy returns the adapter's retry policy
func (a *Adapter) Policy() RetryPolicy {
	return a.policy
}

// WithPolicy returns a copy of the adapter using policy
func (a *Adapter) WithPolicy(policy RetryPolicy) *Adapter {
	cp := *a
	cp.policy = policy
	return &cp
}

// Execute runs exec until it yields a document that satisfies req.Contract or
// the attempt budget is spent. Schema violations, timeouts and executor errors
// all draw from the same budget; errors marked Permanent end the loop at once.
// Cancellation of ctx is returned as ctx.Err().
func (a *Adapter) Execute(ctx context.Context, exec Executor, req Request) (*Result, error) {
	maxAttempts := a.policy.Attempts()
	log := a.log.With(zap.String(logger.FieldStage, req.Stage))

	var (
		lastViolations schemas.Violations
		lastErr        error
	)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req.Attempt = attempt

		doc, err := a.invoke(ctx, exec, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var unavailable *ExecutorUnavailable
			if errors.As(err, &unavailable) && unavailable.Permanent {
				log.Warn("executor failed permanently", zap.Int(logger.FieldAttempt, attempt), zap.Error(err))
				return nil, err
			}
			log.Warn("executor attempt failed", zap.Int(logger.FieldAttempt, attempt), zap.Error(err))
			lastErr = err
			lastViolations = nil
			req.PriorViolations = []string{err.Error()}
		} else {
			vs := schemas.Validate(req.Contract, doc)
			if vs == nil {
				log.Debug("stage output accepted", zap.Int(logger.FieldAttempt, attempt))
				return &Result{Document: doc, Attempts: attempt}, nil
			}
			log.Warn("stage output rejected",
				zap.Int(logger.FieldAttempt, attempt),
				zap.Strings("violations", vs.Strings()),
			)
			lastErr = nil
			lastViolations = vs
			req.PriorViolations = vs.Strings()
		}

		if attempt < maxAttempts {
			if err := a.sleep(ctx, a.policy.Backoff(attempt)); err != nil {
				return nil, err
			}
		}
	}

	return nil, &StageContractViolation{
		Stage:      req.Stage,
		Attempts:   maxAttempts,
		Violations: lastViolations,
		Cause:      lastErr,
	}
}

func (a *Adapter) invoke(ctx context.Context, exec Executor, req Request) (types.Document, error) {
	attemptCtx := ctx
	cancel := func() {}
	if a.policy.Timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, a.policy.Timeout)
	}
	defer cancel()

	doc, err := exec.Invoke(attemptCtx, req)
	if err == nil {
		return doc, nil
	}
	if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return nil, &ExecutorTimeout{Stage: req.Stage, Attempt: req.Attempt, Timeout: a.policy.Timeout}
	}
	return nil, &ExecutorUnavailable{
		Stage:     req.Stage,
		Attempt:   req.Attempt,
		Permanent: IsPermanent(err),
		Cause:     err,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
