package stages

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonathan/job-evaluator/internal/schemas"
)

// Failure reasons recorded on failed runs
const (
	ReasonContractViolation   = "StageContractViolation"
	ReasonExecutorUnavailable = "ExecutorUnavailable"
	ReasonExecutorTimeout     = "ExecutorTimeout"
)

// StageContractViolation is returned when the retry budget is exhausted
type StageContractViolation struct {
	Stage      string
	Attempts   int
	Violations schemas.Violations
	// Cause is the executor error of the last attempt, if it failed outright
	Cause error
}

func (e *StageContractViolation) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "stage %s produced no valid output after %d attempts", e.Stage, e.Attempts)
	if len(e.Violations) > 0 {
		sb.WriteString(": ")
		sb.WriteString(strings.Join(e.Violations.Strings(), "; "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *StageContractViolation) Unwrap() error {
	return e.Cause
}

// Details renders the last-seen problems for operator visibility
func (e *StageContractViolation) Details() []string {
	details := e.Violations.Strings()
	if e.Cause != nil {
		details = append(details, e.Cause.Error())
	}
	return details
}

// ExecutorTimeout is returned when an attempt exceeds its deadline
type ExecutorTimeout struct {
	Stage   string
	Attempt int
	Timeout time.Duration
}

func (e *ExecutorTimeout) Error() string {
	return fmt.Sprintf("stage %s attempt %d timed out after %s", e.Stage, e.Attempt, e.Timeout)
}

// ExecutorUnavailable wraps an error reported by the executor itself
type ExecutorUnavailable struct {
	Stage     string
	Attempt   int
	Permanent bool
	Cause     error
}

func (e *ExecutorUnavailable) Error() string {
	return fmt.Sprintf("stage %s attempt %d: executor unavailable: %v", e.Stage, e.Attempt, e.Cause)
}

func (e *ExecutorUnavailable) Unwrap() error {
	return e.Cause
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an executor error as non-retriable
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// FailureReason maps an adapter error to the reason recorded on the run
func FailureReason(err error) string {
	var violation *StageContractViolation
	if errors.As(err, &violation) {
		return ReasonContractViolation
	}
	var unavailable *ExecutorUnavailable
	if errors.As(err, &unavailable) {
		return ReasonExecutorUnavailable
	}
	var timeout *ExecutorTimeout
	if errors.As(err, &timeout) {
		return ReasonExecutorTimeout
	}
	return ReasonContractViolation
}
