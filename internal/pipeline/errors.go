package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/job-evaluator/internal/types"
)

// ErrInvalidResumeState indicates a resume call that does not match the run's pending action
type ErrInvalidResumeState struct {
	JobID    uuid.UUID
	Expected types.PendingAction
	Actual   types.PendingAction
	State    types.StateKind
}

func (e *ErrInvalidResumeState) Error() string {
	if e.State == "" {
		return fmt.Sprintf("job %s has no run awaiting %s", e.JobID, e.Expected)
	}
	actual := string(e.Actual)
	if actual == "" {
		actual = "none"
	}
	return fmt.Sprintf("job %s is not awaiting %s (run %s, pending action %s)", e.JobID, e.Expected, e.State, actual)
}

// ErrUnknownAnswerReference indicates answers keyed to questions that were never generated
type ErrUnknownAnswerReference struct {
	QuestionIDs []string
}

func (e *ErrUnknownAnswerReference) Error() string {
	return fmt.Sprintf("unknown question ids: %s", strings.Join(e.QuestionIDs, ", "))
}

// ErrInvalidAnswers indicates a malformed answer submission
type ErrInvalidAnswers struct {
	Message string
}

func (e *ErrInvalidAnswers) Error() string {
	return "invalid answers: " + e.Message
}

// ErrUnknownPipelineVersion indicates a run started under a definition this process does not know
type ErrUnknownPipelineVersion struct {
	Version string
}

func (e *ErrUnknownPipelineVersion) Error() string {
	return fmt.Sprintf("unknown pipeline version %q", e.Version)
}

// ErrRunPaused indicates a continue call on a run that waits for a human decision
type ErrRunPaused struct {
	RunID         uuid.UUID
	PendingAction types.PendingAction
}

func (e *ErrRunPaused) Error() string {
	return fmt.Sprintf("run %s is paused %s and continues only through its resume call", e.RunID, e.PendingAction)
}

// IsRunPaused reports whether err is an ErrRunPaused
func IsRunPaused(err error) bool {
	var paused *ErrRunPaused
	return errors.As(err, &paused)
}
