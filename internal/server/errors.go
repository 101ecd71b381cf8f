package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/store"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrMalformedBody indicates the request body is not valid JSON for the route
type ErrMalformedBody struct {
	Cause error
}

func (e *ErrMalformedBody) Error() string {
	return fmt.Sprintf("invalid request body: %v", e.Cause)
}

func (e *ErrMalformedBody) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		malformed     *ErrMalformedBody
		validation    *ErrValidation
		resumeState   *pipeline.ErrInvalidResumeState
		paused        *pipeline.ErrRunPaused
		unknownAnswer *pipeline.ErrUnknownAnswerReference
		badAnswers    *pipeline.ErrInvalidAnswers
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &malformed), errors.As(err, &resumeState), errors.As(err, &paused):
		return http.StatusBadRequest
	case errors.As(err, &validation), errors.As(err, &unknownAnswer), errors.As(err, &badAnswers):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrConcurrentModification), errors.Is(err, store.ErrActiveRunExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// validationError converts the first validator failure into an ErrValidation
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	fe := fieldErrs[0]
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	msg := "failed on " + fe.Tag()
	if fe.Param() != "" {
		msg += "=" + fe.Param()
	}
	return &ErrValidation{Field: field, Message: msg}
}
