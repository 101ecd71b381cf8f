package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/logger"
	"github.com/jonathan/job-evaluator/internal/types"
)

// maxBodyBytes bounds request bodies; descriptions and resumes are plain text
const maxBodyBytes = 1 << 20

// CreateJobResponse is the response to POST /jobs
type CreateJobResponse struct {
	Job *types.Job `json:"job"`
	Run *types.Run `json:"run"`
}

// StartRunRequest is the request body of POST /jobs/{id}/runs
type StartRunRequest struct {
	ResumeText          string `json:"resume_text" validate:"required"`
	MaxRetries          int    `json:"max_retries,omitempty" validate:"gte=0,lte=10"`
	StageTimeoutSeconds int    `json:"stage_timeout_seconds,omitempty" validate:"gte=0,lte=3600"`
}

// GapApprovalRequest is the request body of POST /jobs/{id}/gap-approval
type GapApprovalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

// InterviewAnswersRequest is the request body of POST /jobs/{id}/interview-answers
type InterviewAnswersRequest struct {
	Answers []types.Answer `json:"answers" validate:"required,min=1,dive"`
}

// decode reads and validates a JSON request body
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &ErrMalformedBody{Cause: errors.New("empty body")}
		}
		return &ErrMalformedBody{Cause: err}
	}
	if err := s.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, &ErrValidation{Field: "id", Message: "must be a UUID"}
	}
	return id, nil
}

// handleCreateJob registers a job and starts its first run
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req types.JobIntake
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	job, err := s.eval.CreateJob(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	run, err := s.eval.StartRun(r.Context(), job.ID, types.RunConfig{ResumeText: req.ResumeText})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.schedule(r, run)

	s.jsonResponse(w, http.StatusCreated, CreateJobResponse{Job: job, Run: run})
}

// handleGetJob returns the job, its latest run and the pending action
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status, err := s.eval.Status(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// handleStartRun starts a new run for a job whose previous run is terminal
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req StartRunRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	run, err := s.eval.StartRun(r.Context(), id, types.RunConfig{
		ResumeText:          req.ResumeText,
		MaxRetries:          req.MaxRetries,
		StageTimeoutSeconds: req.StageTimeoutSeconds,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.schedule(r, run)

	s.jsonResponse(w, http.StatusCreated, run)
}

// handleGapApproval resolves the gap approval checkpoint
func (s *Server) handleGapApproval(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req GapApprovalRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.resumer.ApproveGapAnalysis(r.Context(), id, *req.Approved)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handleInterviewAnswers resolves the interview answers checkpoint
func (s *Server) handleInterviewAnswers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req InterviewAnswersRequest
	if err := s.decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	res, err := s.resumer.SubmitInterviewAnswers(r.Context(), id, req.Answers)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handleGetInterview returns the interview questions, answers and notes
func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	iv, err := s.eval.Interview(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, iv)
}

// handleRunArtifacts lists the deliverables of a completed run
func (s *Server) handleRunArtifacts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	artifacts, err := s.eval.Artifacts(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if artifacts == nil {
		artifacts = []types.Artifact{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"run_id": id, "artifacts": artifacts})
}

// schedule hands a new run to the scheduler. A run that cannot be scheduled
// stays pending and is picked up by recovery.
func (s *Server) schedule(r *http.Request, run *types.Run) {
	if s.sched == nil {
		return
	}
	if err := s.sched.Schedule(r.Context(), run.ID); err != nil {
		s.log.Warn("run not scheduled",
			zap.String(logger.FieldRunID, run.ID.String()),
			zap.Error(err),
		)
	}
}
