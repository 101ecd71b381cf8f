// Package gateway exposes the two human decisions that resume a paused run
// and hands resumed runs to a scheduler.
package gateway

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/job-evaluator/internal/logger"
	"github.com/jonathan/job-evaluator/internal/pipeline"
	"github.com/jonathan/job-evaluator/internal/types"
)

// Orchestrator is the part of the pipeline orchestrator the gateway uses
type Orchestrator interface {
	ApproveGapAnalysis(ctx context.Context, jobID uuid.UUID, approved bool) (*pipeline.Resolution, error)
	SubmitInterviewAnswers(ctx context.Context, jobID uuid.UUID, answers []types.Answer) (*pipeline.Resolution, error)
	Status(ctx context.Context, jobID uuid.UUID) (*pipeline.Status, error)
}

// Result is the response to a resume call
type Result struct {
	JobID   uuid.UUID       `json:"job_id"`
	Status  types.JobStatus `json:"status"`
	Message string          `json:"message"`
}

// Messages returned with a Result
const (
	MsgGapApproved      = "gap analysis approved, evaluation resumed"
	MsgGapRejected      = "gap analysis rejected, evaluation ended"
	MsgAnswersRecorded  = "interview answers recorded, evaluation resumed"
	MsgAlreadyResolved  = "checkpoint already resolved"
	MsgContinueDeferred = "decision recorded, evaluation will continue on the next recovery pass"
)

// Gateway applies resume decisions and schedules the resumed run
type Gateway struct {
	orch  Orchestrator
	sched Scheduler
	log   *zap.Logger
}

// New creates a Gateway
func New(orch Orchestrator, sched Scheduler, log *zap.Logger) *Gateway {
	return &Gateway{orch: orch, sched: sched, log: logger.OrNop(log)}
}

// ApproveGapAnalysis approves or rejects the gap analysis of the job's run
func (g *Gateway) ApproveGapAnalysis(ctx context.Context, jobID uuid.UUID, approved bool) (*Result, error) {
	res, err := g.orch.ApproveGapAnalysis(ctx, jobID, approved)
	if err != nil {
		return nil, err
	}
	msg := MsgGapApproved
	if !approved {
		msg = MsgGapRejected
	}
	return g.finish(ctx, jobID, res, msg)
}

// SubmitInterviewAnswers records the candidate's answers for the job's run
func (g *Gateway) SubmitInterviewAnswers(ctx context.Context, jobID uuid.UUID, answers []types.Answer) (*Result, error) {
	res, err := g.orch.SubmitInterviewAnswers(ctx, jobID, answers)
	if err != nil {
		return nil, err
	}
	return g.finish(ctx, jobID, res, MsgAnswersRecorded)
}

func (g *Gateway) finish(ctx context.Context, jobID uuid.UUID, res *pipeline.Resolution, msg string) (*Result, error) {
	if !res.Applied {
		msg = MsgAlreadyResolved
	} else if res.Run.State.Kind == types.StatePending {
		if err := g.sched.Schedule(ctx, res.Run.ID); err != nil {
			g.log.Warn("failed to continue resumed run",
				zap.String(logger.FieldRunID, res.Run.ID.String()),
				zap.Error(err),
			)
			msg = MsgContinueDeferred
		}
	}

	status, err := g.orch.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &Result{JobID: jobID, Status: status.Job.Status, Message: msg}, nil
}
