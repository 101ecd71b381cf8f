// Package types provides type definitions for structured data used throughout the job evaluator.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle status of a Job
type JobStatus string

// JobStatus constants
const (
	JobStatusNew                      JobStatus = "new"
	JobStatusEvaluating               JobStatus = "evaluating"
	JobStatusAwaitingGapApproval      JobStatus = "awaiting_gap_approval"
	JobStatusAwaitingInterviewAnswers JobStatus = "awaiting_interview_answers"
	JobStatusCompleted                JobStatus = "completed"
	JobStatusRejected                 JobStatus = "rejected"
	JobStatusPassed                   JobStatus = "passed"
	JobStatusFailed                   JobStatus = "failed"
)

// Job is one candidate-to-opportunity evaluation
type Job struct {
	ID             uuid.UUID `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Source         string    `json:"source,omitempty"`
	PostingURL     string    `json:"posting_url,omitempty"`
	Company        string    `json:"company"`
	RoleTitle      string    `json:"role_title"`
	Location       string    `json:"location,omitempty"`
	RemotePolicy   string    `json:"remote_policy,omitempty"`
	EmploymentType string    `json:"employment_type,omitempty"`
	Compensation   string    `json:"compensation,omitempty"`
	Status         JobStatus `json:"status"`
}

// JobDescription is the immutable posting text captured at intake
type JobDescription struct {
	JobID     uuid.UUID `json:"job_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// JobIntake holds the attributes supplied when a job is registered
type JobIntake struct {
	Source         string `json:"source,omitempty" mapstructure:"source"`
	PostingURL     string `json:"posting_url,omitempty" mapstructure:"posting_url" validate:"omitempty,url"`
	Company        string `json:"company" mapstructure:"company" validate:"required"`
	RoleTitle      string `json:"role_title" mapstructure:"role_title" validate:"required"`
	Location       string `json:"location,omitempty" mapstructure:"location"`
	RemotePolicy   string `json:"remote_policy,omitempty" mapstructure:"remote_policy"`
	EmploymentType string `json:"employment_type,omitempty" mapstructure:"employment_type"`
	Compensation   string `json:"compensation,omitempty" mapstructure:"compensation"`
	Description    string `json:"description" mapstructure:"description" validate:"required"`
	ResumeText     string `json:"resume_text" mapstructure:"resume_text" validate:"required"`
}

// NewJob builds a Job and its description from intake data
func NewJob(in JobIntake, now time.Time) (*Job, *JobDescription) {
	job := &Job{
		ID:             uuid.New(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Source:         in.Source,
		PostingURL:     in.PostingURL,
		Company:        in.Company,
		RoleTitle:      in.RoleTitle,
		Location:       in.Location,
		RemotePolicy:   in.RemotePolicy,
		EmploymentType: in.EmploymentType,
		Compensation:   in.Compensation,
		Status:         JobStatusNew,
	}
	desc := &JobDescription{
		JobID:     job.ID,
		Text:      in.Description,
		CreatedAt: now,
	}
	return job, desc
}
