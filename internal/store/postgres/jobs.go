package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/types"
)

// CreateJob inserts a job and its description
func (s *Store) CreateJob(ctx context.Context, job *types.Job, desc *types.JobDescription) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (id, source, posting_url, company, role_title, location, remote_policy,
		                   employment_type, compensation, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.Source, job.PostingURL, job.Company, job.RoleTitle, job.Location, job.RemotePolicy,
		job.EmploymentType, job.Compensation, string(job.Status), job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	if desc != nil {
		_, err = tx.Exec(ctx,
			`INSERT INTO job_descriptions (job_id, text, created_at) VALUES ($1, $2, $3)`,
			job.ID, desc.Text, desc.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create job description: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	return getJob(ctx, s.db, id)
}

func getJob(ctx context.Context, q querier, id uuid.UUID) (*types.Job, error) {
	var job types.Job
	var status string
	err := q.QueryRow(ctx,
		`SELECT id, source, posting_url, company, role_title, location, remote_policy,
		        employment_type, compensation, status, created_at, updated_at
		 FROM jobs WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.Source, &job.PostingURL, &job.Company, &job.RoleTitle, &job.Location,
		&job.RemotePolicy, &job.EmploymentType, &job.Compensation, &status, &job.CreatedAt, &job.UpdatedAt)
	if notFound(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job.Status = types.JobStatus(status)
	return &job, nil
}

// GetJobDescription retrieves the description of a job
func (s *Store) GetJobDescription(ctx context.Context, jobID uuid.UUID) (*types.JobDescription, error) {
	var desc types.JobDescription
	err := s.db.QueryRow(ctx,
		`SELECT job_id, text, created_at FROM job_descriptions WHERE job_id = $1`,
		jobID,
	).Scan(&desc.JobID, &desc.Text, &desc.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job description: %w", err)
	}
	return &desc, nil
}

func setJobStatus(ctx context.Context, q querier, jobID uuid.UUID, status types.JobStatus) error {
	_, err := q.Exec(ctx,
		`UPDATE jobs SET status = $2, updated_at = NOW() WHERE id = $1`,
		jobID, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}
