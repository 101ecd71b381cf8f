// Package sqlite provides a single-host Run State Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/types"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// timeLayout is fixed-width so that text timestamps sort chronologically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements store.Store on a database/sql SQLite handle
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Open opens the database file at path and applies migrations
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer; transactions serialize on the single connection
	db.SetMaxOpenConns(1)

	s := NewFromDB(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB wraps an existing handle without migrating it
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate applies the embedded SQL migrations via goose
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateJob inserts a job and its description
func (s *Store) CreateJob(ctx context.Context, job *types.Job, desc *types.JobDescription) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (id, source, posting_url, company, role_title, location, remote_policy,
		                   employment_type, compensation, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID.String(), job.Source, job.PostingURL, job.Company, job.RoleTitle, job.Location, job.RemotePolicy,
		job.EmploymentType, job.Compensation, string(job.Status), formatTime(job.CreatedAt), formatTime(job.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	if desc != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO job_descriptions (job_id, text, created_at) VALUES (?, ?, ?)`,
			job.ID.String(), desc.Text, formatTime(desc.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to create job description: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	var job types.Job
	var status, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, posting_url, company, role_title, location, remote_policy,
		        employment_type, compensation, status, created_at, updated_at
		 FROM jobs WHERE id = ?`,
		id.String(),
	).Scan(&job.ID, &job.Source, &job.PostingURL, &job.Company, &job.RoleTitle, &job.Location,
		&job.RemotePolicy, &job.EmploymentType, &job.Compensation, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job.Status = types.JobStatus(status)
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobDescription retrieves the description of a job
func (s *Store) GetJobDescription(ctx context.Context, jobID uuid.UUID) (*types.JobDescription, error) {
	desc := types.JobDescription{JobID: jobID}
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT text, created_at FROM job_descriptions WHERE job_id = ?`, jobID.String(),
	).Scan(&desc.Text, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job description: %w", err)
	}
	if desc.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &desc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func marshalJSON(v any, what string) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s: %w", what, err)
	}
	return string(raw), nil
}
