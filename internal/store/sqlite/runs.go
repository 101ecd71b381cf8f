package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/types"
)

const runColumns = `id, job_id, pipeline_version, model_routing, config, state_kind, stage_index,
	checkpoint, failure, resolutions, outcome, version, created_at, updated_at`

// CreateRun inserts a run and updates the job status in one transaction
func (s *Store) CreateRun(ctx context.Context, run *types.Run, jobStatus types.JobStatus) error {
	cols, err := encodeRun(run)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, run.JobID.String()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up job: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.JobID.String(), run.PipelineVersion, cols.routing, cols.config,
		string(run.State.Kind), run.State.StageIndex, string(run.State.Checkpoint), cols.failure,
		cols.resolutions, run.Outcome, run.Version, formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrActiveRunExists
	}
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	if jobStatus != "" {
		if err := s.setJobStatus(ctx, tx, run.JobID, jobStatus); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a run with its stage outputs
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*types.Run, error) {
	return getRun(ctx, s.db, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id.String())
}

// GetLatestRunForJob retrieves the most recently created run of a job
func (s *Store) GetLatestRunForJob(ctx context.Context, jobID uuid.UUID) (*types.Run, error) {
	return getRun(ctx, s.db,
		`SELECT `+runColumns+` FROM runs WHERE job_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, jobID.String())
}

// ListRunnableRuns lists pending runs, oldest first
func (s *Store) ListRunnableRuns(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE state_kind = ? ORDER BY created_at, rowid`, string(types.StatePending))
	if err != nil {
		return nil, fmt.Errorf("failed to list runnable runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return ids, nil
}

// ApplyTransition applies t in one transaction guarded by the run version
func (s *Store) ApplyTransition(ctx context.Context, t store.Transition) (*types.Run, error) {
	if t.Run == nil {
		return nil, fmt.Errorf("%w: run is required", store.ErrInvalidTransition)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getRun(ctx, tx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, t.Run.ID.String())
	if err != nil {
		return nil, err
	}
	if err := store.CheckTransition(current, t); err != nil {
		return nil, err
	}

	next := store.NextRun(current, t, s.now())
	cols, err := encodeRun(next)
	if err != nil {
		return nil, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE runs
		 SET model_routing = ?, config = ?, state_kind = ?, stage_index = ?, checkpoint = ?,
		     failure = ?, resolutions = ?, outcome = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		cols.routing, cols.config, string(next.State.Kind), next.State.StageIndex, string(next.State.Checkpoint),
		cols.failure, cols.resolutions, next.Outcome, formatTime(next.UpdatedAt), next.ID.String(), t.ExpectedVersion,
	)
	if isUniqueViolation(err) {
		return nil, store.ErrActiveRunExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return nil, store.ErrConcurrentModification
	}

	if t.Output != nil {
		if err := insertOutput(ctx, tx, next.ID, t.Output); err != nil {
			return nil, err
		}
	}
	if t.Interview != nil {
		if err := insertInterview(ctx, tx, next.ID, t.Interview); err != nil {
			return nil, err
		}
	}
	if len(t.Answers) > 0 {
		if err := recordAnswers(ctx, tx, next.ID, t); err != nil {
			return nil, err
		}
	}
	if len(t.Artifacts) > 0 {
		if err := insertArtifacts(ctx, tx, next.ID, t.Artifacts); err != nil {
			return nil, err
		}
	}
	if t.JobStatus != "" {
		if err := s.setJobStatus(ctx, tx, next.JobID, t.JobStatus); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return next, nil
}

func (s *Store) setJobStatus(ctx context.Context, q querier, jobID uuid.UUID, status types.JobStatus) error {
	_, err := q.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(s.now()), jobID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

func insertOutput(ctx context.Context, q querier, runID uuid.UUID, out *types.StageOutput) error {
	content, err := marshalJSON(out.Content, "stage output")
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO stage_outputs (run_id, position, stage, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID.String(), out.Position, out.Stage, content, formatTime(out.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: stage %s already recorded", store.ErrInvalidTransition, out.Stage)
	}
	if err != nil {
		return fmt.Errorf("failed to insert stage output: %w", err)
	}
	return nil
}

type runCols struct {
	routing     string
	config      string
	failure     *string
	resolutions string
}

func encodeRun(run *types.Run) (runCols, error) {
	var cols runCols
	var err error
	routing := run.ModelRouting
	if routing == nil {
		routing = map[string]string{}
	}
	if cols.routing, err = marshalJSON(routing, "model routing"); err != nil {
		return cols, err
	}
	if cols.config, err = marshalJSON(run.Config, "run config"); err != nil {
		return cols, err
	}
	if run.State.Failure != nil {
		failure, err := marshalJSON(run.State.Failure, "failure")
		if err != nil {
			return cols, err
		}
		cols.failure = &failure
	}
	resolutions := run.Resolutions
	if resolutions == nil {
		resolutions = []types.CheckpointResolution{}
	}
	if cols.resolutions, err = marshalJSON(resolutions, "resolutions"); err != nil {
		return cols, err
	}
	return cols, nil
}

func getRun(ctx context.Context, q querier, query string, arg any) (*types.Run, error) {
	var run types.Run
	var kind, checkpoint, routing, config, resolutions, createdAt, updatedAt string
	var failure, outcome sql.NullString
	err := q.QueryRowContext(ctx, query, arg).Scan(
		&run.ID, &run.JobID, &run.PipelineVersion, &routing, &config, &kind, &run.State.StageIndex,
		&checkpoint, &failure, &resolutions, &outcome, &run.Version, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.State.Kind = types.StateKind(kind)
	run.State.Checkpoint = types.PendingAction(checkpoint)
	if outcome.Valid {
		o := outcome.String
		run.Outcome = &o
	}
	if err := json.Unmarshal([]byte(routing), &run.ModelRouting); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model routing: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &run.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run config: %w", err)
	}
	if failure.Valid {
		run.State.Failure = &types.Failure{}
		if err := json.Unmarshal([]byte(failure.String), run.State.Failure); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failure: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(resolutions), &run.Resolutions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resolutions: %w", err)
	}
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}

	run.Outputs, err = listOutputs(ctx, q, run.ID)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func listOutputs(ctx context.Context, q querier, runID uuid.UUID) ([]types.StageOutput, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT stage, position, content, created_at FROM stage_outputs WHERE run_id = ? ORDER BY position`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage outputs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	outputs := make([]types.StageOutput, 0)
	for rows.Next() {
		var out types.StageOutput
		var content, createdAt string
		if err := rows.Scan(&out.Stage, &out.Position, &content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage output: %w", err)
		}
		if err := json.Unmarshal([]byte(content), &out.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stage output: %w", err)
		}
		if out.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stage outputs: %w", err)
	}
	return outputs, nil
}
