package postgres

import (
	"context"
	"encoding/json"
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

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT true FROM jobs WHERE id = $1 FOR UPDATE`, run.JobID).Scan(&exists); err != nil {
		if notFound(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("failed to lock job: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (`+runColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.ID, run.JobID, run.PipelineVersion, cols.routing, cols.config, string(run.State.Kind),
		run.State.StageIndex, string(run.State.Checkpoint), cols.failure, cols.resolutions, run.Outcome,
		run.Version, run.CreatedAt, run.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return store.ErrActiveRunExists
	}
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	if jobStatus != "" {
		if err := setJobStatus(ctx, tx, run.JobID, jobStatus); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a run with its stage outputs
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*types.Run, error) {
	return getRun(ctx, s.db, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
}

// GetLatestRunForJob retrieves the most recently created run of a job
func (s *Store) GetLatestRunForJob(ctx context.Context, jobID uuid.UUID) (*types.Run, error) {
	return getRun(ctx, s.db,
		`SELECT `+runColumns+` FROM runs WHERE job_id = $1 ORDER BY created_at DESC LIMIT 1`, jobID)
}

// ListRunnableRuns lists pending runs, oldest first
func (s *Store) ListRunnableRuns(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id FROM runs WHERE state_kind = $1 ORDER BY created_at`,
		string(types.StatePending),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runnable runs: %w", err)
	}
	defer rows.Close()

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

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := getRun(ctx, tx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, t.Run.ID)
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

	tag, err := tx.Exec(ctx,
		`UPDATE runs
		 SET model_routing = $3, config = $4, state_kind = $5, stage_index = $6, checkpoint = $7,
		     failure = $8, resolutions = $9, outcome = $10, version = version + 1, updated_at = $11
		 WHERE id = $1 AND version = $2`,
		next.ID, t.ExpectedVersion, cols.routing, cols.config, string(next.State.Kind), next.State.StageIndex,
		string(next.State.Checkpoint), cols.failure, cols.resolutions, next.Outcome, next.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return nil, store.ErrActiveRunExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
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
		if err := setJobStatus(ctx, tx, next.JobID, t.JobStatus); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return next, nil
}

func insertOutput(ctx context.Context, q querier, runID uuid.UUID, out *types.StageOutput) error {
	content, err := json.Marshal(out.Content)
	if err != nil {
		return fmt.Errorf("failed to marshal stage output: %w", err)
	}
	_, err = q.Exec(ctx,
		`INSERT INTO stage_outputs (run_id, position, stage, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		runID, out.Position, out.Stage, content, out.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: stage %s already recorded", store.ErrInvalidTransition, out.Stage)
	}
	if err != nil {
		return fmt.Errorf("failed to insert stage output: %w", err)
	}
	return nil
}

// runCols holds the JSON-encoded columns of a run row
type runCols struct {
	routing     []byte
	config      []byte
	failure     []byte
	resolutions []byte
}

func encodeRun(run *types.Run) (runCols, error) {
	var cols runCols
	var err error
	routing := run.ModelRouting
	if routing == nil {
		routing = map[string]string{}
	}
	if cols.routing, err = json.Marshal(routing); err != nil {
		return cols, fmt.Errorf("failed to marshal model routing: %w", err)
	}
	if cols.config, err = json.Marshal(run.Config); err != nil {
		return cols, fmt.Errorf("failed to marshal run config: %w", err)
	}
	if run.State.Failure != nil {
		if cols.failure, err = json.Marshal(run.State.Failure); err != nil {
			return cols, fmt.Errorf("failed to marshal failure: %w", err)
		}
	}
	resolutions := run.Resolutions
	if resolutions == nil {
		resolutions = []types.CheckpointResolution{}
	}
	if cols.resolutions, err = json.Marshal(resolutions); err != nil {
		return cols, fmt.Errorf("failed to marshal resolutions: %w", err)
	}
	return cols, nil
}

func getRun(ctx context.Context, q querier, query string, arg any) (*types.Run, error) {
	var run types.Run
	var kind, checkpoint string
	var routing, config, failure, resolutions []byte
	err := q.QueryRow(ctx, query, arg).Scan(
		&run.ID, &run.JobID, &run.PipelineVersion, &routing, &config, &kind, &run.State.StageIndex,
		&checkpoint, &failure, &resolutions, &run.Outcome, &run.Version, &run.CreatedAt, &run.UpdatedAt,
	)
	if notFound(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	run.State.Kind = types.StateKind(kind)
	run.State.Checkpoint = types.PendingAction(checkpoint)

	if err := json.Unmarshal(routing, &run.ModelRouting); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model routing: %w", err)
	}
	if err := json.Unmarshal(config, &run.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run config: %w", err)
	}
	if failure != nil {
		run.State.Failure = &types.Failure{}
		if err := json.Unmarshal(failure, run.State.Failure); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failure: %w", err)
		}
	}
	if err := json.Unmarshal(resolutions, &run.Resolutions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resolutions: %w", err)
	}

	run.Outputs, err = listOutputs(ctx, q, run.ID)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func listOutputs(ctx context.Context, q querier, runID uuid.UUID) ([]types.StageOutput, error) {
	rows, err := q.Query(ctx,
		`SELECT stage, position, content, created_at FROM stage_outputs WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stage outputs: %w", err)
	}
	defer rows.Close()

	outputs := make([]types.StageOutput, 0)
	for rows.Next() {
		var out types.StageOutput
		var content []byte
		if err := rows.Scan(&out.Stage, &out.Position, &content, &out.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan stage output: %w", err)
		}
		if err := json.Unmarshal(content, &out.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stage output: %w", err)
		}
		outputs = append(outputs, out)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stage outputs: %w", err)
	}
	return outputs, nil
}
