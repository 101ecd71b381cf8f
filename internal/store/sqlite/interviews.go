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

func insertInterview(ctx context.Context, q querier, runID uuid.UUID, iv *types.Interview) error {
	questions, err := marshalJSON(iv.Questions, "questions")
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT INTO interviews (run_id, questions, created_at) VALUES (?, ?, ?)`,
		runID.String(), questions, formatTime(iv.CreatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: interview already exists", store.ErrInvalidTransition)
	}
	if err != nil {
		return fmt.Errorf("failed to insert interview: %w", err)
	}
	return nil
}

func recordAnswers(ctx context.Context, q querier, runID uuid.UUID, t store.Transition) error {
	answers, err := marshalJSON(t.Answers, "answers")
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx,
		`UPDATE interviews SET answers = ?, answered_at = ? WHERE run_id = ? AND answered_at IS NULL`,
		answers, formatTime(t.AnsweredAt), runID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to record answers: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: no unanswered interview", store.ErrInvalidTransition)
	}
	return nil
}

// GetInterview retrieves the interview of a run
func (s *Store) GetInterview(ctx context.Context, runID uuid.UUID) (*types.Interview, error) {
	iv := types.Interview{RunID: runID}
	var questions, createdAt string
	var answers, answeredAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT questions, answers, created_at, answered_at FROM interviews WHERE run_id = ?`,
		runID.String(),
	).Scan(&questions, &answers, &createdAt, &answeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	if err := json.Unmarshal([]byte(questions), &iv.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	if answers.Valid {
		if err := json.Unmarshal([]byte(answers.String), &iv.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
		}
	}
	if iv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if answeredAt.Valid {
		at, err := parseTime(answeredAt.String)
		if err != nil {
			return nil, err
		}
		iv.AnsweredAt = &at
	}
	return &iv, nil
}

func insertArtifacts(ctx context.Context, q querier, runID uuid.UUID, artifacts []types.Artifact) error {
	var offset int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM artifacts WHERE run_id = ?`, runID.String()).Scan(&offset); err != nil {
		return fmt.Errorf("failed to count artifacts: %w", err)
	}
	for i, a := range artifacts {
		meta := a.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := marshalJSON(meta, "artifact metadata")
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx,
			`INSERT INTO artifacts (id, run_id, ordinal, kind, content, metadata, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID.String(), runID.String(), offset+i, a.Kind, a.Content, metaJSON, formatTime(a.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert artifact: %w", err)
		}
	}
	return nil
}

// ListArtifacts lists the artifacts of a run in creation order
func (s *Store) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]types.Artifact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, kind, content, metadata, created_at FROM artifacts WHERE run_id = ? ORDER BY ordinal`,
		runID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	artifacts := make([]types.Artifact, 0)
	for rows.Next() {
		var a types.Artifact
		var meta, createdAt string
		if err := rows.Scan(&a.ID, &a.RunID, &a.Kind, &a.Content, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact metadata: %w", err)
		}
		if a.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}
	return artifacts, nil
}
