package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-evaluator/internal/store"
	"github.com/jonathan/job-evaluator/internal/types"
)

func insertInterview(ctx context.Context, q querier, runID uuid.UUID, iv *types.Interview) error {
	questions, err := json.Marshal(iv.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}
	_, err = q.Exec(ctx,
		`INSERT INTO interviews (run_id, questions, created_at) VALUES ($1, $2, $3)`,
		runID, questions, iv.CreatedAt,
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
	answers, err := json.Marshal(t.Answers)
	if err != nil {
		return fmt.Errorf("failed to marshal answers: %w", err)
	}
	tag, err := q.Exec(ctx,
		`UPDATE interviews SET answers = $2, answered_at = $3
		 WHERE run_id = $1 AND answered_at IS NULL`,
		runID, answers, t.AnsweredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record answers: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no unanswered interview", store.ErrInvalidTransition)
	}
	return nil
}

// GetInterview retrieves the interview of a run
func (s *Store) GetInterview(ctx context.Context, runID uuid.UUID) (*types.Interview, error) {
	iv := types.Interview{RunID: runID}
	var questions, answers []byte
	var answeredAt *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT questions, answers, created_at, answered_at FROM interviews WHERE run_id = $1`,
		runID,
	).Scan(&questions, &answers, &iv.CreatedAt, &answeredAt)
	if notFound(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get interview: %w", err)
	}
	if err := json.Unmarshal(questions, &iv.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}
	if answers != nil {
		if err := json.Unmarshal(answers, &iv.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
		}
	}
	iv.AnsweredAt = answeredAt
	return &iv, nil
}

func insertArtifacts(ctx context.Context, q querier, runID uuid.UUID, artifacts []types.Artifact) error {
	var offset int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM artifacts WHERE run_id = $1`, runID).Scan(&offset); err != nil {
		return fmt.Errorf("failed to count artifacts: %w", err)
	}
	for i, a := range artifacts {
		meta := a.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("failed to marshal artifact metadata: %w", err)
		}
		_, err = q.Exec(ctx,
			`INSERT INTO artifacts (id, run_id, ordinal, kind, content, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, runID, offset+i, a.Kind, a.Content, metaJSON, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert artifact: %w", err)
		}
	}
	return nil
}

// ListArtifacts lists the artifacts of a run in creation order
func (s *Store) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]types.Artifact, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, run_id, kind, content, metadata, created_at
		 FROM artifacts WHERE run_id = $1 ORDER BY ordinal`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := make([]types.Artifact, 0)
	for rows.Next() {
		var a types.Artifact
		var meta []byte
		if err := rows.Scan(&a.ID, &a.RunID, &a.Kind, &a.Content, &meta, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal artifact metadata: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating artifacts: %w", err)
	}
	return artifacts, nil
}
