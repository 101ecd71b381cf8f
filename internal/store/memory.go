package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/job-evaluator/internal/types"
)

// MemoryStore keeps all state in process memory and is safe for concurrent use.
// State does not survive a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	jobs       map[uuid.UUID]types.Job
	descs      map[uuid.UUID]types.JobDescription
	runs       map[uuid.UUID]*types.Run
	runsByJob  map[uuid.UUID][]uuid.UUID
	interviews map[uuid.UUID]*types.Interview
	artifacts  map[uuid.UUID][]types.Artifact
	now        func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:       make(map[uuid.UUID]types.Job),
		descs:      make(map[uuid.UUID]types.JobDescription),
		runs:       make(map[uuid.UUID]*types.Run),
		runsByJob:  make(map[uuid.UUID][]uuid.UUID),
		interviews: make(map[uuid.UUID]*types.Interview),
		artifacts:  make(map[uuid.UUID][]types.Artifact),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a job and its description.
func (s *MemoryStore) CreateJob(ctx context.Context, job *types.Job, desc *types.JobDescription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = *job
	if desc != nil {
		s.descs[job.ID] = *desc
	}
	return nil
}

// GetJob returns a job by its ID.
func (s *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

// GetJobDescription returns the description captured for a job.
func (s *MemoryStore) GetJobDescription(ctx context.Context, jobID uuid.UUID) (*types.JobDescription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	desc, ok := s.descs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return &desc, nil
}

// CreateRun stores a new run unless the job already has an active one.
func (s *MemoryStore) CreateRun(ctx context.Context, run *types.Run, jobStatus types.JobStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[run.JobID]
	if !ok {
		return ErrNotFound
	}
	for _, id := range s.runsByJob[run.JobID] {
		if !s.runs[id].IsTerminal() {
			return ErrActiveRunExists
		}
	}

	stored := run.Clone()
	s.runs[run.ID] = stored
	s.runsByJob[run.JobID] = append(s.runsByJob[run.JobID], run.ID)
	if jobStatus != "" {
		job.Status = jobStatus
		job.UpdatedAt = s.now()
		s.jobs[job.ID] = job
	}
	return nil
}

// GetRun returns a copy of the stored run.
func (s *MemoryStore) GetRun(ctx context.Context, id uuid.UUID) (*types.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return run.Clone(), nil
}

// GetLatestRunForJob returns the most recently created run of a job.
func (s *MemoryStore) GetLatestRunForJob(ctx context.Context, jobID uuid.UUID) (*types.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.runsByJob[jobID]
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return s.runs[ids[len(ids)-1]].Clone(), nil
}

// ListRunnableRuns returns pending runs, oldest first.
func (s *MemoryStore) ListRunnableRuns(ctx context.Context) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]*types.Run, 0)
	for _, run := range s.runs {
		if run.State.Kind == types.StatePending {
			pending = append(pending, run)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	ids := make([]uuid.UUID, 0, len(pending))
	for _, run := range pending {
		ids = append(ids, run.ID)
	}
	return ids, nil
}

// ApplyTransition applies t atomically under the store lock.
func (s *MemoryStore) ApplyTransition(ctx context.Context, t Transition) (*types.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.Run == nil {
		return nil, fmt.Errorf("%w: run is required", ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.runs[t.Run.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if err := CheckTransition(current, t); err != nil {
		return nil, err
	}
	if t.Interview != nil {
		if _, exists := s.interviews[current.ID]; exists {
			return nil, fmt.Errorf("%w: interview already exists", ErrInvalidTransition)
		}
	}
	var answered *types.Interview
	if len(t.Answers) > 0 {
		existing, exists := s.interviews[current.ID]
		if !exists {
			return nil, fmt.Errorf("%w: no interview to answer", ErrInvalidTransition)
		}
		if existing.Answered() {
			return nil, fmt.Errorf("%w: interview already answered", ErrInvalidTransition)
		}
		cp := *existing
		cp.Answers = append([]types.Answer(nil), t.Answers...)
		at := t.AnsweredAt
		cp.AnsweredAt = &at
		answered = &cp
	}

	// every check passed; apply all parts
	now := s.now()
	next := NextRun(current, t, now)
	s.runs[current.ID] = next

	if t.Interview != nil {
		iv := *t.Interview
		iv.RunID = current.ID
		iv.Questions = append([]types.Question(nil), t.Interview.Questions...)
		s.interviews[current.ID] = &iv
	}
	if answered != nil {
		s.interviews[current.ID] = answered
	}
	if len(t.Artifacts) > 0 {
		s.artifacts[current.ID] = append(s.artifacts[current.ID], t.Artifacts...)
	}
	if t.JobStatus != "" {
		if job, ok := s.jobs[current.JobID]; ok {
			job.Status = t.JobStatus
			job.UpdatedAt = now
			s.jobs[job.ID] = job
		}
	}
	return next.Clone(), nil
}

// GetInterview returns the interview of a run.
func (s *MemoryStore) GetInterview(ctx context.Context, runID uuid.UUID) (*types.Interview, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	iv, ok := s.interviews[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *iv
	cp.Questions = append([]types.Question(nil), iv.Questions...)
	cp.Answers = append([]types.Answer(nil), iv.Answers...)
	return &cp, nil
}

// ListArtifacts returns the artifacts of a run in creation order.
func (s *MemoryStore) ListArtifacts(ctx context.Context, runID uuid.UUID) ([]types.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Artifact{}, s.artifacts[runID]...), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}
