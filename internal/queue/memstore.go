package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store with the same claim semantics as PgStore.
// It backs tests and local runs without Postgres; it is not durable.
type MemStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewMemStore() *MemStore {
	return &MemStore{
		jobs: make(map[string]*Job),
		now:  time.Now,
	}
}

// SetClock overrides the store's clock. Test helper.
func (s *MemStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemStore) Enqueue(ctx context.Context, jobType string, payload any, delay time.Duration, maxAttempts int) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	job := &Job{
		ID:          uuid.NewString(),
		Type:        jobType,
		Payload:     body,
		Status:      StatusPending,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		ScheduledAt: now.Add(delay),
		CreatedAt:   now,
	}
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *MemStore) ClaimNext(ctx context.Context, jobType, workerID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var eligible []*Job
	for _, j := range s.jobs {
		if j.Type == jobType && j.Status == StatusPending && !j.ScheduledAt.After(now) {
			eligible = append(eligible, j)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}
	sort.Slice(eligible, func(i, k int) bool {
		if eligible[i].CreatedAt.Equal(eligible[k].CreatedAt) {
			return eligible[i].ID < eligible[k].ID
		}
		return eligible[i].CreatedAt.Before(eligible[k].CreatedAt)
	})

	j := eligible[0]
	lockedAt := now
	j.Status = StatusProcessing
	j.LockedAt = &lockedAt
	j.LockedBy = &workerID
	return copyJob(j), nil
}

func (s *MemStore) MarkCompleted(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("no job with id %s", jobID)
	}
	now := s.now()
	j.Status = StatusCompleted
	j.CompletedAt = &now
	j.LockedAt = nil
	j.LockedBy = nil
	j.LastError = ""
	return nil
}

func (s *MemStore) MarkFailed(ctx context.Context, jobID, errMsg string, backoff time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("no job with id %s", jobID)
	}
	j.Status = StatusPending
	j.Attempts++
	j.ScheduledAt = s.now().Add(backoff)
	j.LockedAt = nil
	j.LockedBy = nil
	j.LastError = errMsg
	return nil
}

func (s *MemStore) MarkTerminallyFailed(ctx context.Context, jobID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("no job with id %s", jobID)
	}
	now := s.now()
	j.Status = StatusFailed
	j.Attempts++
	j.CompletedAt = &now
	j.LockedAt = nil
	j.LockedBy = nil
	j.LastError = errMsg
	return nil
}

func (s *MemStore) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-olderThan)
	var n int64
	for _, j := range s.jobs {
		if j.Status == StatusProcessing && j.LockedAt != nil && j.LockedAt.Before(cutoff) {
			j.Status = StatusPending
			j.LockedAt = nil
			j.LockedBy = nil
			n++
		}
	}
	return n, nil
}

// Get returns a snapshot of a job by id. Test helper.
func (s *MemStore) Get(jobID string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, false
	}
	return copyJob(j), true
}

func copyJob(j *Job) *Job {
	out := *j
	out.Payload = append(json.RawMessage(nil), j.Payload...)
	if j.LockedAt != nil {
		t := *j.LockedAt
		out.LockedAt = &t
	}
	if j.LockedBy != nil {
		w := *j.LockedBy
		out.LockedBy = &w
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
