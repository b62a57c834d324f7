package queue

import (
	"context"
	"time"
)

// Store is the durable job table, the single source of truth for queue state.
// All cross-process coordination goes through it; ClaimNext is the only
// mutual-exclusion primitive the workers rely on.
type Store interface {
	// Enqueue inserts a pending job eligible to run after the given delay.
	Enqueue(ctx context.Context, jobType string, payload any, delay time.Duration, maxAttempts int) (string, error)

	// ClaimNext atomically transitions the oldest eligible pending job of the
	// given type to processing and returns it. Returns (nil, nil) when no job
	// is claimable. Concurrent callers never receive the same job.
	ClaimNext(ctx context.Context, jobType, workerID string) (*Job, error)

	// MarkCompleted finishes a job successfully.
	MarkCompleted(ctx context.Context, jobID string) error

	// MarkFailed records a failed attempt and reschedules the job after the
	// backoff delay. Attempts is incremented.
	MarkFailed(ctx context.Context, jobID, errMsg string, backoff time.Duration) error

	// MarkTerminallyFailed records a final failed attempt; the job will not
	// run again.
	MarkTerminallyFailed(ctx context.Context, jobID, errMsg string) error

	// ReclaimStuck returns jobs stuck in processing longer than olderThan to
	// pending so another worker can claim them. Attempts is not changed.
	ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error)
}
