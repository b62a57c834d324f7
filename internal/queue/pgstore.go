package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, scheduled_at, locked_at, locked_by, last_error, created_at, completed_at`

// PgStore is the Postgres-backed job store. Claim atomicity comes from a
// single conditional UPDATE over a FOR UPDATE SKIP LOCKED subselect, so
// multiple worker processes can poll the same table without double claims.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Enqueue(ctx context.Context, jobType string, payload any, delay time.Duration, maxAttempts int) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs(id, type, payload, status, attempts, max_attempts, scheduled_at, last_error, created_at)
		VALUES ($1, $2, $3::jsonb, 'pending', 0, $4, now() + $5, '', now())`,
		id, jobType, string(body), maxAttempts, delay,
	)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

func (s *PgStore) ClaimNext(ctx context.Context, jobType, workerID string) (*Job, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE jobs SET status='processing', locked_at=now(), locked_by=$2
		WHERE id = (
			SELECT id FROM jobs
			WHERE type=$1 AND status='pending' AND scheduled_at <= now()
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING %s`, jobColumns),
		jobType, workerID,
	)

	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return job, nil
}

func (s *PgStore) MarkCompleted(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status='completed', completed_at=now(), locked_at=NULL, locked_by=NULL, last_error=''
		WHERE id=$1`, jobID)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (s *PgStore) MarkFailed(ctx context.Context, jobID, errMsg string, backoff time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status='pending', attempts=attempts+1, scheduled_at=now() + $2,
		    locked_at=NULL, locked_by=NULL, last_error=$3
		WHERE id=$1`, jobID, backoff, errMsg)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return nil
}

func (s *PgStore) MarkTerminallyFailed(ctx context.Context, jobID, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status='failed', attempts=attempts+1, completed_at=now(),
		    locked_at=NULL, locked_by=NULL, last_error=$2
		WHERE id=$1`, jobID, errMsg)
	if err != nil {
		return fmt.Errorf("mark terminally failed: %w", err)
	}
	return nil
}

func (s *PgStore) ReclaimStuck(ctx context.Context, olderThan time.Duration) (int64, error) {
	ct, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status='pending', locked_at=NULL, locked_by=NULL
		WHERE status='processing' AND locked_at < now() - $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("reclaim stuck: %w", err)
	}
	return ct.RowsAffected(), nil
}

// Stats returns job counts per status, for the ops CLI.
func (s *PgStore) Stats(ctx context.Context) (map[Status]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[Status]int64)
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[Status(st)] = n
	}
	return out, rows.Err()
}

// List returns recent jobs filtered by status; an empty status returns all.
func (s *PgStore) List(ctx context.Context, status Status, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 20
	}
	q := fmt.Sprintf(`SELECT %s FROM jobs`, jobColumns)
	args := []any{}
	if status != "" {
		q += ` WHERE status=$1`
		args = append(args, string(status))
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Retry resets a terminally failed job to pending with a fresh attempt budget.
func (s *PgStore) Retry(ctx context.Context, jobID string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status='pending', attempts=0, scheduled_at=now(), completed_at=NULL,
		    locked_at=NULL, locked_by=NULL, last_error=''
		WHERE id=$1 AND status='failed'`, jobID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("no failed job with id %s", jobID)
	}
	return nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var payload []byte
	err := row.Scan(
		&j.ID, &j.Type, &payload, &j.Status, &j.Attempts, &j.MaxAttempts,
		&j.ScheduledAt, &j.LockedAt, &j.LockedBy, &j.LastError, &j.CreatedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Payload = payload
	return &j, nil
}
