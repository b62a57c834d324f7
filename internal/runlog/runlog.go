// Package runlog records producer executions so operators can see when each
// periodic pass last ran and how it went.
package runlog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Run is one completed producer pass.
type Run struct {
	ID        string
	Producer  string
	Outcome   string // ok or error
	Detail    string
	Scanned   int
	Changed   int
	StartedAt time.Time
	EndedAt   time.Time
}

// Recorder persists producer runs.
type Recorder interface {
	Record(ctx context.Context, run Run) error
}

// PgRecorder writes runs to the producer_runs table.
type PgRecorder struct {
	pool *pgxpool.Pool
}

func NewPgRecorder(pool *pgxpool.Pool) *PgRecorder {
	return &PgRecorder{pool: pool}
}

func (r *PgRecorder) Record(ctx context.Context, run Run) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO producer_runs (producer, outcome, detail, scanned, changed, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.Producer, run.Outcome, run.Detail, run.Scanned, run.Changed, run.StartedAt, run.EndedAt)
	return err
}

// NopRecorder discards runs. Used in tests and the CLI.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Run) error { return nil }
