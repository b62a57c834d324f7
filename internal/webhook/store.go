package webhook

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the registration surface the delivery pipeline depends on.
type Store interface {
	Find(ctx context.Context, id string) (*Registration, error)
	ListActive(ctx context.Context, customerID, event string) ([]*Registration, error)
	ResetFailCount(ctx context.Context, id string) error
	// IncrementFailCount bumps the counter and returns the new value so the
	// caller can apply the deactivation threshold.
	IncrementFailCount(ctx context.Context, id string) (int, error)
	Deactivate(ctx context.Context, id string) error
}

// LogStore records delivery attempts.
type LogStore interface {
	Append(ctx context.Context, log DeliveryLog) error
}

const registrationColumns = `id, customer_id, url, secret_hash, events, active, fail_count, created_at, updated_at`

// PgStore persists registrations in Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Create registers a new endpoint. The caller passes the plaintext secret;
// only its hash is stored.
func (s *PgStore) Create(ctx context.Context, customerID, url, secret string, events []string) (*Registration, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO webhooks (customer_id, url, secret_hash, events, active, fail_count)
		VALUES ($1, $2, $3, $4, true, 0)
		RETURNING %s`, registrationColumns),
		customerID, url, HashSecret(secret), events)
	return scanRegistration(row)
}

func (s *PgStore) Find(ctx context.Context, id string) (*Registration, error) {
	row := s.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM webhooks WHERE id=$1`, registrationColumns), id)
	return scanRegistration(row)
}

// ListActive returns active registrations for a customer subscribed to an
// event. Registrations with an empty event list receive everything.
func (s *PgStore) ListActive(ctx context.Context, customerID, event string) ([]*Registration, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM webhooks
		WHERE customer_id=$1 AND active
		  AND (events = '{}' OR $2 = ANY(events))
		ORDER BY created_at ASC`, registrationColumns),
		customerID, event)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Registration
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PgStore) ResetFailCount(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhooks SET fail_count=0, updated_at=now() WHERE id=$1`, id)
	return err
}

func (s *PgStore) IncrementFailCount(ctx context.Context, id string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		UPDATE webhooks SET fail_count=fail_count+1, updated_at=now()
		WHERE id=$1
		RETURNING fail_count`, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return count, err
}

func (s *PgStore) Deactivate(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE webhooks SET active=false, updated_at=now() WHERE id=$1`, id)
	return err
}

func scanRegistration(row pgx.Row) (*Registration, error) {
	var r Registration
	err := row.Scan(&r.ID, &r.CustomerID, &r.URL, &r.SecretHash, &r.Events,
		&r.Active, &r.FailCount, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// PgLogStore appends delivery logs.
type PgLogStore struct {
	pool *pgxpool.Pool
}

func NewPgLogStore(pool *pgxpool.Pool) *PgLogStore {
	return &PgLogStore{pool: pool}
}

func (s *PgLogStore) Append(ctx context.Context, log DeliveryLog) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO webhook_logs (webhook_id, event, order_id, outcome, status_code, error, latency_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.WebhookID, log.Event, log.OrderID, log.Outcome, log.StatusCode, log.Error, log.LatencyMs)
	return err
}
