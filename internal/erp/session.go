package erp

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session is the cached ERP login state. A single row (id=1) holds the most
// recent session token issued by the bridge.
type Session struct {
	Token     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the session is usable at time now.
func (s *Session) Valid(now time.Time) bool {
	return s != nil && s.Token != "" && now.Before(s.ExpiresAt)
}

// SessionStore caches the shared ERP session.
type SessionStore interface {
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Clear(ctx context.Context) error
}

// PgSessionStore keeps the session in the erp_sessions table.
type PgSessionStore struct {
	pool *pgxpool.Pool
}

func NewPgSessionStore(pool *pgxpool.Pool) *PgSessionStore {
	return &PgSessionStore{pool: pool}
}

func (s *PgSessionStore) Load(ctx context.Context) (*Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
		SELECT token, issued_at, expires_at FROM erp_sessions WHERE id=1`).
		Scan(&sess.Token, &sess.IssuedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sess, nil
}

func (s *PgSessionStore) Save(ctx context.Context, sess *Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO erp_sessions (id, token, issued_at, expires_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET token=excluded.token, issued_at=excluded.issued_at, expires_at=excluded.expires_at`,
		sess.Token, sess.IssuedAt, sess.ExpiresAt)
	return err
}

func (s *PgSessionStore) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM erp_sessions WHERE id=1`)
	return err
}
