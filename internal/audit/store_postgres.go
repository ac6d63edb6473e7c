package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	txcontext "callguard/pkg/platform/tx"
)

// PostgresStore persists call attempts.
//
// Schema (migrations/002_call_attempts.sql):
//
//	CREATE TABLE call_attempts (
//	    id            UUID PRIMARY KEY,
//	    subject_phone TEXT NOT NULL,
//	    attempted_at  TIMESTAMPTZ NOT NULL,
//	    timezone      TEXT NOT NULL,
//	    outcome       TEXT NOT NULL,
//	    deny_reason   TEXT NOT NULL
//	);
//	CREATE INDEX call_attempts_phone ON call_attempts (subject_phone, attempted_at);
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, attempt CallAttempt) error {
	query := `
		INSERT INTO call_attempts (id, subject_phone, attempted_at, timezone, outcome, deny_reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		attempt.ID,
		attempt.SubjectPhone,
		attempt.AttemptedAt,
		attempt.Timezone,
		string(attempt.Outcome),
		string(attempt.DenyReason),
	)
	if err != nil {
		return fmt.Errorf("insert call attempt: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByPhone(ctx context.Context, phone string) ([]CallAttempt, error) {
	query := `
		SELECT id, subject_phone, attempted_at, timezone, outcome, deny_reason
		FROM call_attempts
		WHERE subject_phone = $1
		ORDER BY attempted_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, phone)
	if err != nil {
		return nil, fmt.Errorf("query call attempts: %w", err)
	}
	defer rows.Close()

	var attempts []CallAttempt
	for rows.Next() {
		var (
			a          CallAttempt
			outcome    string
			denyReason string
		)
		if err := rows.Scan(&a.ID, &a.SubjectPhone, &a.AttemptedAt, &a.Timezone, &outcome, &denyReason); err != nil {
			return nil, fmt.Errorf("scan call attempt: %w", err)
		}
		a.Outcome = Outcome(outcome)
		a.DenyReason = DenyReason(denyReason)
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate call attempts: %w", err)
	}
	return attempts, nil
}

// PurgeOlderThan is one bulk DELETE; the purge never partially commits.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM call_attempts WHERE attempted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge call attempts: %w", err)
	}
	return res.RowsAffected()
}
