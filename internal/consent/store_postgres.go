package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"callguard/internal/crypto"
	"callguard/pkg/platform/sentinel"
	txcontext "callguard/pkg/platform/tx"
)

// PostgresStore persists the consent ledger.
//
// Schema (migrations/001_consent.sql):
//
//	CREATE TABLE consent_records (
//	    id               UUID PRIMARY KEY,
//	    subject_phone    TEXT NOT NULL,
//	    channel          TEXT NOT NULL,
//	    granted_at       TIMESTAMPTZ NOT NULL,
//	    revoked_at       TIMESTAMPTZ,
//	    expires_at       TIMESTAMPTZ,
//	    source           TEXT NOT NULL,
//	    proof_key_version TEXT,
//	    proof_nonce      BYTEA,
//	    proof_ciphertext BYTEA,
//	    proof_auth_tag   BYTEA
//	);
//	CREATE UNIQUE INDEX consent_one_active
//	    ON consent_records (subject_phone, channel)
//	    WHERE revoked_at IS NULL;
//
// The partial unique index backs the single-active-record invariant even if a
// bug ever bypasses the supersede statement.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// GrantSupersede revokes the active record and inserts the new grant in one
// statement, so the transition is atomic even without an explicit transaction.
// The INSERT consumes the CTE's output: Postgres runs an unreferenced
// data-modifying CTE in unpredictable order relative to the main statement,
// and the new row must not hit the consent_one_active index before the old
// row's revocation lands.
func (s *PostgresStore) GrantSupersede(ctx context.Context, rec Record) error {
	query := `
		WITH superseded AS (
			UPDATE consent_records
			SET revoked_at = $4
			WHERE subject_phone = $2 AND channel = $3 AND revoked_at IS NULL
			RETURNING 1
		)
		INSERT INTO consent_records (
			id, subject_phone, channel, granted_at, expires_at, source,
			proof_key_version, proof_nonce, proof_ciphertext, proof_auth_tag
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		WHERE (SELECT count(*) FROM superseded) >= 0
	`

	var keyVersion sql.NullString
	var nonce, ciphertext, authTag []byte
	if rec.EncryptedProof != nil {
		keyVersion = sql.NullString{String: rec.EncryptedProof.KeyVersion, Valid: true}
		nonce = rec.EncryptedProof.Nonce
		ciphertext = rec.EncryptedProof.Ciphertext
		authTag = rec.EncryptedProof.AuthTag
	}

	_, err := s.execer(ctx).ExecContext(ctx, query,
		rec.ID,
		rec.SubjectPhone,
		string(rec.Channel),
		rec.GrantedAt,
		rec.ExpiresAt,
		string(rec.Source),
		keyVersion,
		nonce,
		ciphertext,
		authTag,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeActive(ctx context.Context, phone string, channel Channel, revokedAt time.Time) error {
	query := `
		UPDATE consent_records
		SET revoked_at = $3
		WHERE subject_phone = $1 AND channel = $2 AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $3)
	`
	res, err := s.execer(ctx).ExecContext(ctx, query, phone, string(channel), revokedAt)
	if err != nil {
		return fmt.Errorf("revoke consent record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke consent record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindActive(ctx context.Context, phone string, channel Channel, now time.Time) (*Record, error) {
	query := `
		SELECT id, subject_phone, channel, granted_at, revoked_at, expires_at, source,
		       proof_key_version, proof_nonce, proof_ciphertext, proof_auth_tag
		FROM consent_records
		WHERE subject_phone = $1 AND channel = $2 AND revoked_at IS NULL
		  AND (expires_at IS NULL OR expires_at > $3)
		LIMIT 1
	`
	row := s.execer(ctx).QueryRowContext(ctx, query, phone, string(channel), now)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active consent: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) History(ctx context.Context, phone string) ([]Record, error) {
	query := `
		SELECT id, subject_phone, channel, granted_at, revoked_at, expires_at, source,
		       proof_key_version, proof_nonce, proof_ciphertext, proof_auth_tag
		FROM consent_records
		WHERE subject_phone = $1
		ORDER BY granted_at ASC
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, phone)
	if err != nil {
		return nil, fmt.Errorf("query consent history: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return records, nil
}

// PurgeOlderThan is a single bulk DELETE: the category purge either fully
// commits or fully rolls back.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM consent_records WHERE granted_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge consent records: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresStore) RedactProofsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE consent_records
		SET proof_key_version = NULL, proof_nonce = NULL,
		    proof_ciphertext = NULL, proof_auth_tag = NULL
		WHERE granted_at < $1 AND proof_ciphertext IS NOT NULL
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("redact consent proofs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec        Record
		channel    string
		source     string
		keyVersion sql.NullString
		nonce      []byte
		ciphertext []byte
		authTag    []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.SubjectPhone,
		&channel,
		&rec.GrantedAt,
		&rec.RevokedAt,
		&rec.ExpiresAt,
		&source,
		&keyVersion,
		&nonce,
		&ciphertext,
		&authTag,
	)
	if err != nil {
		return nil, err
	}
	rec.Channel = Channel(channel)
	rec.Source = Source(source)
	if keyVersion.Valid {
		rec.EncryptedProof = &crypto.EncryptedBlob{
			KeyVersion: keyVersion.String,
			Nonce:      nonce,
			Ciphertext: ciphertext,
			AuthTag:    authTag,
		}
	}
	return &rec, nil
}
