package consent

import (
	"context"
	"time"
)

// Store is the durable consent ledger. Implementations must make
// GrantSupersede atomic with respect to concurrent grants for the same
// (phone, channel) key so the single-active-record invariant holds.
type Store interface {
	// GrantSupersede revokes any currently active record for the key and
	// inserts rec as one atomic operation.
	GrantSupersede(ctx context.Context, rec Record) error

	// RevokeActive sets revokedAt on the active record if one exists.
	// Returns sentinel.ErrNotFound when nothing is active; callers decide
	// whether that is an error (the service treats it as a no-op).
	RevokeActive(ctx context.Context, phone string, channel Channel, revokedAt time.Time) error

	// FindActive returns the active record for the key at the given instant,
	// or sentinel.ErrNotFound.
	FindActive(ctx context.Context, phone string, channel Channel, now time.Time) (*Record, error)

	// History returns every record for the phone, ordered by GrantedAt
	// ascending, across all channels.
	History(ctx context.Context, phone string) ([]Record, error)

	// PurgeOlderThan hard-deletes records granted before the cutoff. Used by
	// the retention sweeper only.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// RedactProofsOlderThan clears encrypted proof payloads on records
	// granted before the cutoff while keeping the records for audit.
	RedactProofsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
