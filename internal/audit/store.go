package audit

import (
	"context"
	"time"
)

// Store is the append-only call-attempt ledger.
type Store interface {
	Append(ctx context.Context, attempt CallAttempt) error
	ListByPhone(ctx context.Context, phone string) ([]CallAttempt, error)

	// PurgeOlderThan bulk-deletes attempts recorded before the cutoff.
	// Retention sweeper use only.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
