package retention

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callguard/internal/audit"
)

const day = 24 * time.Hour

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestSweepPurgesBeyondWindowRetainsWithin(t *testing.T) {
	store := audit.NewInMemoryStore()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, audit.CallAttempt{
		ID: "old", SubjectPhone: "+15551230001", AttemptedAt: now.Add(-366 * day),
	}))
	require.NoError(t, store.Append(ctx, audit.CallAttempt{
		ID: "recent", SubjectPhone: "+15551230002", AttemptedAt: now.Add(-364 * day),
	}))

	sweeper := NewSweeper(
		Policy{CategoryCalls: 365 * day},
		map[Category]Purger{CategoryCalls: store},
		nil, discard(), nil,
	)

	result, err := sweeper.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Purged[CategoryCalls])
	assert.Empty(t, result.Errors)

	kept, err := store.ListByPhone(ctx, "+15551230002")
	require.NoError(t, err)
	assert.Len(t, kept, 1)
	gone, err := store.ListByPhone(ctx, "+15551230001")
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestSweepSkipsPermanentCategories(t *testing.T) {
	var called bool
	sweeper := NewSweeper(
		Policy{CategoryConsent: 0, CategoryCalls: 30 * day},
		map[Category]Purger{
			CategoryConsent: PurgerFunc(func(context.Context, time.Time) (int64, error) {
				called = true
				return 0, nil
			}),
			CategoryCalls: PurgerFunc(func(context.Context, time.Time) (int64, error) {
				return 2, nil
			}),
		},
		nil, discard(), nil,
	)

	result, err := sweeper.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.False(t, called, "permanent category must never be purged")
	assert.NotContains(t, result.Purged, CategoryConsent)
	assert.Equal(t, int64(2), result.Purged[CategoryCalls])
}

func TestSweepIsolatesCategoryFailures(t *testing.T) {
	sweeper := NewSweeper(
		Policy{CategoryCalls: 30 * day, CategoryLogs: 7 * day},
		map[Category]Purger{
			CategoryCalls: PurgerFunc(func(context.Context, time.Time) (int64, error) {
				return 0, errors.New("table locked")
			}),
			CategoryLogs: PurgerFunc(func(context.Context, time.Time) (int64, error) {
				return 9, nil
			}),
		},
		nil, discard(), nil,
	)

	result, err := sweeper.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Error(t, result.Errors[CategoryCalls])
	assert.Equal(t, int64(9), result.Purged[CategoryLogs])
}

func TestSweepCoalescesConcurrentTriggers(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	sweeper := NewSweeper(
		Policy{CategoryCalls: 30 * day},
		map[Category]Purger{
			CategoryCalls: PurgerFunc(func(context.Context, time.Time) (int64, error) {
				close(started)
				<-release
				return 0, nil
			}),
		},
		nil, discard(), nil,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := sweeper.Sweep(context.Background(), time.Now())
		assert.NoError(t, err)
	}()

	<-started
	_, err := sweeper.Sweep(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(release)
	wg.Wait()

	// The flag resets once the first sweep finishes.
	_, err = sweeper.Sweep(context.Background(), time.Now())
	assert.NoError(t, err)
}

type stubLock struct {
	acquired bool
	releases int
}

func (l *stubLock) Acquire(context.Context, time.Duration) (bool, error) {
	return l.acquired, nil
}

func (l *stubLock) Release(context.Context) error {
	l.releases++
	return nil
}

func TestSweepRespectsCrossInstanceLock(t *testing.T) {
	lock := &stubLock{acquired: false}
	sweeper := NewSweeper(
		Policy{CategoryCalls: 30 * day},
		map[Category]Purger{CategoryCalls: PurgerFunc(func(context.Context, time.Time) (int64, error) {
			return 1, nil
		})},
		lock, discard(), nil,
	)

	_, err := sweeper.Sweep(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrSweepInProgress)
	assert.Zero(t, lock.releases)

	lock.acquired = true
	result, err := sweeper.Sweep(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Purged[CategoryCalls])
	assert.Equal(t, 1, lock.releases)
}
