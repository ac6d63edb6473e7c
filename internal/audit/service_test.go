package audit

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	enqueued []CallAttempt
}

func (p *capturingPublisher) Enqueue(attempt CallAttempt) {
	p.enqueued = append(p.enqueued, attempt)
}

func TestRecordFillsDefaults(t *testing.T) {
	store := NewInMemoryStore()
	svc := NewService(store, nil, slog.New(slog.DiscardHandler))
	fixed := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	attempt, err := svc.Record(context.Background(), CallAttempt{
		SubjectPhone: "+15551234567",
		Outcome:      OutcomeAllowed,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, attempt.ID)
	assert.Equal(t, fixed, attempt.AttemptedAt)
	assert.Equal(t, DenyReasonNone, attempt.DenyReason)
}

func TestRecordPublishesAfterPersisting(t *testing.T) {
	store := NewInMemoryStore()
	pub := &capturingPublisher{}
	svc := NewService(store, pub, slog.New(slog.DiscardHandler))

	attempt, err := svc.Record(context.Background(), CallAttempt{
		SubjectPhone: "+15551234567",
		Outcome:      OutcomeDenied,
		DenyReason:   DenyReasonOutsideHours,
	})
	require.NoError(t, err)

	require.Len(t, pub.enqueued, 1)
	assert.Equal(t, attempt.ID, pub.enqueued[0].ID)

	stored, err := store.ListByPhone(context.Background(), "+15551234567")
	require.NoError(t, err)
	assert.Len(t, stored, 1)
}

func TestListReturnsOldestFirst(t *testing.T) {
	store := NewInMemoryStore()
	svc := NewService(store, nil, slog.New(slog.DiscardHandler))
	ctx := context.Background()
	base := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, CallAttempt{
			SubjectPhone: "+15551234567",
			AttemptedAt:  base.Add(time.Duration(i) * time.Minute),
			Outcome:      OutcomeAllowed,
		})
		require.NoError(t, err)
	}

	attempts, err := svc.List(ctx, "+15551234567")
	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.True(t, attempts[0].AttemptedAt.Before(attempts[2].AttemptedAt))
}

func TestRelayEnqueueNeverBlocks(t *testing.T) {
	relay := &Relay{
		inbox:  make(chan CallAttempt, 2),
		logger: slog.New(slog.DiscardHandler),
	}

	// Two fit, the third overflows and is dropped rather than blocking the
	// caller.
	for i := 0; i < 3; i++ {
		relay.Enqueue(CallAttempt{ID: "a"})
	}
	assert.Len(t, relay.inbox, 2)
}
