package consent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"callguard/pkg/platform/sentinel"
)

func TestInMemoryStoreConcurrentGrantsLeaveOneActive(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := Record{
				ID:           fmt.Sprintf("rec-%d", i),
				SubjectPhone: "+15551234567",
				Channel:      ChannelVoice,
				GrantedAt:    base.Add(time.Duration(i) * time.Millisecond),
				Source:       SourceWebForm,
			}
			_ = store.GrantSupersede(ctx, rec)
		}(i)
	}
	wg.Wait()

	history, err := store.History(ctx, "+15551234567")
	require.NoError(t, err)
	require.Len(t, history, 50)

	var active int
	for _, rec := range history {
		if rec.IsActive(base.Add(time.Second)) {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestInMemoryStorePurgeOlderThan(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	old := Record{ID: "old", SubjectPhone: "+15551234567", Channel: ChannelVoice, GrantedAt: cutoff.Add(-time.Hour)}
	fresh := Record{ID: "fresh", SubjectPhone: "+15551234567", Channel: ChannelVoice, GrantedAt: cutoff.Add(time.Hour)}
	require.NoError(t, store.GrantSupersede(ctx, old))
	require.NoError(t, store.GrantSupersede(ctx, fresh))

	purged, err := store.PurgeOlderThan(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	history, err := store.History(ctx, "+15551234567")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "fresh", history[0].ID)
}

func TestInMemoryStoreRevokeActive(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	err := store.RevokeActive(ctx, "+15551234567", ChannelVoice, now)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, store.GrantSupersede(ctx, Record{
		ID: "rec-1", SubjectPhone: "+15551234567", Channel: ChannelVoice, GrantedAt: now,
	}))
	require.NoError(t, store.RevokeActive(ctx, "+15551234567", ChannelVoice, now.Add(time.Minute)))

	_, err = store.FindActive(ctx, "+15551234567", ChannelVoice, now.Add(2*time.Minute))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
