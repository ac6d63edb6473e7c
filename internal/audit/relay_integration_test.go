//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"callguard/internal/audit"
	"callguard/pkg/testutil/containers"
)

func TestRelayPublishesRecordedAttempts(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	broker := containers.NewRedpandaContainer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const topic = "callguard.audit.calls.test"
	log := slog.New(slog.DiscardHandler)

	relay, err := audit.NewRelay(ctx, []string{broker.Broker}, topic, log)
	require.NoError(t, err)
	defer relay.Close()
	go func() { _ = relay.Run(ctx) }()

	svc := audit.NewService(audit.NewInMemoryStore(), relay, log)
	attempt, err := svc.Record(ctx, audit.CallAttempt{
		SubjectPhone: "+15551234567",
		Timezone:     "America/Chicago",
		Outcome:      audit.OutcomeDenied,
		DenyReason:   audit.DenyReasonNoConsent,
	})
	require.NoError(t, err)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 30*time.Second)
	defer fetchCancel()
	fetches := consumer.PollFetches(fetchCtx)
	require.NoError(t, fetches.Err())

	records := fetches.Records()
	require.Len(t, records, 1)
	assert.Equal(t, []byte("+15551234567"), records[0].Key)

	var payload struct {
		ID           string `json:"id"`
		SubjectPhone string `json:"subject_phone"`
		Outcome      string `json:"outcome"`
		DenyReason   string `json:"deny_reason"`
	}
	require.NoError(t, json.Unmarshal(records[0].Value, &payload))
	assert.Equal(t, attempt.ID, payload.ID)
	assert.Equal(t, "+15551234567", payload.SubjectPhone)
	assert.Equal(t, "denied", payload.Outcome)
	assert.Equal(t, "no_consent", payload.DenyReason)
}
