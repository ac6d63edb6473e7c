package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Relay publishes recorded call attempts to Kafka for downstream compliance
// consumers. It runs off a buffered inbox so the gate's critical path never
// waits on the broker; a full inbox drops the event with a warning, since the
// store write has already succeeded and remains the source of truth.
type Relay struct {
	client *kgo.Client
	topic  string
	inbox  chan CallAttempt
	logger *slog.Logger
}

const relayInboxSize = 1024

// NewRelay connects to the brokers and ensures the audit topic exists.
func NewRelay(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*Relay, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(50*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("build kafka client: %w", err)
	}

	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create audit topic: %w", err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("create audit topic %s: %w", t.Topic, t.Err)
		}
	}

	return &Relay{
		client: client,
		topic:  topic,
		inbox:  make(chan CallAttempt, relayInboxSize),
		logger: logger,
	}, nil
}

// Enqueue hands an attempt to the relay without blocking.
func (r *Relay) Enqueue(attempt CallAttempt) {
	select {
	case r.inbox <- attempt:
	default:
		r.logger.Warn("audit relay inbox full, dropping event",
			"attempt_id", attempt.ID,
		)
	}
}

type relayPayload struct {
	ID           string    `json:"id"`
	SubjectPhone string    `json:"subject_phone"`
	AttemptedAt  time.Time `json:"attempted_at"`
	Timezone     string    `json:"timezone"`
	Outcome      string    `json:"outcome"`
	DenyReason   string    `json:"deny_reason"`
}

// Run consumes the inbox and produces to Kafka until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case attempt := <-r.inbox:
			payload, err := json.Marshal(relayPayload{
				ID:           attempt.ID,
				SubjectPhone: attempt.SubjectPhone,
				AttemptedAt:  attempt.AttemptedAt,
				Timezone:     attempt.Timezone,
				Outcome:      string(attempt.Outcome),
				DenyReason:   string(attempt.DenyReason),
			})
			if err != nil {
				r.logger.ErrorContext(ctx, "marshal audit payload", "error", err.Error())
				continue
			}

			record := &kgo.Record{
				Topic: r.topic,
				Key:   []byte(attempt.SubjectPhone),
				Value: payload,
			}
			if err := r.client.ProduceSync(ctx, record).FirstErr(); err != nil {
				r.logger.ErrorContext(ctx, "publish audit event",
					"attempt_id", attempt.ID,
					"error", err.Error(),
				)
			}
		}
	}
}

// Close flushes pending produces and releases the client.
func (r *Relay) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = r.client.Flush(ctx)
	r.client.Close()
}
