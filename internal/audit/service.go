package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	dErrors "callguard/pkg/domain-errors"
)

// Publisher is the optional downstream tail for recorded attempts. The Kafka
// relay implements it; enqueueing must never block the gate.
type Publisher interface {
	Enqueue(attempt CallAttempt)
}

// Service records call attempts. The store write is synchronous and
// fail-closed: if the attempt cannot be persisted the calling operation must
// fail. Publishing to the relay happens after the write and is best-effort.
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store Store, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, logger: logger, now: time.Now}
}

// Record persists one immutable call attempt.
func (s *Service) Record(ctx context.Context, attempt CallAttempt) (CallAttempt, error) {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = s.now()
	}
	if attempt.DenyReason == "" {
		attempt.DenyReason = DenyReasonNone
	}

	if err := s.store.Append(ctx, attempt); err != nil {
		return CallAttempt{}, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "append call attempt")
	}
	if s.publisher != nil {
		s.publisher.Enqueue(attempt)
	}
	return attempt, nil
}

// List returns the attempts for a phone, oldest first.
func (s *Service) List(ctx context.Context, phone string) ([]CallAttempt, error) {
	attempts, err := s.store.ListByPhone(ctx, phone)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStoreUnavailable, "list call attempts")
	}
	return attempts, nil
}
