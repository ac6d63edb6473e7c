package webhook

import (
	"context"
	"log/slog"

	"callguard/contracts/events"
	"callguard/internal/crypto"
)

// LogSink acknowledges verified events with a log line. Deployments replace
// it with the real business handlers; the engine's contract ends at handoff.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) HandleProviderEvent(ctx context.Context, event events.ProviderEvent) error {
	s.logger.InfoContext(ctx, "provider event verified",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"phone", crypto.MaskForDisplay(event.Phone, 4),
	)
	return nil
}
