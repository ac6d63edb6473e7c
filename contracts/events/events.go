// Package events holds the wire contract for inbound provider webhooks.
// It is a standalone module so provider integrations can depend on the
// contract without pulling in the engine.
package events

import "time"

// Signature headers a provider must send alongside the raw payload.
const (
	HeaderSignature = "X-Provider-Signature"
	HeaderTimestamp = "X-Provider-Timestamp"
)

// ProviderEvent is the decoded payload of a provider webhook. The engine
// verifies the signature over the raw bytes before this struct exists;
// decoding it is strictly a post-verification concern.
type ProviderEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	CallID     string    `json:"call_id,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload,omitempty"`
}
