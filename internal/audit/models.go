package audit

import "time"

// Outcome is the gate's decision for one outbound call attempt.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeDenied  Outcome = "denied"
)

// DenyReason explains a denied attempt. Reasons surface to internal callers
// and operators only, never to external parties.
type DenyReason string

const (
	DenyReasonNone                DenyReason = "none"
	DenyReasonOutsideHours        DenyReason = "outside_hours"
	DenyReasonNoConsent           DenyReason = "no_consent"
	DenyReasonRevoked             DenyReason = "revoked"
	DenyReasonConsentLookupFailed DenyReason = "consent_lookup_failed"
)

// CallAttempt is the write-once audit record for a gate decision. Immutable
// after Append; removed only by the retention sweeper.
type CallAttempt struct {
	ID           string
	SubjectPhone string
	AttemptedAt  time.Time
	Timezone     string
	Outcome      Outcome
	DenyReason   DenyReason
}
