package retention

import (
	"time"

	"callguard/internal/platform/config"
)

// Category names a class of purgeable records.
type Category string

const (
	CategoryCalls      Category = "calls"
	CategoryRecordings Category = "recordings"
	CategoryLogs       Category = "logs"
	// CategoryConsent deletes consent records outright. Most deployments keep
	// it permanent for audit and rely on CategoryConsentProofs to shed the
	// PII payload instead; the two are independently configurable.
	CategoryConsent       Category = "consent"
	CategoryConsentProofs Category = "consent_proofs"
)

// Policy maps categories to retention windows. A zero window means permanent:
// the category is never purged.
type Policy map[Category]time.Duration

// PolicyFromConfig translates the day-based env knobs into windows.
func PolicyFromConfig(cfg config.RetentionConfig) Policy {
	day := 24 * time.Hour
	return Policy{
		CategoryCalls:         time.Duration(cfg.CallsDays) * day,
		CategoryRecordings:    time.Duration(cfg.RecordingsDays) * day,
		CategoryLogs:          time.Duration(cfg.LogsDays) * day,
		CategoryConsent:       time.Duration(cfg.ConsentDays) * day,
		CategoryConsentProofs: time.Duration(cfg.ConsentProofsDays) * day,
	}
}

// Permanent reports whether the category is exempt from purging.
func (p Policy) Permanent(c Category) bool {
	return p[c] <= 0
}
