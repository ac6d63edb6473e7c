package consent

import (
	"regexp"
	"time"

	"callguard/internal/crypto"
	dErrors "callguard/pkg/domain-errors"
)

// Channel is the contact channel a consent grant covers. Consent is tracked
// per channel so revoking SMS consent leaves voice consent intact.
type Channel string

const (
	ChannelVoice Channel = "voice"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Source records how consent was captured.
type Source string

const (
	SourceWebForm  Source = "web_form"
	SourceVoice    Source = "voice"
	SourceSMS      Source = "sms"
	SourceReferral Source = "referral"
)

// Record is one consent grant for a (phone, channel) pair. At most one record
// per pair is active at any instant; a new grant supersedes the previous one
// atomically. Records are never mutated after creation except by revocation,
// and never hard-deleted except by the retention sweeper.
type Record struct {
	ID           string
	SubjectPhone string
	Channel      Channel
	GrantedAt    time.Time
	RevokedAt    *time.Time
	ExpiresAt    *time.Time
	Source       Source

	// Proof is the opaque capture reference (IP, user agent, recording id).
	// It is PII: stores only ever see EncryptedProof; Proof is populated on
	// the read path after decryption.
	Proof          string
	EncryptedProof *crypto.EncryptedBlob
}

// IsActive reports whether the record grants consent at the given instant.
func (r Record) IsActive(now time.Time) bool {
	if r.RevokedAt != nil {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

var phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// ValidatePhone enforces E.164 format.
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return dErrors.New(dErrors.CodeInvalidInput, "phone must be E.164, e.g. +15551234567")
	}
	return nil
}

// ValidateChannel rejects unknown channels.
func ValidateChannel(ch Channel) error {
	switch ch {
	case ChannelVoice, ChannelSMS, ChannelEmail:
		return nil
	}
	return dErrors.New(dErrors.CodeInvalidInput, "channel must be voice, sms, or email")
}

// ValidateSource rejects unknown capture sources.
func ValidateSource(src Source) error {
	switch src {
	case SourceWebForm, SourceVoice, SourceSMS, SourceReferral:
		return nil
	}
	return dErrors.New(dErrors.CodeInvalidInput, "source must be web_form, voice, sms, or referral")
}
