// Package webhook authenticates inbound provider events before any business
// handler sees them. Verification is state-free and per-request: a stale or
// invalid webhook is rejected once, never retried.
package webhook

import (
	"crypto/ed25519"
	"encoding/base64"
	"strconv"
	"time"

	dErrors "callguard/pkg/domain-errors"
)

// Reason explains a verification verdict. Reasons are for internal logs and
// metrics only; the HTTP surface answers a uniform 4xx regardless.
type Reason string

const (
	ReasonNone               Reason = "none"
	ReasonMissingCredentials Reason = "missing_credentials"
	ReasonStaleTimestamp     Reason = "stale_timestamp"
	ReasonInvalidSignature   Reason = "invalid_signature"
	ReasonUnreadableBody     Reason = "unreadable_body"
)

// Verdict is the outcome of verifying one webhook. Negative verdicts are
// normal control flow, not errors.
type Verdict struct {
	Valid  bool
	Reason Reason
}

// Event carries the raw material for verification. RawBody must be the exact
// bytes received on the wire; re-serializing JSON before verification breaks
// the signature over the original bytes.
type Event struct {
	RawBody    []byte
	Signature  string
	Timestamp  string
	ReceivedAt time.Time
}

// Verifier checks provider signatures over timestamp + ":" + body with a
// freshness window against replay. Ed25519 is the primary scheme; integrations
// without key pairs sign the same payload with a shared-secret HMAC instead.
type Verifier struct {
	publicKey  ed25519.PublicKey
	hmacSecret []byte
	maxSkew    time.Duration
	now        func() time.Time
}

// NewVerifier builds a Verifier from a base64-encoded Ed25519 public key and
// an optional shared HMAC secret. The public key wins when both are set; with
// neither, every event fails with MissingCredentials.
func NewVerifier(publicKeyB64, hmacSecret string, maxSkew time.Duration) (*Verifier, error) {
	v := &Verifier{maxSkew: maxSkew, now: time.Now}
	if hmacSecret != "" {
		v.hmacSecret = []byte(hmacSecret)
	}
	if publicKeyB64 == "" {
		return v, nil
	}
	raw, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "webhook public key is not valid base64")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "webhook public key must be 32 bytes")
	}
	v.publicKey = ed25519.PublicKey(raw)
	return v, nil
}

// VerifyProviderSignature checks credentials presence, timestamp freshness,
// then the signature. Freshness short-circuits before the signature check so
// replayed events never reach the more expensive verification.
func (v *Verifier) VerifyProviderSignature(event Event) Verdict {
	if event.Signature == "" || event.Timestamp == "" {
		return Verdict{Valid: false, Reason: ReasonMissingCredentials}
	}
	if len(v.publicKey) == 0 && len(v.hmacSecret) == 0 {
		return Verdict{Valid: false, Reason: ReasonMissingCredentials}
	}

	ts, err := strconv.ParseInt(event.Timestamp, 10, 64)
	if err != nil {
		return Verdict{Valid: false, Reason: ReasonStaleTimestamp}
	}
	now := v.now()
	if now.Sub(time.Unix(ts, 0)) > v.maxSkew {
		return Verdict{Valid: false, Reason: ReasonStaleTimestamp}
	}

	// Canonical signed payload: timestamp bytes, a colon, then the untouched
	// request body.
	payload := make([]byte, 0, len(event.Timestamp)+1+len(event.RawBody))
	payload = append(payload, event.Timestamp...)
	payload = append(payload, ':')
	payload = append(payload, event.RawBody...)

	if len(v.publicKey) > 0 {
		sig, err := base64.StdEncoding.DecodeString(event.Signature)
		if err != nil {
			return Verdict{Valid: false, Reason: ReasonInvalidSignature}
		}
		if !ed25519.Verify(v.publicKey, payload, sig) {
			return Verdict{Valid: false, Reason: ReasonInvalidSignature}
		}
		return Verdict{Valid: true, Reason: ReasonNone}
	}

	if !VerifyHMACHex(payload, event.Signature, v.hmacSecret) {
		return Verdict{Valid: false, Reason: ReasonInvalidSignature}
	}
	return Verdict{Valid: true, Reason: ReasonNone}
}
