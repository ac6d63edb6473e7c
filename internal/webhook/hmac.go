package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyHMAC checks a SHA-256 HMAC signature over payload. Both digests are
// hashed once more before comparison so a length mismatch takes the same
// constant-time path as a content mismatch.
func VerifyHMAC(payload, signature, secret []byte) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	expectedHash := sha256.Sum256(expected)
	suppliedHash := sha256.Sum256(signature)
	return hmac.Equal(expectedHash[:], suppliedHash[:])
}

// ComputeHMAC returns the hex-encoded SHA-256 HMAC of payload. Integrations
// that sign with a shared secret send this in their signature header.
func ComputeHMAC(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACHex verifies a hex-encoded signature header.
func VerifyHMACHex(payload []byte, signatureHex string, secret []byte) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return VerifyHMAC(payload, sig, secret)
}
