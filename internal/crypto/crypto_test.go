package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "callguard/pkg/domain-errors"
)

func testKeySpec(t *testing.T, version string, suite Suite) string {
	t.Helper()
	raw := make([]byte, 32)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s:%s", version, suite, base64.StdEncoding.EncodeToString(raw))
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	spec := testKeySpec(t, "v1", SuiteAESGCM) + "," + testKeySpec(t, "v2", SuiteXChaCha)
	ring, err := ParseKeyring(spec, "v2")
	require.NoError(t, err)
	return NewService(ring)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	for _, suite := range []Suite{SuiteAESGCM, SuiteXChaCha} {
		t.Run(string(suite), func(t *testing.T) {
			ring, err := ParseKeyring(testKeySpec(t, "v1", suite), "v1")
			require.NoError(t, err)
			svc := NewService(ring)

			plaintext := []byte("203.0.113.9 Mozilla/5.0 consent-form-7")
			blob, err := svc.Encrypt(plaintext)
			require.NoError(t, err)
			assert.Equal(t, "v1", blob.KeyVersion)
			assert.NotEqual(t, plaintext, blob.Ciphertext)

			decrypted, err := svc.Decrypt(blob)
			require.NoError(t, err)
			assert.Equal(t, plaintext, decrypted)
		})
	}
}

func TestEncryptUsesFreshNonce(t *testing.T) {
	svc := newTestService(t)
	first, err := svc.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	second, err := svc.Encrypt([]byte("same plaintext"))
	require.NoError(t, err)
	assert.NotEqual(t, first.Nonce, second.Nonce)
	assert.NotEqual(t, first.Ciphertext, second.Ciphertext)
}

func TestDecryptFailsClosedOnTamper(t *testing.T) {
	svc := newTestService(t)
	blob, err := svc.Encrypt([]byte("sensitive"))
	require.NoError(t, err)

	t.Run("flipped ciphertext bit", func(t *testing.T) {
		tampered := blob
		tampered.Ciphertext = append([]byte{}, blob.Ciphertext...)
		tampered.Ciphertext[0] ^= 0x01
		_, err := svc.Decrypt(tampered)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeAuthenticationFailed))
	})

	t.Run("flipped auth tag bit", func(t *testing.T) {
		tampered := blob
		tampered.AuthTag = append([]byte{}, blob.AuthTag...)
		tampered.AuthTag[0] ^= 0x01
		_, err := svc.Decrypt(tampered)
		require.Error(t, err)
		assert.True(t, dErrors.Is(err, dErrors.CodeAuthenticationFailed))
	})
}

func TestDecryptUnknownKeyVersion(t *testing.T) {
	svc := newTestService(t)
	blob, err := svc.Encrypt([]byte("sensitive"))
	require.NoError(t, err)

	blob.KeyVersion = "v99"
	_, err = svc.Decrypt(blob)
	require.Error(t, err)
	assert.True(t, dErrors.Is(err, dErrors.CodeUnknownKeyVersion))
}

func TestRotationKeepsOldVersionsDecryptable(t *testing.T) {
	v1 := testKeySpec(t, "v1", SuiteAESGCM)
	ring, err := ParseKeyring(v1, "v1")
	require.NoError(t, err)
	svc := NewService(ring)

	blob, err := svc.Encrypt([]byte("pre-rotation"))
	require.NoError(t, err)

	rotated, err := ParseKeyring(v1+","+testKeySpec(t, "v2", SuiteXChaCha), "v2")
	require.NoError(t, err)
	svc.Rotate(rotated)

	decrypted, err := svc.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("pre-rotation"), decrypted)

	fresh, err := svc.Encrypt([]byte("post-rotation"))
	require.NoError(t, err)
	assert.Equal(t, "v2", fresh.KeyVersion)
}

func TestParseKeyringErrors(t *testing.T) {
	t.Run("empty spec", func(t *testing.T) {
		_, err := ParseKeyring("", "v1")
		assert.True(t, dErrors.Is(err, dErrors.CodeKeyNotConfigured))
	})

	t.Run("current version missing", func(t *testing.T) {
		_, err := ParseKeyring(testKeySpec(t, "v1", SuiteAESGCM), "v2")
		assert.True(t, dErrors.Is(err, dErrors.CodeKeyNotConfigured))
	})

	t.Run("malformed entry", func(t *testing.T) {
		_, err := ParseKeyring("v1-no-separator", "v1")
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
	})

	t.Run("wrong key length for aes", func(t *testing.T) {
		short := base64.StdEncoding.EncodeToString([]byte("too short"))
		_, err := ParseKeyring("v1:aes:"+short, "v1")
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
	})
}

func TestMaskForDisplay(t *testing.T) {
	assert.Equal(t, "******1234", MaskForDisplay("4155551234", 4))
	assert.Equal(t, "********4567", MaskForDisplay("+15551234567", 4))
	assert.Equal(t, "******", MaskForDisplay("123", 4))
	assert.Equal(t, "******", MaskForDisplay("1234", 4))
	assert.Equal(t, "******", MaskForDisplay("", 4))
	assert.Equal(t, "**********", MaskForDisplay("4155551234", 0))
}
