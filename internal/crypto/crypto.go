// Package crypto is the field-level encryption service. PII written to any
// store passes through Encrypt first; reads pass through Decrypt. Decryption
// fails closed: a bad tag or unknown key version is an error, never a guessed
// plaintext.
package crypto

import (
	"crypto/rand"
	"fmt"
	"sync/atomic"

	dErrors "callguard/pkg/domain-errors"
)

// EncryptedBlob is the stored form of an encrypted field. The auth tag is kept
// alongside the ciphertext so tampering with either fails verification.
type EncryptedBlob struct {
	KeyVersion string `json:"key_version"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	AuthTag    []byte `json:"auth_tag"`
}

// Service encrypts and decrypts with a versioned keyring. The keyring is the
// only process-wide mutable resource in the engine; it is replaced atomically
// on rotation, never edited in place.
type Service struct {
	ring atomic.Pointer[Keyring]
}

// NewService creates the encryption service around an initial keyring.
func NewService(ring *Keyring) *Service {
	s := &Service{}
	s.ring.Store(ring)
	return s
}

// Rotate swaps in a new keyring snapshot. Old versions stay decryptable as
// long as the new ring still carries them.
func (s *Service) Rotate(ring *Keyring) {
	s.ring.Store(ring)
}

// Encrypt seals plaintext under the current key version with a fresh random
// nonce. Nonce length is fixed by the version's cipher suite.
func (s *Service) Encrypt(plaintext []byte) (EncryptedBlob, error) {
	ring := s.ring.Load()
	k, ok := ring.keys[ring.current]
	if !ok {
		return EncryptedBlob{}, dErrors.New(dErrors.CodeKeyNotConfigured, "no active encryption key")
	}

	nonce := make([]byte, k.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedBlob{}, fmt.Errorf("generate nonce: %w", err)
	}

	sealed := k.aead.Seal(nil, nonce, plaintext, nil)
	tagStart := len(sealed) - k.aead.Overhead()
	return EncryptedBlob{
		KeyVersion: k.version,
		Nonce:      nonce,
		Ciphertext: sealed[:tagStart],
		AuthTag:    sealed[tagStart:],
	}, nil
}

// Decrypt opens a blob with the key version it was sealed under. Unknown
// versions and failed tag verification are hard errors.
func (s *Service) Decrypt(blob EncryptedBlob) ([]byte, error) {
	ring := s.ring.Load()
	k, ok := ring.keys[blob.KeyVersion]
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnknownKeyVersion,
			fmt.Sprintf("key version %q is not configured", blob.KeyVersion))
	}
	if len(blob.Nonce) != k.aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeAuthenticationFailed, "nonce length mismatch")
	}

	sealed := make([]byte, 0, len(blob.Ciphertext)+len(blob.AuthTag))
	sealed = append(sealed, blob.Ciphertext...)
	sealed = append(sealed, blob.AuthTag...)

	plaintext, err := k.aead.Open(nil, blob.Nonce, sealed, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthenticationFailed, "authentication tag verification failed")
	}
	return plaintext, nil
}
