package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"

	dErrors "callguard/pkg/domain-errors"
)

// Suite identifies the AEAD cipher a key version is bound to. The suite is
// fixed at key creation; rotation introduces a new version, never a suite
// change for an existing version.
type Suite string

const (
	SuiteAESGCM  Suite = "aes"
	SuiteXChaCha Suite = "xchacha"
)

type key struct {
	version string
	suite   Suite
	aead    cipher.AEAD
}

// Keyring is an immutable snapshot of configured keys. Rotation builds a new
// Keyring and swaps it in; readers never observe a partially-updated key set.
type Keyring struct {
	keys    map[string]key
	current string
}

// ParseKeyring builds a Keyring from the ENCRYPTION_KEYS format:
// comma-separated version:suite:base64key entries. current must name one of
// the parsed versions; all other versions remain decrypt-only.
func ParseKeyring(spec, current string) (*Keyring, error) {
	if spec == "" {
		return nil, dErrors.New(dErrors.CodeKeyNotConfigured, "no encryption keys configured")
	}

	keys := make(map[string]key)
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, dErrors.New(dErrors.CodeInvalidInput,
				fmt.Sprintf("malformed key entry %q, want version:suite:base64key", entry))
		}
		version, suite, encoded := parts[0], Suite(parts[1]), parts[2]
		if _, dup := keys[version]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidInput,
				fmt.Sprintf("duplicate key version %q", version))
		}

		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput,
				fmt.Sprintf("key version %q is not valid base64", version))
		}

		aead, err := newAEAD(suite, raw)
		if err != nil {
			return nil, err
		}
		keys[version] = key{version: version, suite: suite, aead: aead}
	}

	if _, ok := keys[current]; !ok {
		return nil, dErrors.New(dErrors.CodeKeyNotConfigured,
			fmt.Sprintf("current key version %q is not among configured keys", current))
	}

	return &Keyring{keys: keys, current: current}, nil
}

func newAEAD(suite Suite, raw []byte) (cipher.AEAD, error) {
	switch suite {
	case SuiteAESGCM:
		if len(raw) != 32 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "aes suite requires a 32-byte key")
		}
		block, err := aes.NewCipher(raw)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "build aes cipher")
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "build gcm aead")
		}
		return aead, nil
	case SuiteXChaCha:
		aead, err := chacha20poly1305.NewX(raw)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "build xchacha20 aead")
		}
		return aead, nil
	default:
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown cipher suite %q", suite))
	}
}

// CurrentVersion returns the version used for new encryptions.
func (r *Keyring) CurrentVersion() string { return r.current }

// Versions lists all configured key versions.
func (r *Keyring) Versions() []string {
	out := make([]string, 0, len(r.keys))
	for v := range r.keys {
		out = append(out, v)
	}
	return out
}
