// Package secrets encrypts per-account credentials at rest with
// AES-256-GCM. In production an explicit 32-byte key is required; outside
// production a missing key may be derived from the server secret so that
// development environments work without extra setup.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/ignite/mailflow/internal/pkg/logger"
)

// ErrNoKey is returned when no usable key material is available.
var ErrNoKey = errors.New("secrets: no encryption key configured")

// Box seals and opens credential strings. Safe for concurrent use.
type Box struct {
	key []byte
}

// New builds a Box from a base64-encoded 32-byte key. When key is empty:
// in production this fails (secrets must not silently depend on unrelated
// key material), otherwise the key is derived from serverSecret with a
// warning.
func New(encodedKey, serverSecret string, production bool) (*Box, error) {
	if encodedKey != "" {
		key, err := base64.StdEncoding.DecodeString(encodedKey)
		if err != nil {
			return nil, fmt.Errorf("secrets: decode key: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("secrets: key must be 32 bytes, got %d", len(key))
		}
		return &Box{key: key}, nil
	}

	if production {
		return nil, ErrNoKey
	}
	if serverSecret == "" {
		return nil, ErrNoKey
	}

	logger.Warn("secrets: deriving encryption key from server secret; set a dedicated key for production")
	derived := sha256.Sum256([]byte(serverSecret))
	return &Box{key: derived[:]}, nil
}

// Seal encrypts plaintext and returns it base64-encoded with the nonce
// prepended.
func (b *Box) Seal(plaintext string) (string, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Callers must treat failure as
// "credential unavailable", not as a fatal condition.
func (b *Box) Open(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("secrets: decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("secrets: ciphertext too short")
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: open: %w", err)
	}
	return string(plaintext), nil
}
