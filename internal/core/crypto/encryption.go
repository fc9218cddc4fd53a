// Package crypto seals server credentials at rest.
// This is part of the Functional Core - all functions are pure apart from nonce generation.
//
// Passwords are encrypted with AES-256-GCM under a key derived from the
// operator's passphrase with Argon2id.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrKeyTooShort is returned when the encryption key is too short.
	ErrKeyTooShort = errors.New("encryption key must be at least 32 bytes")

	// ErrInvalidCiphertext is returned when the ciphertext is truncated.
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short")

	// ErrDecryptionFailed is returned on a wrong key or corrupted data.
	ErrDecryptionFailed = errors.New("decryption failed: authentication tag mismatch")

	// ErrEmptyPassphrase is returned when deriving a key from nothing.
	ErrEmptyPassphrase = errors.New("encryption passphrase is empty")
)

// KeySize is the AES-256 key length.
const KeySize = 32

// SealedPrefix marks values produced by Sealer.Seal.
const SealedPrefix = "enc:v1:"

// Argon2id parameters. Changing them changes every derived key.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// =============================================================================
// Key Derivation
// =============================================================================

// DeriveKey derives a 32-byte AES-256 key from a passphrase and salt using Argon2id.
// The same inputs always produce the same key.
func DeriveKey(passphrase, salt string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	return argon2.IDKey([]byte(passphrase), []byte(salt), argonTime, argonMemory, argonThreads, KeySize), nil
}

// =============================================================================
// AES-256-GCM Encryption
// =============================================================================

// Encrypt encrypts plaintext using AES-256-GCM.
//
// The ciphertext format is: nonce (12 bytes) || encrypted data || auth tag (16 bytes)
func Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts ciphertext that was encrypted with Encrypt.
func Decrypt(ciphertext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrInvalidCiphertext
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) < KeySize {
		return nil, ErrKeyTooShort
	}
	block, err := aes.NewCipher(key[:KeySize])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// =============================================================================
// Sealer
// =============================================================================

// Sealer encrypts short secrets into printable strings for text columns.
// A nil *Sealer passes values through unchanged.
type Sealer struct {
	key []byte
}

// NewSealer creates a sealer for a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) < KeySize {
		return nil, ErrKeyTooShort
	}
	return &Sealer{key: key[:KeySize]}, nil
}

// NewSealerFromPassphrase derives the key with DeriveKey. An empty passphrase
// returns a nil sealer, which stores secrets in the clear.
func NewSealerFromPassphrase(passphrase, salt string) (*Sealer, error) {
	if passphrase == "" {
		return nil, nil
	}
	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	return NewSealer(key)
}

// Seal encrypts plaintext and returns SealedPrefix + base64 ciphertext.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if s == nil || plaintext == "" {
		return plaintext, nil
	}
	ciphertext, err := Encrypt([]byte(plaintext), s.key)
	if err != nil {
		return "", err
	}
	return SealedPrefix + base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open reverses Seal. Values without SealedPrefix are returned as-is so rows
// written before a key was configured stay readable.
func (s *Sealer) Open(value string) (string, error) {
	encoded, ok := strings.CutPrefix(value, SealedPrefix)
	if !ok {
		return value, nil
	}
	if s == nil {
		return "", fmt.Errorf("%w: value is sealed but no key is configured", ErrDecryptionFailed)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	plaintext, err := Decrypt(ciphertext, s.key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}
