// ABOUTME: Authenticated encryption for stored tenant credentials
// ABOUTME: AES-256-GCM with per-call random nonces, hex token serialization

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Vault errors
var (
	// ErrMissingKey indicates the vault was constructed without a usable key.
	// Callers treat this as fatal at startup.
	ErrMissingKey = errors.New("encryption key missing or wrong size")

	// ErrFormat indicates a token that is not three colon-separated hex parts.
	ErrFormat = errors.New("malformed credential token")

	// ErrAuthentication indicates the authentication tag did not verify,
	// either a tampered token or the wrong key.
	ErrAuthentication = errors.New("credential authentication failed")
)

const (
	nonceSize = 16
	tagSize   = 16
)

// Vault encrypts and decrypts opaque credential strings with a single
// process-wide AES-256 key.
type Vault struct {
	aead cipher.AEAD
}

// New creates a Vault from a 32-byte key.
func New(key []byte) (*Vault, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("%w: got %d bytes, need 32", ErrMissingKey, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the token as
// "nonce:tag:ciphertext", each part hex-encoded.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := v.aead.Seal(nil, nonce, []byte(plaintext), nil)

	// Seal appends the tag to the ciphertext; the token format keeps them
	// as separate parts.
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt opens a token produced by Encrypt. Returns ErrFormat for tokens that
// do not parse and ErrAuthentication when the tag does not verify.
func (v *Vault) Decrypt(token string) (string, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 parts, got %d", ErrFormat, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: bad nonce", ErrFormat)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: bad tag", ErrFormat)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrFormat)
	}

	sealed := append(ciphertext, tag...)
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuthentication
	}

	return string(plaintext), nil
}
