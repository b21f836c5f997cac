// ABOUTME: Dashboard password hashing using scrypt
// ABOUTME: Produces salt:hash hex tokens with timing-safe verification

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters; hash length matches the stored token format
const (
	scryptN       = 16384
	scryptR       = 8
	scryptP       = 1
	scryptHashLen = 64
	saltLen       = 16
)

// HashPassword derives an scrypt hash of the password under a fresh random
// salt and returns it as "salt:hash", both hex-encoded.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)

	hash, err := scrypt.Key([]byte(password), []byte(saltHex), scryptN, scryptR, scryptP, scryptHashLen)
	if err != nil {
		return "", fmt.Errorf("deriving hash: %w", err)
	}

	return saltHex + ":" + hex.EncodeToString(hash), nil
}

// VerifyPassword checks a password against a stored "salt:hash" token.
// Any malformed token verifies as false rather than erroring.
func VerifyPassword(password, stored string) bool {
	parts := strings.SplitN(stored, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}

	expected, err := hex.DecodeString(parts[1])
	if err != nil || len(expected) != scryptHashLen {
		return false
	}

	supplied, err := scrypt.Key([]byte(password), []byte(parts[0]), scryptN, scryptR, scryptP, scryptHashLen)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(expected, supplied) == 1
}
