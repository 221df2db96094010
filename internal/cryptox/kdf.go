package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 iteration count for offline blobs.
	DefaultIterations = 120000
	// DefaultKeyLength is the derived key length in bytes.
	DefaultKeyLength = 32
	// DefaultSaltLength is the random salt length in bytes.
	DefaultSaltLength = 16
)

// ErrDerivation is returned for invalid KDF parameters: a salt that is not
// valid base64, or non-positive iteration/length values. This is a programmer
// error class and should not occur in normal operation.
var ErrDerivation = errors.New("key derivation failed")

// DeriveKey derives a verification value from a password and a base64 salt
// using PBKDF2-SHA256. The result is base64 for storage. Identical inputs
// always produce identical output, which is what makes offline comparison
// possible.
func DeriveKey(password, saltB64 string, iterations, length int) (string, error) {
	if iterations <= 0 {
		return "", fmt.Errorf("%w: iterations must be positive, got %d", ErrDerivation, iterations)
	}
	if length <= 0 {
		return "", fmt.Errorf("%w: length must be positive, got %d", ErrDerivation, length)
	}
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", fmt.Errorf("%w: invalid salt encoding: %v", ErrDerivation, err)
	}

	derived := pbkdf2.Key([]byte(password), salt, iterations, length, sha256.New)
	return base64.StdEncoding.EncodeToString(derived), nil
}

// GenerateSalt returns n cryptographically random bytes as base64.
func GenerateSalt(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("%w: salt length must be positive, got %d", ErrDerivation, n)
	}
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	return base64.StdEncoding.EncodeToString(salt), nil
}

// VerifyDerived compares a stored derived value with a candidate in constant
// time. Both are the base64 strings produced by DeriveKey.
func VerifyDerived(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}
