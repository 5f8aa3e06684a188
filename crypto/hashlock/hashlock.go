// Package hashlock implements the SHA-256 commitment scheme that links the two
// legs of a cross-ledger swap: whoever reveals the preimage on one ledger hands
// the counterparty the key to the other.
package hashlock

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// Size is the digest length of a hashlock in bytes.
const Size = sha256.Size

var (
	ErrInvalidHashlock = errors.New("hashlock: commitment must be 32 hex-encoded bytes")
	ErrMismatch        = errors.New("hashlock: secret does not match commitment")
)

// Compute returns the hex-encoded SHA-256 commitment for a secret.
func Compute(secret []byte) string {
	digest := sha256.Sum256(secret)
	return hex.EncodeToString(digest[:])
}

// Normalize validates a hex-encoded commitment and returns its canonical
// lowercase form.
func Normalize(commitment string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(commitment))
	raw, err := hex.DecodeString(trimmed)
	if err != nil || len(raw) != Size {
		return "", ErrInvalidHashlock
	}
	return trimmed, nil
}

// Verify reports whether sha256(secret) equals the stored commitment. The
// comparison runs in constant time over the decoded digests.
func Verify(commitment string, secret []byte) error {
	normalized, err := Normalize(commitment)
	if err != nil {
		return err
	}
	want, err := hex.DecodeString(normalized)
	if err != nil {
		return ErrInvalidHashlock
	}
	got := sha256.Sum256(secret)
	if subtle.ConstantTimeCompare(want, got[:]) != 1 {
		return ErrMismatch
	}
	return nil
}

// NewSecret generates a random 32-byte preimage and its commitment.
func NewSecret() (secret []byte, commitment string, err error) {
	secret = make([]byte, Size)
	if _, err = rand.Read(secret); err != nil {
		return nil, "", err
	}
	return secret, Compute(secret), nil
}
