package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NewID returns a URL-safe hex string ID.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// StableID derives a deterministic ID from an identity string such as an
// email address. The same input always yields the same ID.
func StableID(identity string) string {
	identity = strings.ToLower(strings.TrimSpace(identity))
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:12])
}
