package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier such as "todo_9f2c...".
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewSessionToken returns an opaque value suitable for a session cookie.
// Only its SHA-256 hash is ever persisted.
func NewSessionToken() string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
