// Package idgen generates identifiers for requests, messages, and outbox
// entries. Every id is a UUIDv4 string; callers treat ids as opaque.
package idgen

import "github.com/google/uuid"

// New returns a fresh UUIDv4 string.
func New() string {
	return uuid.NewString()
}

// NewCorrelationID returns a fresh correlation id for a request that does
// not inherit one from a parent request.
func NewCorrelationID() string {
	return uuid.NewString()
}

// Valid reports whether s parses as a UUID, regardless of version.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
