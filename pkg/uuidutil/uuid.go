// Package uuidutil generates identifiers for executions and lock holders.
package uuidutil

import (
	"github.com/google/uuid"
)

// NewV4 generates a random UUID v4 string.
func NewV4() string {
	return uuid.NewString()
}

// NewV7 generates a time-ordered UUID v7 string. Execution ids use it so
// that lexical order follows completion order.
func NewV7() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Only fails if the random source is broken
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
