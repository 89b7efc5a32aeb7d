// Package idgen generates short, prefixed identifiers for policy versions
// and audit events.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

const (
	// PolicyPrefix marks policy snapshot versions.
	PolicyPrefix = "pv-"
	// EventPrefix marks audit log entries.
	EventPrefix = "ev-"
)

// Alphabet defines the character set used for the random portion of the ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
var Length = 10

// PolicyVersion returns a fresh policy version identifier.
func PolicyVersion() (string, error) {
	return WithPrefix(PolicyPrefix)
}

// Event returns a fresh audit event identifier.
func Event() (string, error) {
	return WithPrefix(EventPrefix)
}

// WithPrefix returns a new unique ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
