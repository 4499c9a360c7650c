// Package uuid provides entry id generation and validation.
//
// Entry ids are UUID v7 so that lexical order follows creation time. Rows derived
// from an entry (image rows) get a name-based id so a retried insert lands on the
// same primary key.
package uuid

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Accepts v4 and v7 in canonical dashed form with RFC 4122 variant bits.
var entryIDRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[47][0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

// New generates a new time-ordered UUID v7.
// Falls back to v4 if the random source fails.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Derive returns a deterministic id for a child row of parent.
// The same (parent, name) pair always yields the same id.
func Derive(parent, name string) (string, error) {
	p, err := uuid.Parse(parent)
	if err != nil {
		return "", fmt.Errorf("invalid parent UUID: %w", err)
	}
	return uuid.NewSHA1(p, []byte(name)).String(), nil
}

// NewFromString parses an entry id.
func NewFromString(s string) (uuid.UUID, error) {
	if !IsValid(s) {
		return uuid.Nil, fmt.Errorf("invalid entry id: %q", s)
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID: %w", err)
	}
	return id, nil
}

// IsValid checks if a string is a valid entry id (UUID v4 or v7).
func IsValid(s string) bool {
	return entryIDRegex.MatchString(s)
}

// Validate returns an error if the string is not a valid entry id.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("invalid entry id format: %q", s)
	}
	return nil
}
