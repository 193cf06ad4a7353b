package catalog

import (
	"errors"
	"strings"
)

// ErrEmptyID is returned when an identifier normalizes to the empty string.
var ErrEmptyID = errors.New("empty object identifier")

// ID is a normalized celestial object identifier used as the cache key.
// Two names that differ only in case or whitespace map to the same ID.
type ID string

// NewID normalizes raw into an ID: surrounding whitespace is trimmed,
// internal whitespace runs collapse to a single space, letters are lowered.
func NewID(raw string) (ID, error) {
	id := ID(strings.ToLower(strings.Join(strings.Fields(raw), " ")))
	if id == "" {
		return "", ErrEmptyID
	}
	return id, nil
}

// MustID is NewID for literals known to be valid. It panics on an empty name.
func MustID(raw string) ID {
	id, err := NewID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the normalized form.
func (id ID) String() string {
	return string(id)
}
