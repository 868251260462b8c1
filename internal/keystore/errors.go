package keystore

import "errors"

var (
	// ErrNotFound is returned when no key matches the lookup.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when an insert collides with an existing key string.
	ErrDuplicateKey = errors.New("duplicate key string")
	// ErrConflict is returned when a conditional write matched no rows because
	// the key changed since it was read.
	ErrConflict = errors.New("key changed concurrently")
)
