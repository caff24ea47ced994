package store

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a record violates a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")

	// ErrStale is returned when a conditional write matched no row because the
	// record changed after it was read.
	ErrStale = errors.New("stale record")
)
