package storage

import "errors"

// Errors shared by the snapshot and activity bucket stores.
var (
	// ErrNotFound is returned when no snapshot or bucket matches the key.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a snapshot id or a
	// (pool_id, bucket_start_ms) pair that already exists. Both stores are
	// append-only; a persisted row is never rewritten.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
