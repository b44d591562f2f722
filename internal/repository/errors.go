package repository

import "errors"

// Generic repository errors.
var (
	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry means a write violated a unique constraint.
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrStateConflict means a guarded update matched no row because the
	// record's state changed underneath it.
	ErrStateConflict = errors.New("repository: state conflict")
)

var (
	ErrCallNotFound    = ErrNotFound
	ErrSessionNotFound = ErrNotFound
)
