package store

import "errors"

var (
	// ErrNotFound is returned when a record doesn't exist.
	ErrNotFound = errors.New("fskv: record not found")

	// ErrAlreadyExists is returned when Put targets a key that already has a record.
	ErrAlreadyExists = errors.New("fskv: record already exists")

	// ErrNotAStore is returned when a root exists but is not recognized as a store.
	ErrNotAStore = errors.New("fskv: not a store root")

	// ErrInvalidKey is returned for keys that can't be used as a file name.
	ErrInvalidKey = errors.New("fskv: invalid key")
)
