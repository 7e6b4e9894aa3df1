package repository

import "errors"

// Common repository errors
var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicateKey = errors.New("duplicate key violation")
)

// ErrUnchanged may be returned by an UpdateAtomic mutate callback to commit
// nothing while still reporting success with the currently stored row.
var ErrUnchanged = errors.New("no change")
