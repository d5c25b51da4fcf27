package repository

import "errors"

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a write would violate a uniqueness
	// invariant (pending friend request, existing friendship, membership).
	ErrDuplicate = errors.New("already exists")
)
