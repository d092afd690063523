package shared

import "errors"

var (
	// ErrValidation indicates malformed or out-of-range input. Nothing is written.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStateConflict indicates the operation is not valid for the entity's current state.
	ErrStateConflict = errors.New("state conflict")
)
