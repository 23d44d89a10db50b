package errors

import "errors"

var (
	ErrNotFound  = errors.New("booking not found")
	ErrInvalidID = errors.New("invalid booking ID")

	// ErrStatusChanged means a guarded status update matched nothing because
	// the booking is no longer in the expected state. The caller re-reads to
	// learn the actual state.
	ErrStatusChanged = errors.New("booking status changed concurrently")
)
