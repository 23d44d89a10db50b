package errors

import "errors"

var (
	ErrNotFound  = errors.New("approval request not found")
	ErrInvalidID = errors.New("invalid approval request ID")

	// ErrAlreadyDecided means the guarded pending-to-terminal flip matched
	// nothing: some other reviewer decided the request first.
	ErrAlreadyDecided = errors.New("approval request already decided")
)
