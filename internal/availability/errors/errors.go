package errors

import "errors"

var (
	ErrNotFound = errors.New("availability slot not found")

	ErrInvalidID = errors.New("invalid slot ID format")

	// ErrInsufficientUnits means the conditional decrement matched nothing:
	// the slot has fewer available units than requested.
	ErrInsufficientUnits = errors.New("insufficient available units")

	// ErrSlotBlocked means the slot rejects reservations regardless of
	// remaining units.
	ErrSlotBlocked = errors.New("slot is blocked")

	// ErrOverRelease means a release would push available units above the
	// slot's total, which indicates a double release.
	ErrOverRelease = errors.New("release exceeds slot total units")
)
