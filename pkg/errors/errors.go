package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeInvalidInput = "INVALID_INPUT"

	// Reservation-engine conflict codes. All of these map to HTTP 409 and
	// describe expected outcomes of concurrent operation, not failures.
	CodeLockContention         = "LOCK_CONTENTION"
	CodeInsufficientCapacity   = "INSUFFICIENT_CAPACITY"
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeCapacityConflict       = "CAPACITY_CONFLICT"
	CodeSlotBlocked            = "SLOT_BLOCKED"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func NotFoundWithID(resource, id string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details: map[string]any{
			"resource": resource,
			"id":       id,
		},
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// LockContention signals that another operation currently holds the resource
// lock. Retryable by the caller.
func LockContention(resourceKey string) *AppError {
	return &AppError{
		Code:       CodeLockContention,
		Message:    "Resource is currently being modified by another request. Please retry.",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"resource_key": resourceKey,
		},
	}
}

// InsufficientCapacity signals that the slot has no units left. Not retryable
// without choosing a different slot or resource.
func InsufficientCapacity(resourceID, slotID string, requested int) *AppError {
	return &AppError{
		Code:       CodeInsufficientCapacity,
		Message:    "Not enough units available for the requested slot",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"resource_id": resourceID,
			"slot_id":     slotID,
			"requested":   requested,
		},
	}
}

func SlotBlocked(slotID string) *AppError {
	return &AppError{
		Code:       CodeSlotBlocked,
		Message:    "Slot is blocked and rejects new reservations",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"slot_id": slotID,
		},
	}
}

func InvalidStateTransition(from, to string) *AppError {
	return &AppError{
		Code:       CodeInvalidStateTransition,
		Message:    fmt.Sprintf("Illegal transition from %s to %s", from, to),
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"from": from,
			"to":   to,
		},
	}
}

// CapacityConflict signals that an approval decision would reduce a
// resource's capacity below its currently committed reservations.
func CapacityConflict(resourceID string, requested, committed int) *AppError {
	return &AppError{
		Code:       CodeCapacityConflict,
		Message:    "Requested capacity is below currently committed reservations",
		HTTPStatus: http.StatusConflict,
		Details: map[string]any{
			"resource_id":        resourceID,
			"requested_capacity": requested,
			"committed_bookings": committed,
		},
	}
}
