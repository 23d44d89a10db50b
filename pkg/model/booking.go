package model

import "time"

// BookingStatus is the lifecycle state of a reservation.
type BookingStatus string

const (
	StatusUpcoming  BookingStatus = "upcoming"
	StatusCheckedIn BookingStatus = "checked_in"
	StatusCompleted BookingStatus = "completed"
	StatusNoShow    BookingStatus = "no_show"
	StatusCancelled BookingStatus = "cancelled"
)

// legalTransitions enumerates the only moves the lifecycle allows:
// upcoming -> checked_in -> completed, upcoming -> no_show,
// upcoming -> cancelled. Everything else is rejected.
var legalTransitions = map[BookingStatus][]BookingStatus{
	StatusUpcoming:  {StatusCheckedIn, StatusNoShow, StatusCancelled},
	StatusCheckedIn: {StatusCompleted},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
// Terminal bookings are retained forever for audit and reporting.
func (s BookingStatus) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

func (s BookingStatus) String() string {
	return string(s)
}

// ReleasesUnits reports whether entering this status must credit the
// reserved units back to the slot. Completed does not release: the slot's
// time has passed and the capacity is not reusable within that window.
func (s BookingStatus) ReleasesUnits() bool {
	return s == StatusCancelled || s == StatusNoShow
}

type Booking struct {
	ID         string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	BranchID   string        `json:"branch_id" bson:"branch_id" validate:"required,mongodb"`
	ResourceID string        `json:"resource_id" bson:"resource_id" validate:"required,mongodb"`
	SlotID     string        `json:"slot_id" bson:"slot_id" validate:"required,mongodb"`
	CustomerID string        `json:"customer_id" bson:"customer_id" validate:"required,min=1,max=64"`
	StartTime  time.Time     `json:"start_time" bson:"start_time" validate:"required"`
	EndTime    time.Time     `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	Units      int           `json:"units" bson:"units" validate:"required,min=1,max=500"`
	Status     BookingStatus `json:"status" bson:"status" validate:"required,oneof=upcoming checked_in completed no_show cancelled"`
	Paid       bool          `json:"paid" bson:"paid"`
	CreatedAt  time.Time     `json:"created_at" bson:"created_at" validate:"omitempty"`
	UpdatedAt  time.Time     `json:"updated_at" bson:"updated_at" validate:"omitempty"`
}
