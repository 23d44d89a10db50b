package model

import "time"

// AvailabilitySlot is the per-resource, per-time-range capacity ledger.
// AvailableUnits is only ever changed by single atomic conditional updates,
// so it can never go negative or exceed the resource's total capacity.
type AvailabilitySlot struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	ResourceID     string    `json:"resource_id" bson:"resource_id" validate:"required,mongodb"`
	BranchID       string    `json:"branch_id" bson:"branch_id" validate:"required,mongodb"`
	StartTime      time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime        time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	AvailableUnits int       `json:"available_units" bson:"available_units" validate:"min=0,max=500"`
	TotalUnits     int       `json:"total_units" bson:"total_units" validate:"required,min=1,max=500"`
	Blocked        bool      `json:"blocked" bson:"blocked"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// ReservedUnits is the number of units currently committed against the slot.
func (s *AvailabilitySlot) ReservedUnits() int {
	return s.TotalUnits - s.AvailableUnits
}
