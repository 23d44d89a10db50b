package events

import "time"

// BookingEvent is published on every booking mutation. Keyed by branch so
// per-branch consumers (occupancy projections, reporting) see an ordered
// stream.
type BookingEvent struct {
	BookingID  string    `json:"booking_id"`
	BranchID   string    `json:"branch_id"`
	ResourceID string    `json:"resource_id"`
	SlotID     string    `json:"slot_id"`
	Status     string    `json:"status"`
	Units      int       `json:"units"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SlotEvent is published when a slot's availability changes outside the
// booking path, e.g. a vendor blocking or unblocking it.
type SlotEvent struct {
	SlotID     string    `json:"slot_id"`
	BranchID   string    `json:"branch_id"`
	ResourceID string    `json:"resource_id"`
	Blocked    bool      `json:"blocked"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ApprovalEvent is published when a capacity-change request is decided.
type ApprovalEvent struct {
	RequestID   string    `json:"request_id"`
	BranchID    string    `json:"branch_id"`
	ResourceID  string    `json:"resource_id"`
	Status      string    `json:"status"`
	NewCapacity int       `json:"new_capacity,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
