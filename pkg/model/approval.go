package model

import "time"

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Terminal reports whether the request has been decided. A decided request
// is immutable; re-deciding it is a workflow bug, not a retryable no-op.
func (s ApprovalStatus) Terminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected
}

func (s ApprovalStatus) String() string {
	return string(s)
}

const (
	ApprovalTypeCapacityChange = "capacity_change"
)

// ApprovalRequest is a vendor-submitted capacity-change request. It
// transitions exactly once from pending to approved or rejected.
type ApprovalRequest struct {
	ID          string         `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	BranchID    string         `json:"branch_id" bson:"branch_id" validate:"required,mongodb"`
	ResourceID  string         `json:"resource_id" bson:"resource_id" validate:"required,mongodb"`
	RequestType string         `json:"request_type" bson:"request_type" validate:"required,oneof=capacity_change"`
	OldValue    int            `json:"old_value" bson:"old_value" validate:"min=0"`
	NewValue    int            `json:"new_value" bson:"new_value" validate:"required,min=1,max=500"`
	Reason      string         `json:"reason" bson:"reason" validate:"required,min=2,max=500"`
	Status      ApprovalStatus `json:"status" bson:"status" validate:"required,oneof=pending approved rejected"`
	ReviewerID  string         `json:"reviewer_id,omitempty" bson:"reviewer_id,omitempty" validate:"omitempty,max=64"`
	ReviewNotes string         `json:"review_notes,omitempty" bson:"review_notes,omitempty" validate:"omitempty,max=500"`
	CreatedAt   time.Time      `json:"created_at" bson:"created_at" validate:"omitempty"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty" bson:"decided_at,omitempty" validate:"omitempty"`
}
