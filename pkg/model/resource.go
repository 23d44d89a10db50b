package model

import "time"

// Service kinds a branch can offer.
const (
	KindHotDesk       = "hot_desk"
	KindPrivateOffice = "private_office"
	KindMeetingRoom   = "meeting_room"
)

// Resource is a bookable unit type at a branch: a hot desk pool, a specific
// private office, or a meeting room. TotalCapacity is mutated only through
// the approval workflow.
type Resource struct {
	ID            string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	BranchID      string    `json:"branch_id" bson:"branch_id" validate:"required,mongodb"`
	Name          string    `json:"name" bson:"name" validate:"required,min=2,max=100"`
	ServiceKind   string    `json:"service_kind" bson:"service_kind" validate:"required,oneof=hot_desk private_office meeting_room"`
	TotalCapacity int       `json:"total_capacity" bson:"total_capacity" validate:"required,min=1,max=500"`
	CreatedAt     time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}
