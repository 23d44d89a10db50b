package model

import "time"

// Occupancy labels derived from the reserved/total ratio of a branch.
const (
	OccupancyCalm     = "calm"
	OccupancyModerate = "moderate"
	OccupancyBusy     = "busy"
)

// BranchState is a derived, best-effort occupancy signal. It carries no
// correctness obligations and may lag briefly behind the true reserved
// count.
type BranchState struct {
	BranchID      string    `json:"branch_id"`
	ReservedUnits int       `json:"reserved_units"`
	TotalUnits    int       `json:"total_units"`
	OccupancyPct  int       `json:"occupancy_pct"`
	Label         string    `json:"label"`
	ComputedAt    time.Time `json:"computed_at"`
}
