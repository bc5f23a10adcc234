// Package workblock defines WorkBlock, the unit of dispatch: a contiguous
// sub-range of a search job's parameter space.
package workblock

import "time"

type Status string

const (
	StatusAvailable Status = "available"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Block is a single claimable unit of work. The invariants in spec.md §3
// hold: status=claimed implies ClaimedBy and ClaimedAt are set; status=
// completed implies Tested and Found are non-negative; terminal transitions
// are monotone except via an explicit failure-reclaim back to available.
type Block struct {
	ID             int64
	SearchJobID    int64
	BlockStart     int64
	BlockEnd       int64
	Status         Status
	ClaimedBy      *string // worker_id
	VolunteerID    *string // operator id, nil for internal workers
	ClaimedAt      *time.Time
	CompletedAt    *time.Time
	Tested         int64
	Found          int64
	BlockCheckpoint map[string]any
	MinQuorum      *int
	Verified       bool
}

// IsInternalWorker reports whether the current/former claimant is an
// internal worker (no operator/volunteer attached) rather than a public
// operator node — determines which reclamation timeout regime applies.
func (b Block) IsInternalWorker() bool {
	return b.VolunteerID == nil
}

// Assignment is the payload returned to a successful claimer.
type Assignment struct {
	BlockID     int64
	SearchJobID int64
	SearchType  string
	Params      map[string]any
	BlockStart  int64
	BlockEnd    int64
	Checkpoint  map[string]any
}
