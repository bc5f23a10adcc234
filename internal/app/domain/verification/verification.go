// Package verification defines the VerificationEntry state machine used by
// the adaptive-replication pipeline.
package verification

import "time"

type Status string

const (
	StatusPending  Status = "pending"
	StatusClaimed  Status = "claimed"
	StatusMatched  Status = "matched"
	StatusConflict Status = "conflict"
)

// Entry is a pending or completed independent re-check of a completed
// operator-owned block. Invariant: OriginalWorker != VerificationWorker on
// any non-pending entry.
type Entry struct {
	ID                int64
	OriginalBlockID   int64
	SearchJobID       int64
	BlockStart        int64
	BlockEnd          int64
	OriginalTested    int64
	OriginalFound     int64
	OriginalWorker    string
	OriginalVolunteer *string
	Status            Status
	VerificationWorker *string
	VerificationTested *int64
	VerificationFound  *int64
	CompletedAt        *time.Time
}

// Outcome is the result of comparing a verification submission against the
// entry's original counts.
type Outcome string

const (
	OutcomeMatched  Outcome = "matched"
	OutcomeConflict Outcome = "conflict"
)

// Compare implements the discriminating invariant from spec.md §4.3: found
// counts must agree; tested is advisory/diagnostic only.
func Compare(originalFound, verificationFound int64) Outcome {
	if originalFound == verificationFound {
		return OutcomeMatched
	}
	return OutcomeConflict
}

// CanTransitionFromPending reports whether a claim_verification call may
// pick up this entry: the original and candidate verifier must differ.
func CanTransitionFromPending(e Entry, verifierWorkerID string) bool {
	return e.Status == StatusPending && e.OriginalWorker != verifierWorkerID
}
