// Package operator defines the public-volunteer Operator entity and its
// registered hardware (OperatorNode).
package operator

import "time"

// Operator is a public volunteer account. APIKeyHash stores the SHA-256 hex
// digest (dispatch.HashAPIKey) of the live key, never the key itself — the key is shown to the caller
// exactly once, at registration or rotation.
type Operator struct {
	ID          string // uuid
	Username    string
	Email       string
	APIKeyHash  string
	Team        *string
	Credit      float64
	PrimesFound int64
	JoinedAt    time.Time
	LastSeen    *time.Time
}

// Node is a registered worker machine belonging to an Operator. Capabilities
// feed dispatch eligibility (searchjob.Eligible).
type Node struct {
	WorkerID       string
	VolunteerID    string
	Hostname       string
	Cores          int
	CPUModel       string
	OS             string
	Arch           string
	RAMGB          int
	HasGPU         bool
	GPUModel       *string
	GPUMemGB       *int
	WorkerVersion  string
	UpdateChannel  string
	RegisteredAt   time.Time
	LastHeartbeat  time.Time
	PendingCommand *string
}

// LeaderboardEntry is one row of the public leaderboard, optionally grouped
// by team (original_source/src/operator.rs team-credit rollup).
type LeaderboardEntry struct {
	Rank        int
	Username    string
	Team        *string
	Credit      float64
	PrimesFound int64
	WorkerCount int
}

// Stats is the response to GET /operators/stats.
type Stats struct {
	Username    string
	Credit      float64
	PrimesFound int64
	TrustLevel  int
	Rank        *int
}
