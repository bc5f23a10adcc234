// Package project defines the Project entity: a multi-phase search campaign.
package project

import "time"

type Objective string

const (
	ObjectiveRecord       Objective = "record"
	ObjectiveSurvey       Objective = "survey"
	ObjectiveVerification Objective = "verification"
	ObjectiveCustom       Objective = "custom"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// Target describes the range a project (or its auto-generated strategy)
// covers.
type Target struct {
	RangeStart int64
	RangeEnd   int64
}

// Infrastructure is the fleet-requirement gate consulted by
// orchestrator.CheckFleetRequirements.
type Infrastructure struct {
	MinCores      int
	MinRAMGB      int
	MinWorkers    int
	RequiredTools []string
	PreferredTools []string
}

// Budget configures cost estimation (original_source/src/project/cost.rs).
type Budget struct {
	CloudRateUSDPerCoreHour float64
	RecommendedWorkers      *int
	RecommendedCores        *int
}

type Project struct {
	ID             int64
	Slug           string
	Name           string
	Objective      Objective
	Form           string
	Status         Status
	Target         Target
	Competitive    bool
	Strategy       string
	Infrastructure *Infrastructure
	Budget         *Budget
	TotalTested    int64
	TotalFound     int64
	BestPrimeID    *int64
	BestDigits     int64
	TotalCoreHours float64
	TotalCostUSD   float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CostEstimate is the derived cost/duration projection (SPEC_FULL §C).
type CostEstimate struct {
	EstimatedCandidates     int64
	EstimatedTestTimeSecs   float64
	TotalCoreHours          float64
	TotalCostUSD            float64
	EstimatedDurationHours  float64
	WorkersRecommended      int
}

// FleetSummary is the per-tick snapshot the Orchestrator reads instead of
// raw heartbeats (spec.md §4.4).
type FleetSummary struct {
	TotalCores        int
	MaxRAMGB           int
	WorkerCount        int
	ActiveSearchTypes map[string]bool
}
