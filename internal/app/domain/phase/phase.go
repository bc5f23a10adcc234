// Package phase defines ProjectPhase and the activation/completion
// condition enums evaluated by the Project Orchestrator.
package phase

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusSkipped   Status = "skipped"
	StatusFailed    Status = "failed"
)

// ActivationCondition is the closed enum from spec.md §4.4. An absent
// condition (empty string) is treated as unconditionally true once
// dependencies are satisfied.
type ActivationCondition string

const (
	ActivationNone                  ActivationCondition = ""
	ActivationPreviousPhaseFoundZero ActivationCondition = "previous_phase_found_zero"
	ActivationPreviousPhaseFoundAny  ActivationCondition = "previous_phase_found_any"
)

// CompletionCondition is the closed enum consulted by IsPhaseComplete.
type CompletionCondition string

const (
	CompletionAllBlocksDone  CompletionCondition = "all_blocks_done"
	CompletionFirstPrimeFound CompletionCondition = "first_prime_found"
)

// Totals mirrors a phase's search job aggregates.
type Totals struct {
	TotalTested int64
	TotalFound  int64
}

type Phase struct {
	ID                  int64
	ProjectID           int64
	Name                string
	PhaseOrder          int
	Status              Status
	SearchParams        map[string]any
	BlockSize           int64
	DependsOn           []string
	ActivationCondition ActivationCondition
	CompletionCondition CompletionCondition
	SearchJobID         *int64
	Totals              Totals
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Config describes a phase to be created, either from user configuration or
// from GenerateFollowupPhase/GenerateAutoStrategy.
type Config struct {
	Name                string
	PhaseOrder          int
	SearchParams        map[string]any
	BlockSize           int64
	DependsOn           []string
	ActivationCondition ActivationCondition
	CompletionCondition CompletionCondition
	RangeStart          int64
	RangeEnd            int64
}
