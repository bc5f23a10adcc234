// Package trust defines the OperatorTrust record and the single-sourced
// advancement/threshold tables consulted by the trust & reliability scorer.
package trust

// Level is an operator's trust level, 0 (untrusted) through 4 (core).
type Level int

const (
	LevelUntrusted Level = 0
	LevelNew       Level = 1
	LevelProven    Level = 2
	LevelTrusted   Level = 3
	LevelCore      Level = 4
)

// Record is the per-operator trust counters. Level 0 is reachable only via
// RecordInvalid (spec.md §9 open question #1) — a never-before-seen
// operator is scored as LevelNew by the scorer's GetTrust fallback, not
// persisted as level 0.
type Record struct {
	VolunteerID      string
	ConsecutiveValid int64
	TotalValid       int64
	TotalInvalid     int64
	TrustLevel       Level
}

// advancement thresholds (spec.md §3): level 2 at consecutive_valid >= 10;
// level 3 at consecutive_valid >= 100; level 4 at total_valid >= 500.
const (
	ConsecutiveForProven  = 10
	ConsecutiveForTrusted = 100
	TotalValidForCore     = 500
)

// LevelFor computes the maximum level whose threshold is met by the given
// counters, never downgrading below LevelNew (record_invalid is the only
// path that ever assigns LevelUntrusted).
func LevelFor(consecutiveValid, totalValid int64) Level {
	level := LevelNew
	if consecutiveValid >= ConsecutiveForProven {
		level = LevelProven
	}
	if consecutiveValid >= ConsecutiveForTrusted {
		level = LevelTrusted
	}
	if totalValid >= TotalValidForCore {
		level = LevelCore
	}
	return level
}

// reliability-capping thresholds consulted by EffectiveTrust.
const (
	ReliabilityFloorForLevel2 = 0.80
	ReliabilityFloorForLevel3 = 0.90
)

// EffectiveTrust caps base by 30-day node reliability (spec.md §4.2).
func EffectiveTrust(base Level, reliability float64) Level {
	if reliability < ReliabilityFloorForLevel2 {
		return minLevel(base, LevelNew)
	}
	if reliability < ReliabilityFloorForLevel3 {
		return minLevel(base, LevelProven)
	}
	return base
}

func minLevel(a, b Level) Level {
	if a < b {
		return a
	}
	return b
}
