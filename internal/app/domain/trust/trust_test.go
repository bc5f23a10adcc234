package trust

import "testing"

func TestLevelForThresholds(t *testing.T) {
	cases := []struct {
		consecutiveValid int64
		totalValid       int64
		want             Level
	}{
		{0, 0, LevelNew},
		{9, 9, LevelNew},
		{10, 10, LevelProven},
		{99, 99, LevelProven},
		{100, 100, LevelTrusted},
		{100, 500, LevelCore},
		{5, 500, LevelCore},
	}
	for _, c := range cases {
		if got := LevelFor(c.consecutiveValid, c.totalValid); got != c.want {
			t.Fatalf("LevelFor(%d, %d) = %v, want %v", c.consecutiveValid, c.totalValid, got, c.want)
		}
	}
}

func TestEffectiveTrustCapsOnLowReliability(t *testing.T) {
	if got := EffectiveTrust(LevelTrusted, 0.5); got != LevelNew {
		t.Fatalf("expected reliability below 0.80 to cap at LevelNew, got %v", got)
	}
	if got := EffectiveTrust(LevelTrusted, 0.85); got != LevelProven {
		t.Fatalf("expected reliability between 0.80 and 0.90 to cap at LevelProven, got %v", got)
	}
	if got := EffectiveTrust(LevelTrusted, 0.95); got != LevelTrusted {
		t.Fatalf("expected reliability at or above 0.90 to leave the base level untouched, got %v", got)
	}
}

func TestEffectiveTrustNeverRaisesBelowCapLevel(t *testing.T) {
	if got := EffectiveTrust(LevelNew, 0.5); got != LevelNew {
		t.Fatalf("expected a cap to never raise the base level, got %v", got)
	}
}
