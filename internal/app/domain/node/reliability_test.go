package node

import "testing"

func TestScoreDefaultsToOneWithNoHistory(t *testing.T) {
	if got := (Reliability{}).Score(); got != 1.0 {
		t.Fatalf("expected a worker with no completed blocks to score 1.0, got %v", got)
	}
}

func TestScoreIsValidOverTotal(t *testing.T) {
	r := Reliability{TotalBlocks: 20, ValidBlocks: 15}
	if got := r.Score(); got != 0.75 {
		t.Fatalf("expected 15/20 = 0.75, got %v", got)
	}
}
