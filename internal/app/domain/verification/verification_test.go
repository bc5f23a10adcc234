package verification

import "testing"

func TestCompareMatchesOnEqualFoundCounts(t *testing.T) {
	if got := Compare(3, 3); got != OutcomeMatched {
		t.Fatalf("expected a matched outcome for equal found counts, got %v", got)
	}
}

func TestCompareIgnoresTestedAndFlagsFoundMismatch(t *testing.T) {
	if got := Compare(3, 4); got != OutcomeConflict {
		t.Fatalf("expected a conflict for mismatched found counts, got %v", got)
	}
}

func TestCanTransitionFromPendingRejectsTheOriginalWorker(t *testing.T) {
	e := Entry{Status: StatusPending, OriginalWorker: "worker-a"}
	if CanTransitionFromPending(e, "worker-a") {
		t.Fatalf("expected the original worker to be ineligible to verify its own block")
	}
	if !CanTransitionFromPending(e, "worker-b") {
		t.Fatalf("expected a distinct worker to be eligible to claim a pending entry")
	}
}

func TestCanTransitionFromPendingRejectsNonPendingEntries(t *testing.T) {
	e := Entry{Status: StatusMatched, OriginalWorker: "worker-a"}
	if CanTransitionFromPending(e, "worker-b") {
		t.Fatalf("expected a non-pending entry to reject a new claim")
	}
}
