package trust

import (
	"context"
	"testing"
	"time"

	domaintrust "github.com/oddurs/darkreach-coordinator/internal/app/domain/trust"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage/memory"
)

func TestRecordValidAdvancesLevel(t *testing.T) {
	store := memory.New()
	scorer := New(store, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := scorer.RecordValid(ctx, "volunteer-1"); err != nil {
			t.Fatalf("record valid: %v", err)
		}
	}

	rec, err := scorer.GetTrust(ctx, "volunteer-1")
	if err != nil {
		t.Fatalf("get trust: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a persisted record")
	}
	if rec.TrustLevel != domaintrust.LevelProven {
		t.Fatalf("expected LevelProven after 10 consecutive valid, got %v", rec.TrustLevel)
	}
}

func TestRecordInvalidResetsToUntrusted(t *testing.T) {
	store := memory.New()
	scorer := New(store, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := scorer.RecordValid(ctx, "volunteer-2"); err != nil {
			t.Fatalf("record valid: %v", err)
		}
	}
	if err := scorer.RecordInvalid(ctx, "volunteer-2"); err != nil {
		t.Fatalf("record invalid: %v", err)
	}

	rec, err := scorer.GetTrust(ctx, "volunteer-2")
	if err != nil {
		t.Fatalf("get trust: %v", err)
	}
	if rec.TrustLevel != domaintrust.LevelUntrusted {
		t.Fatalf("expected LevelUntrusted after an invalid result, got %v", rec.TrustLevel)
	}
	if rec.ConsecutiveValid != 0 {
		t.Fatalf("expected consecutive_valid reset to 0, got %d", rec.ConsecutiveValid)
	}
}

func TestNodeReliabilityDefaultsToOneWithNoHistory(t *testing.T) {
	store := memory.New()
	scorer := New(store, nil)

	score, err := scorer.NodeReliability(context.Background(), "worker-unknown")
	if err != nil {
		t.Fatalf("node reliability: %v", err)
	}
	if score != 1.0 {
		t.Fatalf("expected 1.0 reliability with no history, got %f", score)
	}
}

func TestEffectiveTrustCapsOnLowReliability(t *testing.T) {
	store := memory.New()
	scorer := New(store, nil)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := scorer.RecordValid(ctx, "volunteer-3"); err != nil {
			t.Fatalf("record valid: %v", err)
		}
	}
	for i := 0; i < 10; i++ {
		valid := i < 5
		if err := store.RecordBlockResult(ctx, "worker-3", int64(i), valid, time.Now().UTC()); err != nil {
			t.Fatalf("record block result: %v", err)
		}
	}

	level, err := scorer.EffectiveTrust(ctx, "volunteer-3", "worker-3")
	if err != nil {
		t.Fatalf("effective trust: %v", err)
	}
	if level != domaintrust.LevelNew {
		t.Fatalf("expected 50%% reliability to cap a LevelTrusted operator at LevelNew, got %v", level)
	}
}

func TestEffectiveTrustUnaffectedByHighReliability(t *testing.T) {
	store := memory.New()
	scorer := New(store, nil)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		if err := scorer.RecordValid(ctx, "volunteer-4"); err != nil {
			t.Fatalf("record valid: %v", err)
		}
	}
	for i := 0; i < 10; i++ {
		if err := store.RecordBlockResult(ctx, "worker-4", int64(i), true, time.Now().UTC()); err != nil {
			t.Fatalf("record block result: %v", err)
		}
	}

	level, err := scorer.EffectiveTrust(ctx, "volunteer-4", "worker-4")
	if err != nil {
		t.Fatalf("effective trust: %v", err)
	}
	if level != domaintrust.LevelTrusted {
		t.Fatalf("expected full reliability to leave LevelTrusted uncapped, got %v", level)
	}
}
