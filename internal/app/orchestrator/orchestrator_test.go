package orchestrator

import (
	"context"
	"testing"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/phase"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/project"
	"github.com/oddurs/darkreach-coordinator/internal/app/eventbus"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage/memory"
)

func newOrchestrator() (*Orchestrator, *memory.Store) {
	store := memory.New()
	return New(store, store, store, eventbus.New(nil), nil), store
}

func TestOrchestrateTickActivatesPendingPhase(t *testing.T) {
	orch, store := newOrchestrator()
	ctx := context.Background()

	p, phases, err := store.CreateProjectWithPhases(ctx, project.Project{
		Slug: "twin-sweep", Name: "Twin Sweep", Objective: project.ObjectiveSurvey,
		Form: "factorial", Status: project.StatusActive,
	}, []phase.Phase{
		{Name: "phase-1", PhaseOrder: 0, Status: phase.StatusPending,
			SearchParams: map[string]any{"start": int64(0), "end": int64(200)}, BlockSize: 100,
			CompletionCondition: phase.CompletionAllBlocksDone},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if err := orch.OrchestrateTick(ctx, p, project.FleetSummary{ActiveSearchTypes: map[string]bool{}}); err != nil {
		t.Fatalf("orchestrate tick: %v", err)
	}

	updated, err := store.ListPhases(ctx, p.ID)
	if err != nil {
		t.Fatalf("list phases: %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("expected 1 phase, got %d", len(updated))
	}
	if updated[0].Status != phase.StatusActive {
		t.Fatalf("expected phase-1 to activate, got status %v", updated[0].Status)
	}
	if updated[0].SearchJobID == nil {
		t.Fatalf("expected a search job to be created for the activated phase")
	}
	_ = phases
}

func TestOrchestrateTickWaitsOnUnmetFleetRequirements(t *testing.T) {
	orch, store := newOrchestrator()
	ctx := context.Background()

	minWorkers := 5
	p, _, err := store.CreateProjectWithPhases(ctx, project.Project{
		Slug: "gated", Name: "Gated", Objective: project.ObjectiveSurvey,
		Form: "factorial", Status: project.StatusActive,
		Infrastructure: &project.Infrastructure{MinWorkers: minWorkers},
	}, []phase.Phase{
		{Name: "phase-1", PhaseOrder: 0, Status: phase.StatusPending, SearchParams: map[string]any{}, BlockSize: 100},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	if err := orch.OrchestrateTick(ctx, p, project.FleetSummary{WorkerCount: 1, ActiveSearchTypes: map[string]bool{}}); err != nil {
		t.Fatalf("orchestrate tick: %v", err)
	}

	updated, err := store.ListPhases(ctx, p.ID)
	if err != nil {
		t.Fatalf("list phases: %v", err)
	}
	if updated[0].Status != phase.StatusPending {
		t.Fatalf("expected phase-1 to stay pending under an unmet fleet requirement, got %v", updated[0].Status)
	}
}

func TestAggregateProjectTotalsResolvesBestPrimeForForm(t *testing.T) {
	orch, store := newOrchestrator()
	ctx := context.Background()

	p, _, err := store.CreateProjectWithPhases(ctx, project.Project{
		Slug: "best-prime", Name: "Best Prime", Objective: project.ObjectiveRecord,
		Form: "proth", Status: project.StatusActive,
	}, nil)
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	small, _, err := store.InsertPrimeIfAbsent(ctx, prime.Prime{Form: "proth", Expression: "small", Digits: 10})
	if err != nil {
		t.Fatalf("insert small prime: %v", err)
	}
	big, _, err := store.InsertPrimeIfAbsent(ctx, prime.Prime{Form: "proth", Expression: "big", Digits: 9000})
	if err != nil {
		t.Fatalf("insert big prime: %v", err)
	}
	if _, _, err := store.InsertPrimeIfAbsent(ctx, prime.Prime{Form: "riesel", Expression: "other-form", Digits: 99999}); err != nil {
		t.Fatalf("insert other-form prime: %v", err)
	}

	if err := orch.aggregateProjectTotals(ctx, p.ID); err != nil {
		t.Fatalf("aggregate project totals: %v", err)
	}

	updated, err := store.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if updated.BestPrimeID == nil || *updated.BestPrimeID != big.ID {
		t.Fatalf("expected best_prime_id %d, got %v", big.ID, updated.BestPrimeID)
	}
	if updated.BestDigits != big.Digits {
		t.Fatalf("expected best_digits %d, got %d", big.Digits, updated.BestDigits)
	}
	_ = small
}
