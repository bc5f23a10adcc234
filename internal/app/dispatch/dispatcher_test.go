package dispatch

import (
	"context"
	"testing"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/searchjob"
	"github.com/oddurs/darkreach-coordinator/internal/app/eventbus"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage/memory"
)

func newDispatcher() (*Dispatcher, *memory.Store) {
	store := memory.New()
	return New(store, store, eventbus.New(nil), nil), store
}

func TestRegisterOperatorRejectsDuplicateUsername(t *testing.T) {
	d, _ := newDispatcher()
	ctx := context.Background()

	if _, err := d.RegisterOperator(ctx, "alice", "alice@example.com"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := d.RegisterOperator(ctx, "alice", "alice2@example.com")
	if apperr.CodeOf(err) != apperr.Conflict {
		t.Fatalf("expected Conflict for duplicate username, got %v", err)
	}
}

func TestAuthenticateOperatorRoundTrip(t *testing.T) {
	d, _ := newDispatcher()
	ctx := context.Background()

	reg, err := d.RegisterOperator(ctx, "bob", "bob@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	op, err := d.AuthenticateOperator(ctx, reg.APIKey)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if op.Username != "bob" {
		t.Fatalf("expected username bob, got %s", op.Username)
	}
}

func TestRotateAPIKeyInvalidatesPrior(t *testing.T) {
	d, _ := newDispatcher()
	ctx := context.Background()

	reg, err := d.RegisterOperator(ctx, "carol", "carol@example.com")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	newKey, err := d.RotateAPIKey(ctx, reg.Operator.ID)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	if _, err := d.AuthenticateOperator(ctx, reg.APIKey); apperr.CodeOf(err) != apperr.NotFound {
		t.Fatalf("expected the prior api_key to be invalidated, got %v", err)
	}
	if _, err := d.AuthenticateOperator(ctx, newKey); err != nil {
		t.Fatalf("expected the rotated api_key to authenticate, got %v", err)
	}
}

func TestClaimWorkReturnsNilOnNoWork(t *testing.T) {
	d, _ := newDispatcher()
	assignment, err := d.ClaimWork(context.Background(), "worker-1", nil, searchjob.Capabilities{})
	if err != nil {
		t.Fatalf("claim work: %v", err)
	}
	if assignment != nil {
		t.Fatalf("expected nil assignment with no jobs, got %+v", assignment)
	}
}

func TestClaimWorkRespectsCapabilityRequirements(t *testing.T) {
	d, store := newDispatcher()
	ctx := context.Background()

	job, err := store.CreateSearchJobWithBlocks(ctx, searchjob.Job{
		SearchType: "factorial",
		Params:     map[string]any{searchjob.ReqRequiresGPU: true},
		Status:     searchjob.StatusRunning,
		RangeStart: 0,
		RangeEnd:   100,
		BlockSize:  50,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	if a, err := d.ClaimWork(ctx, "worker-no-gpu", nil, searchjob.Capabilities{}); err != nil || a != nil {
		t.Fatalf("expected no eligible block without GPU, got %+v, err %v", a, err)
	}

	a, err := d.ClaimWork(ctx, "worker-gpu", nil, searchjob.Capabilities{HasGPU: true})
	if err != nil {
		t.Fatalf("claim work: %v", err)
	}
	if a == nil {
		t.Fatalf("expected an eligible block for a GPU-equipped caller")
	}
	if a.SearchJobID != job.ID {
		t.Fatalf("expected assignment from job %d, got %d", job.ID, a.SearchJobID)
	}
}

func TestSubmitResultEmitsPrimeFound(t *testing.T) {
	d, store := newDispatcher()
	ctx := context.Background()

	job, err := store.CreateSearchJobWithBlocks(ctx, searchjob.Job{
		SearchType: "factorial",
		Status:     searchjob.StatusRunning,
		RangeStart: 0,
		RangeEnd:   100,
		BlockSize:  100,
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}

	assignment, err := d.ClaimWork(ctx, "worker-1", nil, searchjob.Capabilities{})
	if err != nil || assignment == nil {
		t.Fatalf("claim work: assignment=%+v err=%v", assignment, err)
	}

	outcome, err := d.SubmitResult(ctx, assignment.BlockID, "worker-1", 100, 1, []prime.Prime{
		{Form: "factorial", Expression: "100!+1", Digits: 158, ProofMethod: "trial"},
	})
	if err != nil {
		t.Fatalf("submit result: %v", err)
	}
	if len(outcome.NewPrimes) != 1 {
		t.Fatalf("expected 1 new prime, got %d", len(outcome.NewPrimes))
	}

	records := eventRecords(d)
	if len(records) == 0 {
		t.Fatalf("expected a prime_found event on the bus")
	}
	_ = job
}

func eventRecords(d *Dispatcher) []string {
	var out []string
	for _, r := range d.bus.RecentEventsSince(0, 0) {
		out = append(out, r.Message)
	}
	return out
}
