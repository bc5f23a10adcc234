package memory

import (
	"context"
	"testing"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/operator"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
)

func TestCreateOperatorRejectsDuplicateID(t *testing.T) {
	store := New()
	ctx := context.Background()

	op, err := store.CreateOperator(ctx, operator.Operator{ID: "op-1", Username: "dave"})
	if err != nil {
		t.Fatalf("create operator: %v", err)
	}

	_, err = store.CreateOperator(ctx, operator.Operator{ID: op.ID, Username: "dave2"})
	if apperr.CodeOf(err) != apperr.Conflict {
		t.Fatalf("expected a conflict for a reused operator id, got %v", err)
	}
}

func TestGetOperatorByUsernameNotFound(t *testing.T) {
	store := New()
	_, err := store.GetOperatorByUsername(context.Background(), "ghost")
	if apperr.CodeOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestInsertPrimeIfAbsentDeduplicatesOnFormAndExpression(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, inserted, err := store.InsertPrimeIfAbsent(ctx, prime.Prime{Form: "factorial", Expression: "10!+1", Digits: 8})
	if err != nil {
		t.Fatalf("insert prime: %v", err)
	}
	if !inserted {
		t.Fatalf("expected the first insert to report inserted=true")
	}

	second, inserted, err := store.InsertPrimeIfAbsent(ctx, prime.Prime{Form: "factorial", Expression: "10!+1", Digits: 8})
	if err != nil {
		t.Fatalf("insert duplicate prime: %v", err)
	}
	if inserted {
		t.Fatalf("expected a duplicate (form, expression) to report inserted=false")
	}
	if second.ID != first.ID {
		t.Fatalf("expected the duplicate insert to return the existing record, got a new id %d", second.ID)
	}
}

func TestListPrimesSortsAndPaginates(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, _, err := store.InsertPrimeIfAbsent(ctx, prime.Prime{Form: "factorial", Expression: "e1", Digits: 5}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := store.InsertPrimeIfAbsent(ctx, prime.Prime{Form: "factorial", Expression: "e2", Digits: 20}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, _, err := store.InsertPrimeIfAbsent(ctx, prime.Prime{Form: "factorial", Expression: "e3", Digits: 10}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	desc, err := store.ListPrimes(ctx, "digits", "desc", 10, 0)
	if err != nil {
		t.Fatalf("list primes: %v", err)
	}
	if len(desc) != 3 || desc[0].Digits != 20 || desc[2].Digits != 5 {
		t.Fatalf("expected descending digit order, got %+v", desc)
	}

	page, err := store.ListPrimes(ctx, "digits", "desc", 1, 1)
	if err != nil {
		t.Fatalf("list primes page: %v", err)
	}
	if len(page) != 1 || page[0].Digits != 10 {
		t.Fatalf("expected the second page to hold the middle value, got %+v", page)
	}
}

func TestListLeaderboardFiltersByTeamAndRanksByCredit(t *testing.T) {
	store := New()
	ctx := context.Background()

	teamA := "team-a"
	if _, err := store.CreateOperator(ctx, operator.Operator{ID: "a1", Username: "a1", Team: &teamA, Credit: 10}); err != nil {
		t.Fatalf("create operator: %v", err)
	}
	if _, err := store.CreateOperator(ctx, operator.Operator{ID: "a2", Username: "a2", Team: &teamA, Credit: 50}); err != nil {
		t.Fatalf("create operator: %v", err)
	}
	if _, err := store.CreateOperator(ctx, operator.Operator{ID: "b1", Username: "b1", Credit: 100}); err != nil {
		t.Fatalf("create operator: %v", err)
	}

	entries, err := store.ListLeaderboard(ctx, teamA, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected the team filter to exclude b1, got %d entries", len(entries))
	}
	if entries[0].Username != "a2" || entries[0].Rank != 1 {
		t.Fatalf("expected a2 (higher credit) to rank first, got %+v", entries[0])
	}
}

func TestPruneStaleNodesRemovesOnlyOldHeartbeats(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.UpsertNode(ctx, operator.Node{WorkerID: "stale"}); err != nil {
		t.Fatalf("upsert node: %v", err)
	}
	if err := store.TouchHeartbeat(ctx, "stale", time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("touch heartbeat: %v", err)
	}
	if _, err := store.UpsertNode(ctx, operator.Node{WorkerID: "fresh"}); err != nil {
		t.Fatalf("upsert node: %v", err)
	}

	pruned, err := store.PruneStaleNodes(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("prune stale nodes: %v", err)
	}
	if pruned != 1 {
		t.Fatalf("expected exactly 1 stale node pruned, got %d", pruned)
	}
	if _, err := store.GetNode(ctx, "fresh"); err != nil {
		t.Fatalf("expected the freshly-heartbeated node to survive: %v", err)
	}
	if _, err := store.GetNode(ctx, "stale"); apperr.CodeOf(err) != apperr.NotFound {
		t.Fatalf("expected the stale node to be gone, got %v", err)
	}
}
