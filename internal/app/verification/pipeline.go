// Package verification implements the adaptive-replication verification
// pipeline (spec.md §4.3): dynamic quorum selection from effective trust,
// independent re-check assignment, conflict resolution, and trust
// advancement/penalty.
package verification

import (
	"context"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
	trustdomain "github.com/oddurs/darkreach-coordinator/internal/app/domain/trust"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/verification"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/workblock"
	"github.com/oddurs/darkreach-coordinator/internal/app/metrics"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
	trustscorer "github.com/oddurs/darkreach-coordinator/internal/app/trust"
	"github.com/oddurs/darkreach-coordinator/pkg/logger"
)

// Pipeline implements spec.md §4.3's public contract.
type Pipeline struct {
	store     storage.VerificationStore
	dispatch  storage.DispatchStore
	scorer    *trustscorer.Scorer
	log       *logger.Logger
}

// New builds a Pipeline.
func New(store storage.VerificationStore, dispatch storage.DispatchStore, scorer *trustscorer.Scorer, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewDefault("verification")
	}
	return &Pipeline{store: store, dispatch: dispatch, scorer: scorer, log: log}
}

// RequiredQuorum is the deterministic table from spec.md §4.3. A "provable
// form" carries a deterministic certificate (prime.IsProvable); all other
// forms are heuristic.
func RequiredQuorum(level trustdomain.Level, searchType string) int {
	switch {
	case level <= trustdomain.LevelUntrusted:
		return 3
	case level == trustdomain.LevelNew:
		return 2
	case level == trustdomain.LevelProven:
		if prime.IsProvable(searchType) {
			return 1
		}
		return 2
	default:
		return 1
	}
}

// HasPendingVerification reports whether blockID already has a pending or
// claimed VerificationEntry, used by the tick to avoid duplicate enqueue.
func (p *Pipeline) HasPendingVerification(ctx context.Context, blockID int64) (bool, error) {
	return p.store.HasPendingVerification(ctx, blockID)
}

// EnqueueIfNeeded implements spec.md §4.3 step 2: computes the required
// quorum for block, and either enqueues an independent re-check (q >= 2) or
// marks the block verified directly (q == 1), recording a valid result for
// the originating operator when one is known.
func (p *Pipeline) EnqueueIfNeeded(ctx context.Context, block workblock.Block, searchType string) error {
	level := trustdomain.LevelNew
	if block.VolunteerID != nil {
		effective, err := p.scorer.EffectiveTrust(ctx, *block.VolunteerID, derefOr(block.ClaimedBy, ""))
		if err != nil {
			return err
		}
		level = effective
	}

	quorum := RequiredQuorum(level, searchType)

	if quorum >= 2 {
		pending, err := p.store.HasPendingVerification(ctx, block.ID)
		if err != nil {
			return err
		}
		if pending {
			return nil
		}
		entry := verification.Entry{
			OriginalBlockID:   block.ID,
			SearchJobID:       block.SearchJobID,
			BlockStart:        block.BlockStart,
			BlockEnd:          block.BlockEnd,
			OriginalTested:    block.Tested,
			OriginalFound:     block.Found,
			OriginalWorker:    derefOr(block.ClaimedBy, ""),
			OriginalVolunteer: block.VolunteerID,
			Status:            verification.StatusPending,
		}
		_, err = p.store.EnqueueVerification(ctx, entry)
		return err
	}

	if err := p.dispatch.MarkBlockVerified(ctx, block.ID); err != nil {
		return err
	}
	if block.VolunteerID != nil {
		return p.scorer.RecordValid(ctx, *block.VolunteerID)
	}
	return nil
}

// ClaimVerification atomically claims the oldest pending entry whose
// original_worker differs from verifierWorkerID. Returns nil, nil when the
// queue has no eligible entry.
func (p *Pipeline) ClaimVerification(ctx context.Context, verifierWorkerID string) (*verification.Entry, error) {
	return p.store.ClaimVerification(ctx, verifierWorkerID)
}

// SubmitOutcome carries the comparison result plus the original volunteer,
// so the transport layer can report which operator's trust changed.
type SubmitOutcome struct {
	Entry             verification.Entry
	Outcome           verification.Outcome
	OriginalVolunteer *string
}

// SubmitVerification compares the submission against the entry's original
// counts. On Matched it logs a valid node-reliability result for both
// workers, advances the original operator's trust, and marks the original
// block verified. On Conflict it logs invalid for the original worker,
// penalizes the original operator's trust, and leaves the block
// unverified — eligible for a further cycle on the next tick.
func (p *Pipeline) SubmitVerification(ctx context.Context, id int64, verifierWorkerID string, tested, found int64) (SubmitOutcome, error) {
	entry, outcome, err := p.store.SubmitVerification(ctx, id, verifierWorkerID, tested, found)
	if err != nil {
		return SubmitOutcome{}, err
	}

	switch outcome {
	case verification.OutcomeMatched:
		metrics.RecordVerificationOutcome("matched")
		if err := p.scorer.RecordNodeResult(ctx, entry.OriginalWorker, entry.OriginalBlockID, true); err != nil {
			return SubmitOutcome{}, err
		}
		if err := p.scorer.RecordNodeResult(ctx, verifierWorkerID, entry.OriginalBlockID, true); err != nil {
			return SubmitOutcome{}, err
		}
		if entry.OriginalVolunteer != nil {
			if err := p.scorer.RecordValid(ctx, *entry.OriginalVolunteer); err != nil {
				return SubmitOutcome{}, err
			}
		}
		if err := p.dispatch.MarkBlockVerified(ctx, entry.OriginalBlockID); err != nil {
			return SubmitOutcome{}, err
		}
	case verification.OutcomeConflict:
		metrics.RecordVerificationOutcome("conflict")
		if err := p.scorer.RecordNodeResult(ctx, entry.OriginalWorker, entry.OriginalBlockID, false); err != nil {
			return SubmitOutcome{}, err
		}
		if entry.OriginalVolunteer != nil {
			if err := p.scorer.RecordInvalid(ctx, *entry.OriginalVolunteer); err != nil {
				return SubmitOutcome{}, err
			}
		}
	}

	return SubmitOutcome{Entry: entry, Outcome: outcome, OriginalVolunteer: entry.OriginalVolunteer}, nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
