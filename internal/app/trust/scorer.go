// Package trust implements the Trust & Reliability Scorer (spec.md §4.2):
// per-operator trust advancement/penalty and per-node 30-day reliability,
// combined into the effective trust level consulted by the verification
// pipeline's quorum calculation.
package trust

import (
	"context"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/trust"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
	"github.com/oddurs/darkreach-coordinator/pkg/logger"
)

// reliabilityWindow is the fixed 30-day lookback from spec.md §3.
const reliabilityWindow = 30 * 24 * time.Hour

// Scorer implements spec.md §4.2's public contract.
type Scorer struct {
	store storage.TrustStore
	log   *logger.Logger
}

// New builds a Scorer.
func New(store storage.TrustStore, log *logger.Logger) *Scorer {
	if log == nil {
		log = logger.NewDefault("trust")
	}
	return &Scorer{store: store, log: log}
}

// GetTrust returns the persisted record, or nil if volunteerID has never
// been scored.
func (s *Scorer) GetTrust(ctx context.Context, volunteerID string) (*trust.Record, error) {
	return s.store.GetTrust(ctx, volunteerID)
}

// RecordValid atomically increments consecutive/total valid counters and
// recomputes trust_level as the highest threshold now met.
func (s *Scorer) RecordValid(ctx context.Context, volunteerID string) error {
	rec, err := s.store.GetTrust(ctx, volunteerID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &trust.Record{VolunteerID: volunteerID, TrustLevel: trust.LevelNew}
	}
	rec.ConsecutiveValid++
	rec.TotalValid++
	rec.TrustLevel = trust.LevelFor(rec.ConsecutiveValid, rec.TotalValid)

	return s.store.UpsertTrust(ctx, *rec)
}

// RecordInvalid atomically resets consecutive_valid and trust_level to
// zero and increments total_invalid.
func (s *Scorer) RecordInvalid(ctx context.Context, volunteerID string) error {
	rec, err := s.store.GetTrust(ctx, volunteerID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &trust.Record{VolunteerID: volunteerID}
	}
	rec.ConsecutiveValid = 0
	rec.TotalInvalid++
	rec.TrustLevel = trust.LevelUntrusted

	return s.store.UpsertTrust(ctx, *rec)
}

// RecordNodeResult appends one completed-block outcome to the 30-day
// reliability log for workerID. Called by the verification pipeline for
// both the original and verifying worker on every verification outcome
// (spec.md §4.3), not by RecordValid/RecordInvalid, which track the
// operator-level trust axis rather than the per-node reliability axis.
func (s *Scorer) RecordNodeResult(ctx context.Context, workerID string, blockID int64, valid bool) error {
	return s.store.RecordBlockResult(ctx, workerID, blockID, valid, time.Now().UTC())
}

// NodeReliability reads this worker's completed blocks over the last 30
// days and returns valid/total, or 1.0 with no history.
func (s *Scorer) NodeReliability(ctx context.Context, workerID string) (float64, error) {
	since := time.Now().UTC().Add(-reliabilityWindow)
	rel, err := s.store.NodeReliability(ctx, workerID, since)
	if err != nil {
		return 0, err
	}
	return rel.Score(), nil
}

// EffectiveTrust combines the operator's persisted trust level (LevelNew
// for an operator never before scored, per spec.md §4.2) with the worker's
// node reliability.
func (s *Scorer) EffectiveTrust(ctx context.Context, volunteerID, workerID string) (trust.Level, error) {
	base := trust.LevelNew
	if rec, err := s.store.GetTrust(ctx, volunteerID); err != nil {
		return 0, err
	} else if rec != nil {
		base = rec.TrustLevel
	}

	reliability, err := s.NodeReliability(ctx, workerID)
	if err != nil {
		return 0, err
	}
	return trust.EffectiveTrust(base, reliability), nil
}
