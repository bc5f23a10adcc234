package memory

import (
	"context"
	"sort"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/verification"
)

func (s *Store) HasPendingVerification(_ context.Context, blockID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.verifications {
		if e.OriginalBlockID == blockID && (e.Status == verification.StatusPending || e.Status == verification.StatusClaimed) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) EnqueueVerification(_ context.Context, entry verification.Entry) (verification.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.verifications {
		if e.OriginalBlockID == entry.OriginalBlockID && (e.Status == verification.StatusPending || e.Status == verification.StatusClaimed) {
			return e, nil
		}
	}

	entry.ID = s.nextVerifID
	s.nextVerifID++
	entry.Status = verification.StatusPending
	s.verifications[entry.ID] = entry
	return entry, nil
}

func (s *Store) ClaimVerification(_ context.Context, verifierWorkerID string) (*verification.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id := range s.verifications {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		e := s.verifications[id]
		if !verification.CanTransitionFromPending(e, verifierWorkerID) {
			continue
		}
		e.Status = verification.StatusClaimed
		e.VerificationWorker = &verifierWorkerID
		s.verifications[id] = e
		return &e, nil
	}
	return nil, nil
}

func (s *Store) GetVerification(_ context.Context, id int64) (verification.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.verifications[id]
	if !ok {
		return verification.Entry{}, apperr.NotFoundf("verification %d not found", id)
	}
	return e, nil
}

func (s *Store) SubmitVerification(_ context.Context, id int64, verifierWorkerID string, tested, found int64) (verification.Entry, verification.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.verifications[id]
	if !ok {
		return verification.Entry{}, "", apperr.NotFoundf("verification %d not found", id)
	}
	if e.VerificationWorker == nil || *e.VerificationWorker != verifierWorkerID {
		return verification.Entry{}, "", apperr.NotOwnedf("verification %d not claimed by %s", id, verifierWorkerID)
	}
	if e.Status != verification.StatusClaimed {
		return verification.Entry{}, "", apperr.NotOwnedf("verification %d is not in claimed status", id)
	}

	outcome := verification.Compare(e.OriginalFound, found)
	e.Status = verification.StatusMatched
	if outcome == verification.OutcomeConflict {
		e.Status = verification.StatusConflict
	}
	e.VerificationTested = &tested
	e.VerificationFound = &found
	now := time.Now().UTC()
	e.CompletedAt = &now
	s.verifications[id] = e

	return e, outcome, nil
}
