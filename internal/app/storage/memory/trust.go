package memory

import (
	"context"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/node"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/trust"
)

func (s *Store) GetTrust(_ context.Context, volunteerID string) (*trust.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.trust[volunteerID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) UpsertTrust(_ context.Context, rec trust.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trust[rec.VolunteerID] = rec
	return nil
}

func (s *Store) RecordBlockResult(_ context.Context, workerID string, blockID int64, valid bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockResults = append(s.blockResults, blockResult{workerID: workerID, blockID: blockID, valid: valid, at: at})
	return nil
}

func (s *Store) NodeReliability(_ context.Context, workerID string, since time.Time) (node.Reliability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel := node.Reliability{WorkerID: workerID}
	for _, r := range s.blockResults {
		if r.workerID != workerID || r.at.Before(since) {
			continue
		}
		rel.TotalBlocks++
		if r.valid {
			rel.ValidBlocks++
		}
	}
	return rel, nil
}
