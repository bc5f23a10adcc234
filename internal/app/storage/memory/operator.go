package memory

import (
	"context"
	"sort"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/operator"
)

func (s *Store) CreateOperator(_ context.Context, op operator.Operator) (operator.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if op.ID == "" {
		op.ID = nextUUID(int64(len(s.operators) + 1))
	}
	if _, exists := s.operators[op.ID]; exists {
		return operator.Operator{}, apperr.Conflictf("operator %s already exists", op.ID)
	}
	op.JoinedAt = time.Now().UTC()
	s.operators[op.ID] = op
	return op, nil
}

func (s *Store) GetOperatorByID(_ context.Context, id string) (operator.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.operators[id]
	if !ok {
		return operator.Operator{}, apperr.NotFoundf("operator %s not found", id)
	}
	return op, nil
}

func (s *Store) GetOperatorByAPIKeyHash(_ context.Context, apiKeyHash string) (operator.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, op := range s.operators {
		if op.APIKeyHash == apiKeyHash {
			return op, nil
		}
	}
	return operator.Operator{}, apperr.NotFoundf("operator with given api key not found")
}

func (s *Store) GetOperatorByUsername(_ context.Context, username string) (operator.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, op := range s.operators {
		if op.Username == username {
			return op, nil
		}
	}
	return operator.Operator{}, apperr.NotFoundf("operator %q not found", username)
}

func (s *Store) UpdateOperatorAPIKeyHash(_ context.Context, id, apiKeyHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[id]
	if !ok {
		return apperr.NotFoundf("operator %s not found", id)
	}
	op.APIKeyHash = apiKeyHash
	s.operators[id] = op
	return nil
}

func (s *Store) TouchLastSeen(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[id]
	if !ok {
		return apperr.NotFoundf("operator %s not found", id)
	}
	seen := at
	op.LastSeen = &seen
	s.operators[id] = op
	return nil
}

func (s *Store) IncrementCreditAndPrimes(_ context.Context, id string, creditDelta float64, primesDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op, ok := s.operators[id]
	if !ok {
		return apperr.NotFoundf("operator %s not found", id)
	}
	op.Credit += creditDelta
	op.PrimesFound += primesDelta
	s.operators[id] = op
	return nil
}

func (s *Store) ListLeaderboard(_ context.Context, team string, limit int) ([]operator.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ops []operator.Operator
	for _, op := range s.operators {
		if team != "" && (op.Team == nil || *op.Team != team) {
			continue
		}
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Credit > ops[j].Credit })
	if len(ops) > limit {
		ops = ops[:limit]
	}

	entries := make([]operator.LeaderboardEntry, 0, len(ops))
	for i, op := range ops {
		workers := 0
		for _, n := range s.nodes {
			if n.VolunteerID == op.ID {
				workers++
			}
		}
		entries = append(entries, operator.LeaderboardEntry{
			Rank: i + 1, Username: op.Username, Team: op.Team,
			Credit: op.Credit, PrimesFound: op.PrimesFound, WorkerCount: workers,
		})
	}
	return entries, nil
}

func (s *Store) GetStats(_ context.Context, id string) (operator.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.operators[id]
	if !ok {
		return operator.Stats{}, apperr.NotFoundf("operator %s not found", id)
	}

	level := 1
	if rec, ok := s.trust[id]; ok {
		level = int(rec.TrustLevel)
	}

	var ranked []operator.Operator
	for _, o := range s.operators {
		ranked = append(ranked, o)
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Credit > ranked[j].Credit })
	var rank *int
	for i, o := range ranked {
		if o.ID == id {
			r := i + 1
			rank = &r
			break
		}
	}

	return operator.Stats{Username: op.Username, Credit: op.Credit, PrimesFound: op.PrimesFound, TrustLevel: level, Rank: rank}, nil
}

func (s *Store) UpsertNode(_ context.Context, n operator.Node) (operator.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.nodes[n.WorkerID]; ok {
		n.RegisteredAt = existing.RegisteredAt
		n.PendingCommand = existing.PendingCommand
	} else {
		n.RegisteredAt = now
	}
	n.LastHeartbeat = now
	s.nodes[n.WorkerID] = n
	return n, nil
}

func (s *Store) GetNode(_ context.Context, workerID string) (operator.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[workerID]
	if !ok {
		return operator.Node{}, apperr.NotFoundf("node %s not found", workerID)
	}
	return n, nil
}

func (s *Store) TouchHeartbeat(_ context.Context, workerID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[workerID]
	if !ok {
		return apperr.NotFoundf("node %s not found", workerID)
	}
	n.LastHeartbeat = at
	s.nodes[workerID] = n
	return nil
}

func (s *Store) PopPendingCommand(_ context.Context, workerID string) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[workerID]
	if !ok || n.PendingCommand == nil {
		return nil, nil
	}
	cmd := n.PendingCommand
	n.PendingCommand = nil
	s.nodes[workerID] = n
	return cmd, nil
}

func (s *Store) PruneStaleNodes(_ context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, n := range s.nodes {
		if n.LastHeartbeat.Before(olderThan) {
			delete(s.nodes, id)
			count++
		}
	}
	return count, nil
}
