package memory

import (
	"context"
	"sort"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/searchjob"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/workblock"
)

func (s *Store) CreateSearchJobWithBlocks(_ context.Context, job searchjob.Job) (searchjob.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.ID = s.nextJobID
	s.nextJobID++
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	job.Params = cloneMap(job.Params)
	s.jobs[job.ID] = job

	blockCount := job.BlockCount()
	for i := int64(0); i < blockCount; i++ {
		start := job.RangeStart + i*job.BlockSize
		end := start + job.BlockSize
		if end > job.RangeEnd {
			end = job.RangeEnd
		}
		id := s.nextBlockID
		s.nextBlockID++
		s.blocks[id] = workblock.Block{
			ID:          id,
			SearchJobID: job.ID,
			BlockStart:  start,
			BlockEnd:    end,
			Status:      workblock.StatusAvailable,
		}
	}
	return job, nil
}

func (s *Store) GetSearchJob(_ context.Context, id int64) (searchjob.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return searchjob.Job{}, apperr.NotFoundf("search job %d not found", id)
	}
	return job, nil
}

func (s *Store) ListRunningJobs(_ context.Context) ([]searchjob.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var jobs []searchjob.Job
	for _, j := range s.jobs {
		if j.Status == searchjob.StatusRunning {
			jobs = append(jobs, j)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

func (s *Store) UpdateJobStatus(_ context.Context, id int64, status searchjob.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return apperr.NotFoundf("search job %d not found", id)
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return nil
}

func (s *Store) ClaimBlock(_ context.Context, workerID string, volunteerID *string, caps searchjob.Capabilities) (*workblock.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id := range s.blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		b := s.blocks[id]
		if b.Status != workblock.StatusAvailable {
			continue
		}
		job, ok := s.jobs[b.SearchJobID]
		if !ok || job.Status != searchjob.StatusRunning || !searchjob.Eligible(job.Params, caps) {
			continue
		}

		now := time.Now().UTC()
		b.Status = workblock.StatusClaimed
		b.ClaimedBy = &workerID
		b.VolunteerID = volunteerID
		b.ClaimedAt = &now
		s.blocks[id] = b

		return &workblock.Assignment{
			BlockID:     b.ID,
			SearchJobID: b.SearchJobID,
			SearchType:  job.SearchType,
			Params:      job.Params,
			BlockStart:  b.BlockStart,
			BlockEnd:    b.BlockEnd,
			Checkpoint:  b.BlockCheckpoint,
		}, nil
	}
	return nil, nil
}

func (s *Store) BatchClaimBlocks(_ context.Context, workerID string, jobID int64, caps searchjob.Capabilities, n int) ([]workblock.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok || job.Status != searchjob.StatusRunning || !searchjob.Eligible(job.Params, caps) {
		return nil, nil
	}

	var ids []int64
	for id, b := range s.blocks {
		if b.SearchJobID == jobID && b.Status == workblock.StatusAvailable {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > n {
		ids = ids[:n]
	}

	var assignments []workblock.Assignment
	now := time.Now().UTC()
	for _, id := range ids {
		b := s.blocks[id]
		b.Status = workblock.StatusClaimed
		b.ClaimedBy = &workerID
		b.ClaimedAt = &now
		s.blocks[id] = b
		assignments = append(assignments, workblock.Assignment{
			BlockID:     b.ID,
			SearchJobID: jobID,
			SearchType:  job.SearchType,
			Params:      job.Params,
			BlockStart:  b.BlockStart,
			BlockEnd:    b.BlockEnd,
			Checkpoint:  b.BlockCheckpoint,
		})
	}
	return assignments, nil
}

func (s *Store) SubmitResult(_ context.Context, blockID int64, workerID string, tested, found int64, primes []prime.Prime) (workblock.Block, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[blockID]
	if !ok {
		return workblock.Block{}, 0, apperr.NotFoundf("block %d not found", blockID)
	}
	if b.ClaimedBy == nil || *b.ClaimedBy != workerID {
		return workblock.Block{}, 0, apperr.NotOwnedf("block %d not claimed by %s", blockID, workerID)
	}

	var elapsed time.Duration
	if b.ClaimedAt != nil {
		elapsed = time.Since(*b.ClaimedAt)
	}

	now := time.Now().UTC()
	b.Status = workblock.StatusCompleted
	b.Tested = tested
	b.Found = found
	b.CompletedAt = &now
	s.blocks[blockID] = b

	job := s.jobs[b.SearchJobID]
	job.TotalTested += tested
	job.TotalFound += found
	job.UpdatedAt = now
	s.jobs[b.SearchJobID] = job

	for _, p := range primes {
		s.insertPrimeLocked(p)
	}

	return b, elapsed, nil
}

func (s *Store) insertPrimeLocked(p prime.Prime) (prime.Prime, bool) {
	key := p.Key()
	if id, exists := s.primeByKey[key]; exists {
		return s.primes[id], false
	}
	p.ID = s.nextPrimeID
	s.nextPrimeID++
	p.FoundAt = time.Now().UTC()
	s.primes[p.ID] = p
	s.primeByKey[key] = p.ID
	return p, true
}

func (s *Store) UpdateBlockProgress(_ context.Context, blockID int64, tested, found int64, checkpoint map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return apperr.NotFoundf("block %d not found", blockID)
	}
	b.Tested = tested
	b.Found = found
	b.BlockCheckpoint = cloneMap(checkpoint)
	s.blocks[blockID] = b
	return nil
}

func (s *Store) GetBlock(_ context.Context, blockID int64) (workblock.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return workblock.Block{}, apperr.NotFoundf("block %d not found", blockID)
	}
	return b, nil
}

func (s *Store) ReclaimStale(_ context.Context, internalTimeout, operatorTimeout time.Duration, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, b := range s.blocks {
		if b.Status != workblock.StatusClaimed || b.ClaimedAt == nil {
			continue
		}
		timeout := internalTimeout
		if b.VolunteerID != nil {
			timeout = operatorTimeout
		}
		if b.ClaimedAt.Before(now.Add(-timeout)) {
			b.Status = workblock.StatusAvailable
			b.ClaimedBy = nil
			b.VolunteerID = nil
			b.ClaimedAt = nil
			s.blocks[id] = b
			count++
		}
	}
	return count, nil
}

func (s *Store) ListCompletedUnverifiedOperatorBlocks(_ context.Context, limit int) ([]workblock.Block, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blocks []workblock.Block
	for _, b := range s.blocks {
		if b.Status == workblock.StatusCompleted && !b.Verified && b.VolunteerID != nil {
			blocks = append(blocks, b)
		}
	}
	sort.Slice(blocks, func(i, j int) bool {
		ti, tj := time.Time{}, time.Time{}
		if blocks[i].CompletedAt != nil {
			ti = *blocks[i].CompletedAt
		}
		if blocks[j].CompletedAt != nil {
			tj = *blocks[j].CompletedAt
		}
		return ti.Before(tj)
	})
	if len(blocks) > limit {
		blocks = blocks[:limit]
	}
	return blocks, nil
}

func (s *Store) CountAvailableOrClaimed(_ context.Context, jobID int64) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, b := range s.blocks {
		if b.SearchJobID != jobID {
			continue
		}
		if b.Status == workblock.StatusAvailable || b.Status == workblock.StatusClaimed {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkBlockVerified(_ context.Context, blockID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[blockID]
	if !ok {
		return apperr.NotFoundf("block %d not found", blockID)
	}
	b.Verified = true
	s.blocks[blockID] = b
	return nil
}
