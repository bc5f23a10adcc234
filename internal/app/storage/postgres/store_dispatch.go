package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/searchjob"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/workblock"
)

// claimBatchSize bounds how many available blocks a single claim attempt
// locks and inspects in Go before giving up for lack of an eligible one.
// Capability predicates live in searchjob.Eligible over an opaque params
// bag, so evaluating them in SQL would mean building dynamic JSONB
// predicates per requirement key; filtering a locked candidate batch in Go
// keeps that logic in one place (searchjob.Eligible) instead of duplicating
// it as SQL.
const claimBatchSize = 25

func (s *Store) CreateSearchJobWithBlocks(ctx context.Context, job searchjob.Job) (searchjob.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return searchjob.Job{}, err
	}
	defer func() { _ = tx.Rollback() }()

	paramsJSON, err := json.Marshal(job.Params)
	if err != nil {
		return searchjob.Job{}, fmt.Errorf("marshal params: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO search_jobs (search_type, params, status, range_start, range_end, block_size)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, job.SearchType, paramsJSON, string(job.Status), job.RangeStart, job.RangeEnd, job.BlockSize)
	if err := row.Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return searchjob.Job{}, fmt.Errorf("insert search job: %w", err)
	}

	blockCount := job.BlockCount()
	for i := int64(0); i < blockCount; i++ {
		start := job.RangeStart + i*job.BlockSize
		end := start + job.BlockSize
		if end > job.RangeEnd {
			end = job.RangeEnd
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO work_blocks (search_job_id, block_start, block_end, status)
			VALUES ($1, $2, $3, $4)
		`, job.ID, start, end, string(workblock.StatusAvailable)); err != nil {
			return searchjob.Job{}, fmt.Errorf("insert work block %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return searchjob.Job{}, err
	}
	return job, nil
}

func (s *Store) GetSearchJob(ctx context.Context, id int64) (searchjob.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, search_type, params, status, range_start, range_end, block_size,
		       total_tested, total_found, created_at, updated_at
		FROM search_jobs WHERE id = $1
	`, id)
	return scanSearchJob(row)
}

func (s *Store) ListRunningJobs(ctx context.Context) ([]searchjob.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, search_type, params, status, range_start, range_end, block_size,
		       total_tested, total_found, created_at, updated_at
		FROM search_jobs WHERE status = $1 ORDER BY id
	`, string(searchjob.StatusRunning))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []searchjob.Job
	for rows.Next() {
		job, err := scanSearchJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (s *Store) UpdateJobStatus(ctx context.Context, id int64, status searchjob.Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE search_jobs SET status = $1, updated_at = now() WHERE id = $2
	`, string(status), id)
	return err
}

func scanSearchJob(row rowScanner) (searchjob.Job, error) {
	var job searchjob.Job
	var paramsJSON []byte
	var status string
	if err := row.Scan(&job.ID, &job.SearchType, &paramsJSON, &status, &job.RangeStart, &job.RangeEnd,
		&job.BlockSize, &job.TotalTested, &job.TotalFound, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return searchjob.Job{}, err
	}
	job.Status = searchjob.Status(status)
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &job.Params); err != nil {
			return searchjob.Job{}, fmt.Errorf("unmarshal params: %w", err)
		}
	}
	return job, nil
}

// ClaimBlock locks a batch of available blocks across all running jobs with
// FOR UPDATE SKIP LOCKED, picks the first one whose owning job's params
// satisfy caps, and claims it. Returns (nil, nil) when no eligible block is
// currently available.
func (s *Store) ClaimBlock(ctx context.Context, workerID string, volunteerID *string, caps searchjob.Capabilities) (*workblock.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT work_blocks.id, work_blocks.search_job_id, work_blocks.block_start, work_blocks.block_end, work_blocks.block_checkpoint
		FROM work_blocks
		JOIN search_jobs ON search_jobs.id = work_blocks.search_job_id
		WHERE work_blocks.status = $1 AND search_jobs.status = $2
		ORDER BY work_blocks.id
		LIMIT $3
		FOR UPDATE OF work_blocks SKIP LOCKED
	`, string(workblock.StatusAvailable), string(searchjob.StatusRunning), claimBatchSize)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		id         int64
		jobID      int64
		start, end int64
		checkpoint map[string]any
	}
	var candidates []candidate
	jobParams := map[int64]struct {
		searchType string
		params     map[string]any
	}{}
	for rows.Next() {
		var c candidate
		var checkpointJSON []byte
		if err := rows.Scan(&c.id, &c.jobID, &c.start, &c.end, &checkpointJSON); err != nil {
			rows.Close()
			return nil, err
		}
		if len(checkpointJSON) > 0 {
			_ = json.Unmarshal(checkpointJSON, &c.checkpoint)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, c := range candidates {
		jp, ok := jobParams[c.jobID]
		if !ok {
			var paramsJSON []byte
			row := tx.QueryRowContext(ctx, `SELECT search_type, params FROM search_jobs WHERE id = $1`, c.jobID)
			if err := row.Scan(&jp.searchType, &paramsJSON); err != nil {
				return nil, err
			}
			if len(paramsJSON) > 0 {
				_ = json.Unmarshal(paramsJSON, &jp.params)
			}
			jobParams[c.jobID] = jp
		}
		if !searchjob.Eligible(jp.params, caps) {
			continue
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE work_blocks
			SET status = $1, claimed_by = $2, volunteer_id = $3, claimed_at = now()
			WHERE id = $4
		`, string(workblock.StatusClaimed), workerID, nullString(volunteerID), c.id); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &workblock.Assignment{
			BlockID:     c.id,
			SearchJobID: c.jobID,
			SearchType:  jp.searchType,
			Params:      jp.params,
			BlockStart:  c.start,
			BlockEnd:    c.end,
			Checkpoint:  c.checkpoint,
		}, nil
	}

	return nil, tx.Commit()
}

// BatchClaimBlocks claims up to n available blocks from a single job in one
// transaction, for workers that prefetch a run of work at once.
func (s *Store) BatchClaimBlocks(ctx context.Context, workerID string, jobID int64, caps searchjob.Capabilities, n int) ([]workblock.Assignment, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var searchType string
	var paramsJSON []byte
	var jobStatus string
	row := tx.QueryRowContext(ctx, `SELECT search_type, params, status FROM search_jobs WHERE id = $1`, jobID)
	if err := row.Scan(&searchType, &paramsJSON, &jobStatus); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tx.Commit()
		}
		return nil, err
	}
	if jobStatus != string(searchjob.StatusRunning) {
		return nil, tx.Commit()
	}
	var params map[string]any
	if len(paramsJSON) > 0 {
		_ = json.Unmarshal(paramsJSON, &params)
	}
	if !searchjob.Eligible(params, caps) {
		return nil, tx.Commit()
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, block_start, block_end, block_checkpoint
		FROM work_blocks
		WHERE search_job_id = $1 AND status = $2
		ORDER BY id
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, jobID, string(workblock.StatusAvailable), n)
	if err != nil {
		return nil, err
	}

	var ids []int64
	var assignments []workblock.Assignment
	for rows.Next() {
		var id, start, end int64
		var checkpointJSON []byte
		if err := rows.Scan(&id, &start, &end, &checkpointJSON); err != nil {
			rows.Close()
			return nil, err
		}
		var checkpoint map[string]any
		if len(checkpointJSON) > 0 {
			_ = json.Unmarshal(checkpointJSON, &checkpoint)
		}
		ids = append(ids, id)
		assignments = append(assignments, workblock.Assignment{
			BlockID:     id,
			SearchJobID: jobID,
			SearchType:  searchType,
			Params:      params,
			BlockStart:  start,
			BlockEnd:    end,
			Checkpoint:  checkpoint,
		})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE work_blocks
		SET status = $1, claimed_by = $2, claimed_at = now()
		WHERE id = ANY($3)
	`, string(workblock.StatusClaimed), workerID, pq.Array(ids)); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return assignments, nil
}

func (s *Store) SubmitResult(ctx context.Context, blockID int64, workerID string, tested, found int64, primes []prime.Prime) (workblock.Block, time.Duration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workblock.Block{}, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, search_job_id, block_start, block_end, status, claimed_by, volunteer_id,
		       claimed_at, completed_at, tested, found, block_checkpoint, min_quorum, verified
		FROM work_blocks WHERE id = $1 FOR UPDATE
	`, blockID)
	block, err := scanBlock(row)
	if err != nil {
		return workblock.Block{}, 0, err
	}
	if block.ClaimedBy == nil || *block.ClaimedBy != workerID {
		return workblock.Block{}, 0, fmt.Errorf("block %d not claimed by %s", blockID, workerID)
	}

	var elapsed time.Duration
	if block.ClaimedAt != nil {
		elapsed = time.Since(*block.ClaimedAt)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE work_blocks
		SET status = $1, tested = $2, found = $3, completed_at = now()
		WHERE id = $4
	`, string(workblock.StatusCompleted), tested, found, blockID); err != nil {
		return workblock.Block{}, 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE search_jobs SET total_tested = total_tested + $1, total_found = total_found + $2, updated_at = now()
		WHERE id = $3
	`, tested, found, block.SearchJobID); err != nil {
		return workblock.Block{}, 0, err
	}

	for _, p := range primes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO primes (form, expression, digits, proof_method, certificate)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (form, expression) DO NOTHING
		`, p.Form, p.Expression, p.Digits, p.ProofMethod, nullString(p.Certificate)); err != nil {
			return workblock.Block{}, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return workblock.Block{}, 0, err
	}

	block.Status = workblock.StatusCompleted
	block.Tested = tested
	block.Found = found
	return block, elapsed, nil
}

func (s *Store) UpdateBlockProgress(ctx context.Context, blockID int64, tested, found int64, checkpoint map[string]any) error {
	checkpointJSON, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE work_blocks SET tested = $1, found = $2, block_checkpoint = $3 WHERE id = $4
	`, tested, found, checkpointJSON, blockID)
	return err
}

func (s *Store) GetBlock(ctx context.Context, blockID int64) (workblock.Block, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, search_job_id, block_start, block_end, status, claimed_by, volunteer_id,
		       claimed_at, completed_at, tested, found, block_checkpoint, min_quorum, verified
		FROM work_blocks WHERE id = $1
	`, blockID)
	return scanBlock(row)
}

func (s *Store) ReclaimStale(ctx context.Context, internalTimeout, operatorTimeout time.Duration, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE work_blocks
		SET status = $1, claimed_by = NULL, volunteer_id = NULL, claimed_at = NULL
		WHERE status = $2 AND (
			(volunteer_id IS NULL AND claimed_at < $3) OR
			(volunteer_id IS NOT NULL AND claimed_at < $4)
		)
	`, string(workblock.StatusAvailable), string(workblock.StatusClaimed),
		now.Add(-internalTimeout), now.Add(-operatorTimeout))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) ListCompletedUnverifiedOperatorBlocks(ctx context.Context, limit int) ([]workblock.Block, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, search_job_id, block_start, block_end, status, claimed_by, volunteer_id,
		       claimed_at, completed_at, tested, found, block_checkpoint, min_quorum, verified
		FROM work_blocks
		WHERE status = $1 AND verified = false AND volunteer_id IS NOT NULL
		ORDER BY completed_at
		LIMIT $2
	`, string(workblock.StatusCompleted), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blocks []workblock.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (s *Store) CountAvailableOrClaimed(ctx context.Context, jobID int64) (int64, error) {
	var count int64
	row := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM work_blocks
		WHERE search_job_id = $1 AND status IN ($2, $3)
	`, jobID, string(workblock.StatusAvailable), string(workblock.StatusClaimed))
	err := row.Scan(&count)
	return count, err
}

func (s *Store) MarkBlockVerified(ctx context.Context, blockID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE work_blocks SET verified = true WHERE id = $1`, blockID)
	return err
}

func scanBlock(row rowScanner) (workblock.Block, error) {
	var b workblock.Block
	var status string
	var claimedBy, volunteerID sql.NullString
	var claimedAt, completedAt sql.NullTime
	var checkpointJSON []byte
	var minQuorum sql.NullInt32
	if err := row.Scan(&b.ID, &b.SearchJobID, &b.BlockStart, &b.BlockEnd, &status, &claimedBy, &volunteerID,
		&claimedAt, &completedAt, &b.Tested, &b.Found, &checkpointJSON, &minQuorum, &b.Verified); err != nil {
		return workblock.Block{}, err
	}
	b.Status = workblock.Status(status)
	b.ClaimedBy = stringPtr(claimedBy)
	b.VolunteerID = stringPtr(volunteerID)
	b.ClaimedAt = timePtr(claimedAt)
	b.CompletedAt = timePtr(completedAt)
	b.MinQuorum = intPtr(minQuorum)
	if len(checkpointJSON) > 0 {
		if err := json.Unmarshal(checkpointJSON, &b.BlockCheckpoint); err != nil {
			return workblock.Block{}, fmt.Errorf("unmarshal checkpoint: %w", err)
		}
	}
	return b, nil
}
