package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/node"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/trust"
)

func (s *Store) GetTrust(ctx context.Context, volunteerID string) (*trust.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT volunteer_id, consecutive_valid, total_valid, total_invalid, trust_level
		FROM operator_trust WHERE volunteer_id = $1
	`, volunteerID)

	var rec trust.Record
	var level int
	if err := row.Scan(&rec.VolunteerID, &rec.ConsecutiveValid, &rec.TotalValid, &rec.TotalInvalid, &level); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.TrustLevel = trust.Level(level)
	return &rec, nil
}

func (s *Store) UpsertTrust(ctx context.Context, rec trust.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operator_trust (volunteer_id, consecutive_valid, total_valid, total_invalid, trust_level)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (volunteer_id) DO UPDATE SET
			consecutive_valid = EXCLUDED.consecutive_valid,
			total_valid = EXCLUDED.total_valid,
			total_invalid = EXCLUDED.total_invalid,
			trust_level = EXCLUDED.trust_level
	`, rec.VolunteerID, rec.ConsecutiveValid, rec.TotalValid, rec.TotalInvalid, int(rec.TrustLevel))
	return err
}

func (s *Store) RecordBlockResult(ctx context.Context, workerID string, blockID int64, valid bool, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_block_results (worker_id, block_id, valid, recorded_at)
		VALUES ($1, $2, $3, $4)
	`, workerID, blockID, valid, at)
	return err
}

func (s *Store) NodeReliability(ctx context.Context, workerID string, since time.Time) (node.Reliability, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT count(*), count(*) FILTER (WHERE valid)
		FROM node_block_results
		WHERE worker_id = $1 AND recorded_at >= $2
	`, workerID, since)

	rel := node.Reliability{WorkerID: workerID}
	if err := row.Scan(&rel.TotalBlocks, &rel.ValidBlocks); err != nil {
		return node.Reliability{}, err
	}
	return rel, nil
}
