package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/verification"
)

func (s *Store) HasPendingVerification(ctx context.Context, blockID int64) (bool, error) {
	var exists bool
	row := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM verification_entries
			WHERE original_block_id = $1 AND status IN ($2, $3)
		)
	`, blockID, string(verification.StatusPending), string(verification.StatusClaimed))
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) EnqueueVerification(ctx context.Context, entry verification.Entry) (verification.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO verification_entries
			(original_block_id, search_job_id, block_start, block_end, original_tested,
			 original_found, original_worker, original_volunteer, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (original_block_id) WHERE status IN ('pending', 'claimed') DO NOTHING
		RETURNING id
	`, entry.OriginalBlockID, entry.SearchJobID, entry.BlockStart, entry.BlockEnd, entry.OriginalTested,
		entry.OriginalFound, entry.OriginalWorker, nullString(entry.OriginalVolunteer), string(verification.StatusPending))

	if err := row.Scan(&entry.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.getVerificationByBlock(ctx, entry.OriginalBlockID)
		}
		return verification.Entry{}, err
	}
	entry.Status = verification.StatusPending
	return entry, nil
}

func (s *Store) getVerificationByBlock(ctx context.Context, blockID int64) (verification.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_block_id, search_job_id, block_start, block_end, original_tested,
		       original_found, original_worker, original_volunteer, status, verification_worker,
		       verification_tested, verification_found, completed_at
		FROM verification_entries
		WHERE original_block_id = $1 AND status IN ($2, $3)
		ORDER BY id DESC LIMIT 1
	`, blockID, string(verification.StatusPending), string(verification.StatusClaimed))
	return scanVerification(row)
}

// ClaimVerification locks the oldest pending entry whose original worker
// differs from verifierWorkerID (verification.CanTransitionFromPending) and
// marks it claimed.
func (s *Store) ClaimVerification(ctx context.Context, verifierWorkerID string) (*verification.Entry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, original_block_id, search_job_id, block_start, block_end, original_tested,
		       original_found, original_worker, original_volunteer, status, verification_worker,
		       verification_tested, verification_found, completed_at
		FROM verification_entries
		WHERE status = $1 AND original_worker != $2
		ORDER BY id
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, string(verification.StatusPending), verifierWorkerID)

	entry, err := scanVerification(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tx.Commit()
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE verification_entries SET status = $1, verification_worker = $2 WHERE id = $3
	`, string(verification.StatusClaimed), verifierWorkerID, entry.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	entry.Status = verification.StatusClaimed
	entry.VerificationWorker = &verifierWorkerID
	return &entry, nil
}

func (s *Store) GetVerification(ctx context.Context, id int64) (verification.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, original_block_id, search_job_id, block_start, block_end, original_tested,
		       original_found, original_worker, original_volunteer, status, verification_worker,
		       verification_tested, verification_found, completed_at
		FROM verification_entries WHERE id = $1
	`, id)
	return scanVerification(row)
}

func (s *Store) SubmitVerification(ctx context.Context, id int64, verifierWorkerID string, tested, found int64) (verification.Entry, verification.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return verification.Entry{}, "", err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT id, original_block_id, search_job_id, block_start, block_end, original_tested,
		       original_found, original_worker, original_volunteer, status, verification_worker,
		       verification_tested, verification_found, completed_at
		FROM verification_entries WHERE id = $1 FOR UPDATE
	`, id)
	entry, err := scanVerification(row)
	if err != nil {
		return verification.Entry{}, "", err
	}
	if entry.VerificationWorker == nil || *entry.VerificationWorker != verifierWorkerID {
		return verification.Entry{}, "", fmt.Errorf("verification %d not claimed by %s", id, verifierWorkerID)
	}
	if entry.Status != verification.StatusClaimed {
		return verification.Entry{}, "", fmt.Errorf("verification %d is not in claimed status", id)
	}

	outcome := verification.Compare(entry.OriginalFound, found)
	status := verification.StatusMatched
	if outcome == verification.OutcomeConflict {
		status = verification.StatusConflict
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE verification_entries
		SET status = $1, verification_tested = $2, verification_found = $3, completed_at = now()
		WHERE id = $4
	`, string(status), tested, found, id); err != nil {
		return verification.Entry{}, "", err
	}

	if err := tx.Commit(); err != nil {
		return verification.Entry{}, "", err
	}

	entry.Status = status
	entry.VerificationTested = &tested
	entry.VerificationFound = &found
	return entry, outcome, nil
}

func scanVerification(row rowScanner) (verification.Entry, error) {
	var e verification.Entry
	var status string
	var originalVolunteer, verificationWorker sql.NullString
	var verificationTested, verificationFound sql.NullInt64
	var completedAt sql.NullTime
	if err := row.Scan(&e.ID, &e.OriginalBlockID, &e.SearchJobID, &e.BlockStart, &e.BlockEnd, &e.OriginalTested,
		&e.OriginalFound, &e.OriginalWorker, &originalVolunteer, &status, &verificationWorker,
		&verificationTested, &verificationFound, &completedAt); err != nil {
		return verification.Entry{}, err
	}
	e.Status = verification.Status(status)
	e.OriginalVolunteer = stringPtr(originalVolunteer)
	e.VerificationWorker = stringPtr(verificationWorker)
	e.VerificationTested = int64Ptr(verificationTested)
	e.VerificationFound = int64Ptr(verificationFound)
	e.CompletedAt = timePtr(completedAt)
	return e, nil
}
