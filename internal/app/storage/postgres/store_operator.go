package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/operator"
)

func (s *Store) CreateOperator(ctx context.Context, op operator.Operator) (operator.Operator, error) {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO operators (id, username, email, api_key_hash, team, credit, primes_found, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING id, joined_at
	`, op.ID, op.Username, op.Email, op.APIKeyHash, nullString(op.Team), op.Credit, op.PrimesFound)
	if err := row.Scan(&op.ID, &op.JoinedAt); err != nil {
		return operator.Operator{}, fmt.Errorf("insert operator: %w", err)
	}
	return op, nil
}

func (s *Store) GetOperatorByID(ctx context.Context, id string) (operator.Operator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, api_key_hash, team, credit, primes_found, joined_at, last_seen
		FROM operators WHERE id = $1
	`, id)
	return scanOperator(row)
}

func (s *Store) GetOperatorByAPIKeyHash(ctx context.Context, apiKeyHash string) (operator.Operator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, api_key_hash, team, credit, primes_found, joined_at, last_seen
		FROM operators WHERE api_key_hash = $1
	`, apiKeyHash)
	return scanOperator(row)
}

func (s *Store) GetOperatorByUsername(ctx context.Context, username string) (operator.Operator, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, api_key_hash, team, credit, primes_found, joined_at, last_seen
		FROM operators WHERE username = $1
	`, username)
	return scanOperator(row)
}

func (s *Store) UpdateOperatorAPIKeyHash(ctx context.Context, id, apiKeyHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE operators SET api_key_hash = $1 WHERE id = $2`, apiKeyHash, id)
	return err
}

func (s *Store) TouchLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE operators SET last_seen = $1 WHERE id = $2`, at, id)
	return err
}

func (s *Store) IncrementCreditAndPrimes(ctx context.Context, id string, creditDelta float64, primesDelta int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE operators SET credit = credit + $1, primes_found = primes_found + $2 WHERE id = $3
	`, creditDelta, primesDelta, id)
	return err
}

func (s *Store) ListLeaderboard(ctx context.Context, team string, limit int) ([]operator.LeaderboardEntry, error) {
	query := `
		SELECT o.username, o.team, o.credit, o.primes_found,
		       (SELECT count(*) FROM operator_nodes n WHERE n.volunteer_id = o.id) AS worker_count
		FROM operators o
	`
	args := []any{}
	if team != "" {
		query += ` WHERE o.team = $1 ORDER BY o.credit DESC LIMIT $2`
		args = append(args, team, limit)
	} else {
		query += ` ORDER BY o.credit DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []operator.LeaderboardEntry
	rank := 1
	for rows.Next() {
		var e operator.LeaderboardEntry
		var teamName sql.NullString
		if err := rows.Scan(&e.Username, &teamName, &e.Credit, &e.PrimesFound, &e.WorkerCount); err != nil {
			return nil, err
		}
		e.Team = stringPtr(teamName)
		e.Rank = rank
		rank++
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) GetStats(ctx context.Context, id string) (operator.Stats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT o.username, o.credit, o.primes_found, COALESCE(t.trust_level, 1)
		FROM operators o
		LEFT JOIN operator_trust t ON t.volunteer_id = o.id
		WHERE o.id = $1
	`, id)

	var stats operator.Stats
	var trustLevel int
	if err := row.Scan(&stats.Username, &stats.Credit, &stats.PrimesFound, &trustLevel); err != nil {
		return operator.Stats{}, err
	}
	stats.TrustLevel = trustLevel

	var rank int
	rankRow := s.db.QueryRowContext(ctx, `
		SELECT rank FROM (
			SELECT id, rank() OVER (ORDER BY credit DESC) AS rank FROM operators
		) ranked WHERE id = $1
	`, id)
	if err := rankRow.Scan(&rank); err == nil {
		stats.Rank = &rank
	} else if !errors.Is(err, sql.ErrNoRows) {
		return operator.Stats{}, err
	}
	return stats, nil
}

func scanOperator(row rowScanner) (operator.Operator, error) {
	var op operator.Operator
	var team sql.NullString
	var lastSeen sql.NullTime
	if err := row.Scan(&op.ID, &op.Username, &op.Email, &op.APIKeyHash, &team, &op.Credit,
		&op.PrimesFound, &op.JoinedAt, &lastSeen); err != nil {
		return operator.Operator{}, err
	}
	op.Team = stringPtr(team)
	op.LastSeen = timePtr(lastSeen)
	return op, nil
}

func (s *Store) UpsertNode(ctx context.Context, n operator.Node) (operator.Node, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO operator_nodes
			(worker_id, volunteer_id, hostname, cores, cpu_model, os, arch, ram_gb, has_gpu,
			 gpu_model, gpu_mem_gb, worker_version, update_channel, registered_at, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		ON CONFLICT (worker_id) DO UPDATE SET
			hostname = EXCLUDED.hostname, cores = EXCLUDED.cores, cpu_model = EXCLUDED.cpu_model,
			os = EXCLUDED.os, arch = EXCLUDED.arch, ram_gb = EXCLUDED.ram_gb, has_gpu = EXCLUDED.has_gpu,
			gpu_model = EXCLUDED.gpu_model, gpu_mem_gb = EXCLUDED.gpu_mem_gb,
			worker_version = EXCLUDED.worker_version, update_channel = EXCLUDED.update_channel,
			last_heartbeat = now()
		RETURNING worker_id, registered_at, last_heartbeat
	`, n.WorkerID, n.VolunteerID, n.Hostname, n.Cores, n.CPUModel, n.OS, n.Arch, n.RAMGB, n.HasGPU,
		nullString(n.GPUModel), nullInt(n.GPUMemGB), n.WorkerVersion, n.UpdateChannel)
	if err := row.Scan(&n.WorkerID, &n.RegisteredAt, &n.LastHeartbeat); err != nil {
		return operator.Node{}, fmt.Errorf("upsert node: %w", err)
	}
	return n, nil
}

func (s *Store) GetNode(ctx context.Context, workerID string) (operator.Node, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT worker_id, volunteer_id, hostname, cores, cpu_model, os, arch, ram_gb, has_gpu,
		       gpu_model, gpu_mem_gb, worker_version, update_channel, registered_at, last_heartbeat,
		       pending_command
		FROM operator_nodes WHERE worker_id = $1
	`, workerID)
	return scanNode(row)
}

func (s *Store) TouchHeartbeat(ctx context.Context, workerID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE operator_nodes SET last_heartbeat = $1 WHERE worker_id = $2`, at, workerID)
	return err
}

func (s *Store) PopPendingCommand(ctx context.Context, workerID string) (*string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var cmd sql.NullString
	row := tx.QueryRowContext(ctx, `SELECT pending_command FROM operator_nodes WHERE worker_id = $1 FOR UPDATE`, workerID)
	if err := row.Scan(&cmd); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tx.Commit()
		}
		return nil, err
	}
	if !cmd.Valid {
		return nil, tx.Commit()
	}
	if _, err := tx.ExecContext(ctx, `UPDATE operator_nodes SET pending_command = NULL WHERE worker_id = $1`, workerID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &cmd.String, nil
}

func (s *Store) PruneStaleNodes(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM operator_nodes WHERE last_heartbeat < $1`, olderThan)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanNode(row rowScanner) (operator.Node, error) {
	var n operator.Node
	var gpuModel sql.NullString
	var gpuMemGB sql.NullInt32
	var pendingCommand sql.NullString
	if err := row.Scan(&n.WorkerID, &n.VolunteerID, &n.Hostname, &n.Cores, &n.CPUModel, &n.OS, &n.Arch,
		&n.RAMGB, &n.HasGPU, &gpuModel, &gpuMemGB, &n.WorkerVersion, &n.UpdateChannel,
		&n.RegisteredAt, &n.LastHeartbeat, &pendingCommand); err != nil {
		return operator.Node{}, err
	}
	n.GPUModel = stringPtr(gpuModel)
	n.GPUMemGB = intPtr(gpuMemGB)
	n.PendingCommand = stringPtr(pendingCommand)
	return n, nil
}
