package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/event"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
)

// BulkInsertEvents persists a batch of event bus records flushed from the
// in-memory ring to durable storage. One statement per record keeps the
// transaction simple; batches are small (bounded by the bus's flush
// interval), so the per-row round trip is not a bottleneck.
func (s *Store) BulkInsertEvents(ctx context.Context, records []event.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		fieldsJSON, err := json.Marshal(r.Fields)
		if err != nil {
			return fmt.Errorf("marshal event fields: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_log (id, kind, message, fields, timestamp_ms)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, string(r.Kind), r.Message, fieldsJSON, r.TimestampMS); err != nil {
			return fmt.Errorf("insert event %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) BulkInsertMetricSamples(ctx context.Context, samples []storage.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, sample := range samples {
		labelsJSON, err := json.Marshal(sample.Labels)
		if err != nil {
			return fmt.Errorf("marshal metric labels: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO metric_samples (name, value, labels, sampled_at)
			VALUES ($1, $2, $3, $4)
		`, sample.Name, sample.Value, labelsJSON, sample.SampledAt); err != nil {
			return fmt.Errorf("insert metric sample: %w", err)
		}
	}
	return tx.Commit()
}

// RollupOldMetrics deletes raw samples older than olderThan. A fuller
// rollup (bucket-averaging into a lower-resolution series) is left to a
// dedicated job; spec.md scopes retention to deletion only.
func (s *Store) RollupOldMetrics(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metric_samples WHERE sampled_at < $1`, olderThan)
	return err
}

func (s *Store) PruneOldLogs(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM event_log WHERE timestamp_ms < $1`, olderThan.UnixMilli())
	return err
}
