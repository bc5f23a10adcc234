package memory

import (
	"context"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/event"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
)

func (s *Store) BulkInsertEvents(_ context.Context, records []event.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, records...)
	return nil
}

func (s *Store) BulkInsertMetricSamples(_ context.Context, samples []storage.MetricSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metricSamples = append(s.metricSamples, samples...)
	return nil
}

func (s *Store) RollupOldMetrics(_ context.Context, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.metricSamples[:0]
	for _, sample := range s.metricSamples {
		if !sample.SampledAt.Before(olderThan) {
			kept = append(kept, sample)
		}
	}
	s.metricSamples = kept
	return nil
}

func (s *Store) PruneOldLogs(_ context.Context, olderThan time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := olderThan.UnixMilli()
	kept := s.events[:0]
	for _, r := range s.events {
		if r.TimestampMS >= cutoff {
			kept = append(kept, r)
		}
	}
	s.events = kept
	return nil
}
