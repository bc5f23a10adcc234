package memory

import (
	"context"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
)

func (s *Store) LatestRelease(_ context.Context, channel string) (storage.Release, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rel, ok := s.releases[channel]
	if !ok {
		return storage.Release{}, apperr.NotFoundf("no release published on channel %q", channel)
	}
	return rel, nil
}

// SetRelease seeds or replaces the cached manifest entry for a channel; used
// by release.Manager when it refreshes from the configured manifest source
// and by tests that need a deterministic fixture.
func (s *Store) SetRelease(_ context.Context, rel storage.Release) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases[rel.Channel] = rel
	return nil
}
