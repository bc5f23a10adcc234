// Package release resolves the worker-update manifest served by GET
// /nodes/latest: a JSON document per channel, listing the current version
// and its platform artifacts (spec.md §6). The manifest file is the source
// of truth; Manager parses it with gjson and keeps storage.ReleaseStore's
// cache in sync so the read path (LatestRelease) never touches the
// filesystem on the request hot path.
package release

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/tidwall/gjson"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
)

// cacheSyncer is satisfied by storage/memory.Store, which keeps its release
// cache in process memory and needs Refresh to push parsed entries into it.
// storage/postgres.Store has no equivalent: release_manifest there is kept
// in sync by a separate publish step (outside this process), so Refresh is
// a no-op for it and does not read the manifest file.
type cacheSyncer interface {
	SetRelease(ctx context.Context, rel storage.Release) error
}

// Manager resolves release manifests from a JSON file, one top-level key
// per channel.
type Manager struct {
	manifestPath   string
	defaultChannel string
	cache          storage.ReleaseStore
}

// New builds a Manager reading manifestPath, falling back to
// defaultChannel when a lookup omits one.
func New(manifestPath, defaultChannel string, cache storage.ReleaseStore) *Manager {
	return &Manager{manifestPath: manifestPath, defaultChannel: defaultChannel, cache: cache}
}

// Resolve returns the release for channel (defaultChannel if empty),
// reading through storage.ReleaseStore's cache. Call Refresh first (or
// periodically, e.g. from scheduler housekeeping) to pick up a newly
// published manifest file.
func (m *Manager) Resolve(ctx context.Context, channel string) (storage.Release, error) {
	if channel == "" {
		channel = m.defaultChannel
	}
	return m.cache.LatestRelease(ctx, channel)
}

// Refresh re-reads the manifest file and, for stores that support it,
// replaces the cached entry for every channel found. Returns apperr.Internal
// on a malformed manifest; a missing manifest file is not fatal to the
// caller's startup, so it is reported but callers may choose to ignore it.
func (m *Manager) Refresh(ctx context.Context) error {
	syncer, ok := m.cache.(cacheSyncer)
	if !ok {
		return nil
	}

	data, err := os.ReadFile(m.manifestPath)
	if err != nil {
		return apperr.Wrap(apperr.Internal, fmt.Errorf("read release manifest: %w", err))
	}
	if !gjson.ValidBytes(data) {
		return apperr.Internalf(fmt.Errorf("release manifest %s is not valid JSON", m.manifestPath))
	}

	var parseErr error
	gjson.ParseBytes(data).ForEach(func(channel, entry gjson.Result) bool {
		rel, err := parseEntry(channel.String(), entry)
		if err != nil {
			parseErr = err
			return false
		}
		if err := syncer.SetRelease(ctx, rel); err != nil {
			parseErr = err
			return false
		}
		return true
	})
	return parseErr
}

func parseEntry(channel string, entry gjson.Result) (storage.Release, error) {
	rel := storage.Release{
		Channel: channel,
		Version: entry.Get("version").String(),
		Notes:   entry.Get("notes").String(),
	}
	if rel.Version == "" {
		return storage.Release{}, fmt.Errorf("release manifest channel %q missing version", channel)
	}
	if ts := entry.Get("published_at").String(); ts != "" {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return storage.Release{}, fmt.Errorf("release manifest channel %q: %w", channel, err)
		}
		rel.PublishedAt = parsed
	}

	entry.Get("artifacts").ForEach(func(_, artifact gjson.Result) bool {
		a := storage.Artifact{
			OS:     artifact.Get("os").String(),
			Arch:   artifact.Get("arch").String(),
			URL:    artifact.Get("url").String(),
			SHA256: artifact.Get("sha256").String(),
		}
		if sig := artifact.Get("sig_url"); sig.Exists() {
			s := sig.String()
			a.SigURL = &s
		}
		rel.Artifacts = append(rel.Artifacts, a)
		return true
	})

	return rel, nil
}
