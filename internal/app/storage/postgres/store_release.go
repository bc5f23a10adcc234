package postgres

import (
	"context"
	"database/sql"

	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
)

var _ storage.ReleaseStore = (*Store)(nil)

// LatestRelease is a thin read path in front of the release_manifest table.
// The table is filled outside this process: release.Manager.Refresh only
// syncs stores that implement SetRelease, and this store does not.
func (s *Store) LatestRelease(ctx context.Context, channel string) (storage.Release, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT channel, version, published_at, notes
		FROM release_manifest WHERE channel = $1
	`, channel)

	var rel storage.Release
	if err := row.Scan(&rel.Channel, &rel.Version, &rel.PublishedAt, &rel.Notes); err != nil {
		return storage.Release{}, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT os, arch, url, sha256, sig_url FROM release_artifacts
		WHERE channel = $1 AND version = $2
	`, channel, rel.Version)
	if err != nil {
		return storage.Release{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var a storage.Artifact
		var sigURL sql.NullString
		if err := rows.Scan(&a.OS, &a.Arch, &a.URL, &a.SHA256, &sigURL); err != nil {
			return storage.Release{}, err
		}
		a.SigURL = stringPtr(sigURL)
		rel.Artifacts = append(rel.Artifacts, a)
	}
	return rel, rows.Err()
}
