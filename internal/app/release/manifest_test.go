package release

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage/memory"
)

const fixture = `{
  "stable": {
    "version": "1.4.0",
    "published_at": "2026-06-01T00:00:00Z",
    "notes": "reliability fixes",
    "artifacts": [
      {"os": "linux", "arch": "amd64", "url": "https://cdn.example/node-1.4.0-linux-amd64", "sha256": "abc123", "sig_url": "https://cdn.example/node-1.4.0-linux-amd64.sig"},
      {"os": "darwin", "arch": "arm64", "url": "https://cdn.example/node-1.4.0-darwin-arm64", "sha256": "def456"}
    ]
  },
  "beta": {
    "version": "1.5.0-rc1",
    "published_at": "2026-07-15T00:00:00Z",
    "notes": "",
    "artifacts": []
  }
}`

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(fixture), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestRefreshAndResolve(t *testing.T) {
	path := writeFixture(t)
	store := memory.New()
	mgr := New(path, "stable", store)

	if err := mgr.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	rel, err := mgr.Resolve(context.Background(), "stable")
	if err != nil {
		t.Fatalf("resolve stable: %v", err)
	}
	if rel.Version != "1.4.0" {
		t.Fatalf("expected version 1.4.0, got %s", rel.Version)
	}
	if len(rel.Artifacts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(rel.Artifacts))
	}
	if rel.Artifacts[0].SigURL == nil || *rel.Artifacts[0].SigURL == "" {
		t.Fatalf("expected sig_url on linux artifact")
	}
	if rel.Artifacts[1].SigURL != nil {
		t.Fatalf("expected no sig_url on darwin artifact")
	}
}

func TestResolveDefaultsToConfiguredChannel(t *testing.T) {
	path := writeFixture(t)
	store := memory.New()
	mgr := New(path, "stable", store)
	if err := mgr.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	rel, err := mgr.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("resolve default channel: %v", err)
	}
	if rel.Channel != "stable" {
		t.Fatalf("expected default channel stable, got %s", rel.Channel)
	}
}

func TestResolveUnknownChannelNotFound(t *testing.T) {
	path := writeFixture(t)
	store := memory.New()
	mgr := New(path, "stable", store)
	if err := mgr.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	_, err := mgr.Resolve(context.Background(), "nightly")
	if apperr.CodeOf(err) != apperr.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRefreshRejectsMalformedManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	mgr := New(path, "stable", memory.New())

	if err := mgr.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error for malformed manifest")
	}
}

func TestRefreshRejectsMissingVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(`{"stable": {"notes": "oops"}}`), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	mgr := New(path, "stable", memory.New())

	if err := mgr.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error for missing version")
	}
}
