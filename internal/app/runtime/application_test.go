package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/config"
)

func testConfig() *config.Config {
	cfg := config.New()
	cfg.Server.Port = 0
	return cfg
}

func TestNewWiresAnInMemoryApplicationWithoutADatabase(t *testing.T) {
	app, err := New(testConfig())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	if app.db != nil {
		t.Fatalf("expected no database handle with an empty DSN, got %v", app.db)
	}
	if app.manager == nil {
		t.Fatalf("expected a populated service manager")
	}
}

func TestRunStartsServicesAndReturnsOnCancel(t *testing.T) {
	app, err := New(testConfig())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected Run to return nil once ctx is cancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return within the deadline after cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestBuildStoreFallsBackToMemoryOnEmptyDSN(t *testing.T) {
	store, db, err := buildStore(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("build store: %v", err)
	}
	if db != nil {
		t.Fatalf("expected no *sql.DB for an empty DSN")
	}
	if store == nil {
		t.Fatalf("expected a non-nil in-memory store")
	}
}

func TestBuildStoreRejectsUnsupportedDriver(t *testing.T) {
	cfg := testConfig()
	cfg.Database.DSN = "dbname=ignored"
	cfg.Database.Driver = "sqlite"

	_, _, err := buildStore(context.Background(), cfg)
	if err == nil {
		t.Fatalf("expected an error for an unsupported driver")
	}
}
