// Package runtime is the composition root: it wires storage, the domain
// services (Dispatcher, trust Scorer, verification Pipeline, Orchestrator),
// the Tick Scheduler, the release manifest resolver, and the HTTP API into
// a system.Manager, and owns the top-level Run/Shutdown lifecycle.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/oddurs/darkreach-coordinator/internal/app/dispatch"
	"github.com/oddurs/darkreach-coordinator/internal/app/eventbus"
	"github.com/oddurs/darkreach-coordinator/internal/app/httpapi"
	"github.com/oddurs/darkreach-coordinator/internal/app/logging"
	"github.com/oddurs/darkreach-coordinator/internal/app/orchestrator"
	"github.com/oddurs/darkreach-coordinator/internal/app/release"
	"github.com/oddurs/darkreach-coordinator/internal/app/scheduler"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage/memory"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage/postgres"
	"github.com/oddurs/darkreach-coordinator/internal/app/system"
	trustscorer "github.com/oddurs/darkreach-coordinator/internal/app/trust"
	"github.com/oddurs/darkreach-coordinator/internal/app/verification"
	"github.com/oddurs/darkreach-coordinator/internal/config"
	"github.com/oddurs/darkreach-coordinator/internal/platform/database"
	"github.com/oddurs/darkreach-coordinator/internal/platform/migrations"
	"github.com/oddurs/darkreach-coordinator/pkg/logger"
)

// Application owns every long-lived component and the database connection
// backing them, if any.
type Application struct {
	cfg     *config.Config
	log     *logger.Logger
	db      *sql.DB
	bus     *eventbus.Bus
	manager *system.Manager
}

// New constructs an Application wired from cfg. A non-empty
// cfg.Database.DSN selects the Postgres store (with migrations applied);
// an empty DSN falls back to the in-memory store, letting the coordinator
// run standalone for development and tests.
func New(cfg *config.Config) (*Application, error) {
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	store, db, err := buildStore(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}

	bus := eventbus.New(log).WithRedisMirror(cfg.EventBus.RedisAddr, cfg.EventBus.RedisChannel)
	dispatcher := dispatch.New(store, store, bus, log)
	scorer := trustscorer.New(store, log)
	pipeline := verification.New(store, store, scorer, log)
	orch := orchestrator.New(store, store, store, bus, log)

	releaseStore, ok := store.(storage.ReleaseStore)
	if !ok {
		return nil, fmt.Errorf("store %T does not implement storage.ReleaseStore", store)
	}
	releases := release.New(cfg.Release.ManifestPath, cfg.Release.DefaultChannel, releaseStore)
	if err := releases.Refresh(context.Background()); err != nil {
		log.WithError(err).Warn("initial release manifest refresh failed")
	}

	schedCfg := scheduler.Config{
		Interval:             cfg.Tick.Interval(),
		InternalClaimTimeout: cfg.Tick.InternalClaimTimeout(),
		OperatorClaimTimeout: cfg.Tick.OperatorClaimTimeout(),
		EventLogRetention:    time.Duration(cfg.Retention.EventLogDays) * 24 * time.Hour,
		MetricRollupCutoff:   time.Duration(cfg.Retention.MetricRollupDays) * 24 * time.Hour,
		StrategyTickCron:     cfg.Tick.StrategyTickCron,
		MetricsSampleCron:    cfg.Tick.MetricsSampleCron,
		HousekeepingCron:     cfg.Tick.HousekeepingCron,
	}
	sched, err := scheduler.New(schedCfg, dispatcher, store, store, pipeline, orch, store, store, bus, log)
	if err != nil {
		return nil, fmt.Errorf("build scheduler: %w", err)
	}

	manager := system.NewManager()

	httpLog := logging.New("http", cfg.Logging.Level, cfg.Logging.Format)
	httpSvc := httpapi.NewService(cfg.Server, cfg.Security, cfg.Auth, dispatcher, pipeline, releases, store, store, store, manager, db, httpLog)
	if err := manager.Register(httpSvc); err != nil {
		return nil, fmt.Errorf("register http service: %w", err)
	}
	if err := manager.Register(newSchedulerService(sched)); err != nil {
		return nil, fmt.Errorf("register scheduler service: %w", err)
	}
	if err := manager.Register(newHostDescriptorService(log)); err != nil {
		return nil, fmt.Errorf("register host descriptor service: %w", err)
	}

	return &Application{cfg: cfg, log: log, db: db, bus: bus, manager: manager}, nil
}

// Run starts every registered service and blocks until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	a.log.Infof("coordinator listening on %s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	<-ctx.Done()
	return nil
}

// Shutdown stops every registered service and closes the database
// connection, if one was opened.
func (a *Application) Shutdown(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	if a.bus != nil {
		if closeErr := a.bus.Close(); closeErr != nil {
			a.log.WithError(closeErr).Warn("error closing eventbus redis mirror")
		}
	}
	if a.db != nil {
		if closeErr := a.db.Close(); closeErr != nil {
			a.log.WithError(closeErr).Warn("error closing database connection")
		}
	}
	return err
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, *sql.DB, error) {
	driver := strings.TrimSpace(cfg.Database.Driver)
	dsn := strings.TrimSpace(cfg.Database.DSN)
	if dsn == "" {
		return memory.New(), nil, nil
	}
	if !strings.EqualFold(driver, "postgres") {
		return nil, nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := database.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	configurePool(db, cfg.Database)

	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}

	return postgres.New(db), db, nil
}

func configurePool(db *sql.DB, cfg config.DatabaseConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
}

// schedulerService adapts scheduler.Scheduler's blocking Run loop to
// system.Service, so the Tick Scheduler starts and stops alongside the HTTP
// API under one manager.
type schedulerService struct {
	sched  *scheduler.Scheduler
	cancel context.CancelFunc
	done   chan struct{}
}

func newSchedulerService(sched *scheduler.Scheduler) *schedulerService {
	return &schedulerService{sched: sched}
}

func (s *schedulerService) Name() string { return "scheduler" }

func (s *schedulerService) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.sched.Run(runCtx)
	}()
	return nil
}

func (s *schedulerService) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (s *schedulerService) Descriptor() system.Descriptor {
	return system.Descriptor{Name: "scheduler", Layer: "background", Notes: "nominal 30s tick: prune, reclaim, verify, orchestrate, strategy, drain, sample, housekeeping"}
}

var _ system.Service = (*schedulerService)(nil)

// hostDescriptorService reports the coordinator process's own host
// capability (cores, RAM) into GET /system/status, mirroring the
// teacher's applications/system descriptor pattern. This is operational
// parity only — fleet search capability comes from operator nodes
// (domain/operator.Node), never from the coordinator host itself.
type hostDescriptorService struct {
	log   *logger.Logger
	cores int
	ramGB int
}

func newHostDescriptorService(log *logger.Logger) *hostDescriptorService {
	s := &hostDescriptorService{log: log}
	if counts, err := cpu.Counts(true); err == nil {
		s.cores = counts
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.ramGB = int(vm.Total / (1024 * 1024 * 1024))
	}
	return s
}

func (s *hostDescriptorService) Name() string { return "host" }

func (s *hostDescriptorService) Start(ctx context.Context) error {
	s.log.Infof("coordinator host: %d cores, %d GB RAM", s.cores, s.ramGB)
	return nil
}

func (s *hostDescriptorService) Stop(ctx context.Context) error { return nil }

func (s *hostDescriptorService) Descriptor() system.Descriptor {
	return system.Descriptor{
		Name:  "host",
		Layer: "infrastructure",
		Notes: fmt.Sprintf("%d cores, %d GB RAM (coordinator process host, not fleet capability)", s.cores, s.ramGB),
	}
}

var _ system.Service = (*hostDescriptorService)(nil)
