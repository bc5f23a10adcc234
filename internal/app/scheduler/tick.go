// Package scheduler implements the Tick Scheduler (spec.md §4.6): a single
// cooperative loop, nominal period 30s, driving every periodic coordinator
// task in a fixed order. Grounded on the teacher's cron-driven housekeeping
// service shape, adapted to the sequential, never-overlapping step order
// the spec mandates (this is not a general-purpose cron dispatcher: each
// tick runs its steps one after another on a single goroutine).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/event"
	"github.com/oddurs/darkreach-coordinator/internal/app/eventbus"
	"github.com/oddurs/darkreach-coordinator/internal/app/metrics"
	"github.com/oddurs/darkreach-coordinator/internal/app/orchestrator"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
	"github.com/oddurs/darkreach-coordinator/internal/app/verification"
	"github.com/oddurs/darkreach-coordinator/pkg/logger"
)

const (
	// staleWorkerPruneTimeout is the fixed 120s threshold from spec.md §4.6
	// step 1, independent of the dispatcher's claim-reclaim timeouts.
	staleWorkerPruneTimeout = 120 * time.Second
	// maxVerificationsEnqueuedPerTick bounds step 4 (spec.md §4.6).
	maxVerificationsEnqueuedPerTick = 20
	// defaultStrategyTickCron gates step 6 to once per 5 minutes.
	defaultStrategyTickCron = "*/5 * * * *"
	// defaultMetricsSampleCron gates step 8 to once per minute.
	defaultMetricsSampleCron = "* * * * *"
	// defaultHousekeepingCron gates step 9 to once per hour.
	defaultHousekeepingCron = "0 * * * *"
)

// Config bundles the tick's configurable cadence and timeout knobs (mapped
// from config.TickConfig/config.RetentionConfig by the caller). The three
// Cron fields are standard 5-field cron expressions gating steps 6, 8 and 9
// of Tick; a blank field falls back to its default cadence.
type Config struct {
	Interval             time.Duration
	InternalClaimTimeout time.Duration
	OperatorClaimTimeout time.Duration
	EventLogRetention    time.Duration
	MetricRollupCutoff   time.Duration
	StrategyTickCron     string
	MetricsSampleCron    string
	HousekeepingCron     string
}

// Dispatcher is the subset of dispatch.Dispatcher the scheduler drives.
type Dispatcher interface {
	ReclaimStale(ctx context.Context, internalTimeout, operatorTimeout time.Duration) (int, error)
}

// Scheduler drives every periodic coordinator task in the fixed order
// spec.md §4.6 enumerates. Tasks never overlap: Run blocks for the
// duration of each tick's steps before scheduling the next.
type Scheduler struct {
	cfg          Config
	dispatch     Dispatcher
	dispatchRaw  storage.DispatchStore
	operators    storage.OperatorStore
	verification *verification.Pipeline
	orchestrator *orchestrator.Orchestrator
	projects     storage.ProjectStore
	events       storage.EventStore
	bus          *eventbus.Bus
	log          *logger.Logger

	strategySchedule      cron.Schedule
	metricsSampleSchedule cron.Schedule
	housekeepingSchedule  cron.Schedule

	lastStrategyTick time.Time
	lastMetricSample time.Time
	lastHousekeeping time.Time
	lastEventID      int64
}

// New builds a Scheduler. It returns an error only if one of Config's cron
// fields fails to parse as a standard 5-field expression.
func New(cfg Config, dispatch Dispatcher, dispatchRaw storage.DispatchStore, operators storage.OperatorStore, pipeline *verification.Pipeline, orch *orchestrator.Orchestrator, projects storage.ProjectStore, events storage.EventStore, bus *eventbus.Bus, log *logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}

	strategySchedule, err := parseCron(cfg.StrategyTickCron, defaultStrategyTickCron)
	if err != nil {
		return nil, fmt.Errorf("strategy tick cron: %w", err)
	}
	metricsSampleSchedule, err := parseCron(cfg.MetricsSampleCron, defaultMetricsSampleCron)
	if err != nil {
		return nil, fmt.Errorf("metrics sample cron: %w", err)
	}
	housekeepingSchedule, err := parseCron(cfg.HousekeepingCron, defaultHousekeepingCron)
	if err != nil {
		return nil, fmt.Errorf("housekeeping cron: %w", err)
	}

	now := time.Now().UTC()
	return &Scheduler{
		cfg: cfg, dispatch: dispatch, dispatchRaw: dispatchRaw, operators: operators,
		verification: pipeline, orchestrator: orch, projects: projects, events: events, bus: bus, log: log,
		strategySchedule: strategySchedule, metricsSampleSchedule: metricsSampleSchedule, housekeepingSchedule: housekeepingSchedule,
		lastStrategyTick: now, lastMetricSample: now, lastHousekeeping: now,
	}, nil
}

func parseCron(expr, fallback string) (cron.Schedule, error) {
	if expr == "" {
		expr = fallback
	}
	return cron.ParseStandard(expr)
}

// due reports whether sched's next scheduled time strictly after last has
// arrived by now.
func due(sched cron.Schedule, last, now time.Time) bool {
	return !sched.Next(last).After(now)
}

// Run blocks until ctx is cancelled, firing Tick on cfg.Interval. Drift
// (actual interval minus nominal) is recorded every tick.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			drift := now.Sub(last) - s.cfg.Interval
			metrics.SetTickDrift(drift)
			last = now
			s.Tick(ctx)
		}
	}
}

// Tick runs one full cycle of steps 1-9, in order, never overlapping. Any
// individual step that errors is logged and skipped; subsequent steps
// still run (spec.md §4.6).
func (s *Scheduler) Tick(ctx context.Context) {
	s.step("prune_stale_workers", func() error { return s.pruneStaleWorkers(ctx) })
	s.step("reclaim_stale_claims", func() error { return s.reclaimStaleClaims(ctx) })
	s.step("enqueue_verifications", func() error { return s.enqueueVerifications(ctx) })
	s.step("orchestrate_projects", func() error { return s.orchestrateProjects(ctx) })

	now := time.Now().UTC()
	if due(s.strategySchedule, s.lastStrategyTick, now) {
		s.step("strategy_tick", func() error { return s.strategyTick(ctx) })
		s.lastStrategyTick = now
	}

	s.step("drain_events", func() error { return s.drainEvents(ctx) })

	if due(s.metricsSampleSchedule, s.lastMetricSample, now) {
		s.step("sample_metrics", func() error { return s.sampleMetrics(ctx) })
		s.lastMetricSample = now
	}

	if due(s.housekeepingSchedule, s.lastHousekeeping, now) {
		s.step("housekeeping", func() error { return s.housekeeping(ctx) })
		s.lastHousekeeping = now
	}
}

func (s *Scheduler) step(name string, fn func() error) {
	start := time.Now()
	err := fn()
	metrics.RecordTickStep(name, time.Since(start))
	if err != nil {
		s.log.WithError(err).WithField("step", name).Warn("scheduler: tick step failed, continuing")
	}
}

func (s *Scheduler) pruneStaleWorkers(ctx context.Context) error {
	_, err := s.operators.PruneStaleNodes(ctx, time.Now().UTC().Add(-staleWorkerPruneTimeout))
	return err
}

func (s *Scheduler) reclaimStaleClaims(ctx context.Context) error {
	n, err := s.dispatch.ReclaimStale(ctx, s.cfg.InternalClaimTimeout, s.cfg.OperatorClaimTimeout)
	if err != nil {
		return err
	}
	if n > 0 {
		s.bus.Emit(event.KindMilestone, "reclaimed stale claims", map[string]any{"count": n})
	}
	return nil
}

func (s *Scheduler) enqueueVerifications(ctx context.Context) error {
	blocks, err := s.dispatchRaw.ListCompletedUnverifiedOperatorBlocks(ctx, maxVerificationsEnqueuedPerTick)
	if err != nil {
		return err
	}
	for _, block := range blocks {
		job, err := s.dispatchRaw.GetSearchJob(ctx, block.SearchJobID)
		if err != nil {
			s.log.WithError(err).Warn("scheduler: failed to load job for verification enqueue")
			continue
		}
		if err := s.verification.EnqueueIfNeeded(ctx, block, job.SearchType); err != nil {
			s.log.WithError(err).WithField("block_id", block.ID).Warn("scheduler: enqueue_if_needed failed")
		}
	}
	return nil
}

func (s *Scheduler) orchestrateProjects(ctx context.Context) error {
	fleet, err := s.projects.FleetSnapshot(ctx, staleWorkerPruneTimeout, time.Now().UTC())
	if err != nil {
		return err
	}

	active, err := s.projects.ListActiveProjects(ctx)
	if err != nil {
		return err
	}
	for _, p := range active {
		if err := s.orchestrator.OrchestrateTick(ctx, p, fleet); err != nil {
			s.log.WithError(err).WithField("project", p.Slug).Warn("scheduler: orchestrate_tick failed")
		}
	}
	return nil
}

// strategyTick is a lighter-weight pass over projects every 5 minutes,
// reserved for strategy-level bookkeeping (budget-period rotation is an
// external collaborator per spec.md §4.6 step 2 and is not detailed here).
func (s *Scheduler) strategyTick(ctx context.Context) error {
	return nil
}

func (s *Scheduler) drainEvents(ctx context.Context) error {
	records := s.bus.RecentEventsSince(s.lastEventID, 0)
	if len(records) == 0 {
		return nil
	}
	if err := s.events.BulkInsertEvents(ctx, records); err != nil {
		return err
	}
	s.lastEventID = records[len(records)-1].ID
	return nil
}

func (s *Scheduler) sampleMetrics(ctx context.Context) error {
	now := time.Now().UTC()
	samples := []storage.MetricSample{
		{Name: "notifications_count", Value: float64(len(s.bus.RecentNotifications())), SampledAt: now},
	}

	if jobs, err := s.dispatchRaw.ListRunningJobs(ctx); err != nil {
		s.log.WithError(err).Warn("scheduler: sample_metrics failed to list running jobs")
	} else {
		samples = append(samples, storage.MetricSample{Name: "running_jobs_count", Value: float64(len(jobs)), SampledAt: now})
	}

	if projects, err := s.projects.ListActiveProjects(ctx); err != nil {
		s.log.WithError(err).Warn("scheduler: sample_metrics failed to list active projects")
	} else {
		samples = append(samples, storage.MetricSample{Name: "active_projects_count", Value: float64(len(projects)), SampledAt: now})
	}

	return s.events.BulkInsertMetricSamples(ctx, samples)
}

func (s *Scheduler) housekeeping(ctx context.Context) error {
	now := time.Now().UTC()
	if err := s.events.RollupOldMetrics(ctx, now.Add(-s.cfg.MetricRollupCutoff)); err != nil {
		return err
	}
	return s.events.PruneOldLogs(ctx, now.Add(-s.cfg.EventLogRetention))
}
