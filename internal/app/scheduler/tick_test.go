package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oddurs/darkreach-coordinator/internal/app/dispatch"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/event"
	"github.com/oddurs/darkreach-coordinator/internal/app/eventbus"
	"github.com/oddurs/darkreach-coordinator/internal/app/orchestrator"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage/memory"
	"github.com/oddurs/darkreach-coordinator/internal/app/trust"
	"github.com/oddurs/darkreach-coordinator/internal/app/verification"
)

func newScheduler(cfg Config) (*Scheduler, *memory.Store, error) {
	store := memory.New()
	bus := eventbus.New(nil)
	d := dispatch.New(store, store, bus, nil)
	scorer := trust.New(store, nil)
	pipeline := verification.New(store, store, scorer, nil)
	orch := orchestrator.New(store, store, store, bus, nil)
	sched, err := New(cfg, d, store, store, pipeline, orch, store, store, bus, nil)
	return sched, store, err
}

func TestNewRejectsInvalidCronExpression(t *testing.T) {
	_, _, err := newScheduler(Config{Interval: time.Second, StrategyTickCron: "not a cron expression"})
	if err == nil {
		t.Fatalf("expected an error for an invalid cron expression")
	}
}

func TestNewFallsBackToDefaultCronWhenBlank(t *testing.T) {
	sched, _, err := newScheduler(Config{Interval: time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	want, _ := cron.ParseStandard(defaultMetricsSampleCron)
	now := time.Now().UTC()
	if sched.metricsSampleSchedule.Next(now) != want.Next(now) {
		t.Fatalf("expected the default metrics sample cadence when MetricsSampleCron is blank")
	}
}

func TestDueGatesOnSchedule(t *testing.T) {
	sched, err := cron.ParseStandard("0 * * * *")
	if err != nil {
		t.Fatalf("parse cron: %v", err)
	}
	last := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	if due(sched, last, last.Add(30*time.Minute)) {
		t.Fatalf("expected not due 30 minutes before the next hour boundary")
	}
	if !due(sched, last, last.Add(time.Hour)) {
		t.Fatalf("expected due once the next hour boundary has passed")
	}
}

func TestTickRunsAllStepsWithoutError(t *testing.T) {
	sched, store, err := newScheduler(Config{
		Interval:             time.Second,
		InternalClaimTimeout: time.Minute,
		OperatorClaimTimeout: time.Hour,
		EventLogRetention:    24 * time.Hour,
		MetricRollupCutoff:   time.Hour,
		StrategyTickCron:     "* * * * *",
		MetricsSampleCron:    "* * * * *",
		HousekeepingCron:     "* * * * *",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx := context.Background()
	rec := sched.bus.Emit(event.KindWarning, "test warning", nil)

	// New stamps the gated steps as just run; back-date them so this Tick
	// reaches strategy, metrics sampling and housekeeping too.
	past := time.Now().UTC().Add(-2 * time.Minute)
	sched.lastStrategyTick, sched.lastMetricSample, sched.lastHousekeeping = past, past, past

	sched.Tick(ctx)

	if sched.lastEventID < rec.ID {
		t.Fatalf("expected drain_events to advance lastEventID past %d, got %d", rec.ID, sched.lastEventID)
	}
	if !sched.lastStrategyTick.After(past) || !sched.lastMetricSample.After(past) || !sched.lastHousekeeping.After(past) {
		t.Fatalf("expected the cron-gated steps to run on this tick")
	}
	_ = store
}
