// Package orchestrator implements the Project Orchestrator (spec.md §4.4):
// phase-graph activation, completion detection, adaptive phase extension,
// fleet-requirement gating, and cost/progress aggregation.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/event"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/phase"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/project"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/searchjob"
	"github.com/oddurs/darkreach-coordinator/internal/app/eventbus"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
	"github.com/oddurs/darkreach-coordinator/pkg/logger"
)

// extendSuffix marks a follow-up phase, preventing unbounded chaining
// (spec.md §4.4: a phase whose name already ends with this is never
// extended again).
const extendSuffix = "-extend"

// Orchestrator implements spec.md §4.4's public contract.
type Orchestrator struct {
	projects storage.ProjectStore
	dispatch storage.DispatchStore
	primes   storage.PrimeStore
	bus      *eventbus.Bus
	log      *logger.Logger
}

// New builds an Orchestrator.
func New(projects storage.ProjectStore, dispatch storage.DispatchStore, primes storage.PrimeStore, bus *eventbus.Bus, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewDefault("orchestrator")
	}
	return &Orchestrator{projects: projects, dispatch: dispatch, primes: primes, bus: bus, log: log}
}

// OrchestrateTick walks p's phases in phase_order, activating, completing
// and aggregating as described in spec.md §4.4. Per-phase errors are logged
// as project events and never abort the walk of other phases or projects.
func (o *Orchestrator) OrchestrateTick(ctx context.Context, p project.Project, fleet project.FleetSummary) error {
	phases, err := o.projects.ListPhases(ctx, p.ID)
	if err != nil {
		return err
	}

	for _, ph := range phases {
		switch ph.Status {
		case phase.StatusActive:
			if err := o.advanceActivePhase(ctx, p, ph, phases); err != nil {
				o.logPhaseError(p, ph, err)
			}
		case phase.StatusPending:
			if err := o.tryActivatePhase(ctx, p, ph, phases, fleet); err != nil {
				o.logPhaseError(p, ph, err)
			}
		}
	}

	return o.aggregateProjectTotals(ctx, p.ID)
}

func (o *Orchestrator) advanceActivePhase(ctx context.Context, p project.Project, ph phase.Phase, all []phase.Phase) error {
	if ph.SearchJobID == nil {
		return nil
	}
	job, err := o.dispatch.GetSearchJob(ctx, *ph.SearchJobID)
	if err != nil {
		return err
	}

	remaining, err := o.dispatch.CountAvailableOrClaimed(ctx, job.ID)
	if err != nil {
		return err
	}
	if remaining == 0 && job.Status != searchjob.StatusCompleted {
		if err := o.dispatch.UpdateJobStatus(ctx, job.ID, searchjob.StatusCompleted); err != nil {
			return err
		}
	}

	totals := phase.Totals{TotalTested: job.TotalTested, TotalFound: job.TotalFound}
	complete := IsPhaseComplete(ph.CompletionCondition, remaining, totals)
	if !complete {
		return o.projects.UpdatePhaseTotals(ctx, ph.ID, totals)
	}

	if err := o.projects.UpdatePhaseTotals(ctx, ph.ID, totals); err != nil {
		return err
	}
	if err := o.projects.UpdatePhaseStatus(ctx, ph.ID, phase.StatusCompleted, ph.SearchJobID); err != nil {
		return err
	}
	ph.Status = phase.StatusCompleted
	ph.Totals = totals

	o.bus.Emit(event.KindSearchCompleted, fmt.Sprintf("phase %s of project %s completed", ph.Name, p.Slug), map[string]any{
		"project": p.Slug, "phase": ph.Name, "total_found": totals.TotalFound,
	})

	if cfg := GenerateFollowupPhase(p, ph, all); cfg != nil {
		if err := o.createPhase(ctx, p.ID, *cfg); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) tryActivatePhase(ctx context.Context, p project.Project, ph phase.Phase, all []phase.Phase, fleet project.FleetSummary) error {
	if !ShouldActivate(ph, all) {
		return nil
	}

	if reason := CheckFleetRequirements(p, fleet); reason != "" {
		o.bus.Emit(event.KindWarning, fmt.Sprintf("phase %s of project %s waiting on fleet: %s", ph.Name, p.Slug, reason), map[string]any{
			"project": p.Slug, "phase": ph.Name, "reason": reason,
		})
		return nil
	}

	job, err := o.dispatch.CreateSearchJobWithBlocks(ctx, searchjob.Job{
		SearchType: p.Form,
		Params:     ph.SearchParams,
		Status:     searchjob.StatusRunning,
		RangeStart: rangeStartOf(ph.SearchParams),
		RangeEnd:   rangeEndOf(ph.SearchParams),
		BlockSize:  ph.BlockSize,
	})
	if err != nil {
		return err
	}

	if err := o.projects.UpdatePhaseStatus(ctx, ph.ID, phase.StatusActive, &job.ID); err != nil {
		return err
	}

	o.bus.Emit(event.KindSearchStarted, fmt.Sprintf("phase %s of project %s activated", ph.Name, p.Slug), map[string]any{
		"project": p.Slug, "phase": ph.Name, "search_job_id": job.ID,
	})
	return nil
}

func (o *Orchestrator) aggregateProjectTotals(ctx context.Context, projectID int64) error {
	phases, err := o.projects.ListPhases(ctx, projectID)
	if err != nil {
		return err
	}
	var totalTested, totalFound int64
	for _, ph := range phases {
		totalTested += ph.Totals.TotalTested
		totalFound += ph.Totals.TotalFound
	}

	p, err := o.projects.GetProject(ctx, projectID)
	if err != nil {
		return err
	}
	estimate := EstimateProjectCost(p, phases)

	bestPrimeID, bestDigits := p.BestPrimeID, p.BestDigits
	if best, found, err := o.primes.BestPrimeForForm(ctx, p.Form); err != nil {
		o.log.WithError(err).WithField("project", p.Slug).Warn("orchestrator: best prime lookup failed, keeping previous aggregate")
	} else if found {
		bestPrimeID, bestDigits = &best.ID, best.Digits
	}

	return o.projects.UpdateProjectAggregates(ctx, projectID, totalTested, totalFound, bestPrimeID, bestDigits, estimate.TotalCoreHours, estimate.TotalCostUSD)
}

func (o *Orchestrator) createPhase(ctx context.Context, projectID int64, cfg phase.Config) error {
	_, err := o.projects.CreatePhase(ctx, phase.Phase{
		ProjectID:           projectID,
		Name:                cfg.Name,
		PhaseOrder:          cfg.PhaseOrder,
		Status:              phase.StatusPending,
		SearchParams:        cfg.SearchParams,
		BlockSize:           cfg.BlockSize,
		DependsOn:           cfg.DependsOn,
		ActivationCondition: cfg.ActivationCondition,
		CompletionCondition: cfg.CompletionCondition,
	})
	return err
}

func (o *Orchestrator) logPhaseError(p project.Project, ph phase.Phase, err error) {
	o.log.WithError(err).WithField("project", p.Slug).WithField("phase", ph.Name).Warn("orchestrator: phase step failed")
	o.bus.Emit(event.KindError, fmt.Sprintf("phase %s of project %s failed: %v", ph.Name, p.Slug, err), map[string]any{
		"project": p.Slug, "phase": ph.Name,
	})
}

// ShouldActivate implements spec.md §4.4: every dependency must be
// completed, and the phase's activation_condition, if any, must evaluate
// true against the last completed dependency.
func ShouldActivate(ph phase.Phase, all []phase.Phase) bool {
	byName := make(map[string]phase.Phase, len(all))
	for _, p := range all {
		byName[p.Name] = p
	}

	var lastCompletedDep *phase.Phase
	for _, depName := range ph.DependsOn {
		dep, ok := byName[depName]
		if !ok || dep.Status != phase.StatusCompleted {
			return false
		}
		d := dep
		lastCompletedDep = &d
	}

	switch ph.ActivationCondition {
	case phase.ActivationNone:
		return true
	case phase.ActivationPreviousPhaseFoundZero:
		return lastCompletedDep != nil && lastCompletedDep.Totals.TotalFound == 0
	case phase.ActivationPreviousPhaseFoundAny:
		return lastCompletedDep != nil && lastCompletedDep.Totals.TotalFound >= 1
	default:
		return true
	}
}

// IsPhaseComplete implements spec.md §4.4's two completion conditions.
// remainingBlocks counts blocks still available or claimed for the phase's
// search job.
func IsPhaseComplete(condition phase.CompletionCondition, remainingBlocks int64, totals phase.Totals) bool {
	switch condition {
	case phase.CompletionFirstPrimeFound:
		return totals.TotalFound >= 1
	case phase.CompletionAllBlocksDone:
		return remainingBlocks == 0
	default:
		return remainingBlocks == 0
	}
}

// CheckFleetRequirements returns "" when fleet satisfies every requirement
// on p.Infrastructure, or a human-readable reason otherwise. Unmet
// requirements never fail the project; the phase stays pending and retries
// next tick.
func CheckFleetRequirements(p project.Project, fleet project.FleetSummary) string {
	if p.Infrastructure == nil {
		return ""
	}
	infra := p.Infrastructure

	if infra.MinCores > fleet.TotalCores {
		return fmt.Sprintf("need %d cores, fleet has %d", infra.MinCores, fleet.TotalCores)
	}
	if infra.MinRAMGB > fleet.MaxRAMGB {
		return fmt.Sprintf("need %d GB ram per worker, fleet max is %d", infra.MinRAMGB, fleet.MaxRAMGB)
	}
	if infra.MinWorkers > fleet.WorkerCount {
		return fmt.Sprintf("need %d workers, fleet has %d", infra.MinWorkers, fleet.WorkerCount)
	}
	for _, tool := range infra.RequiredTools {
		if !fleet.ActiveSearchTypes[tool] {
			return fmt.Sprintf("required tool %q not active in fleet", tool)
		}
	}
	return ""
}

// GenerateFollowupPhase implements spec.md §4.4's adaptive extension: fires
// only when the completed phase found nothing, isn't itself already an
// extension, and has no existing "{name}-extend" sibling. The follow-up
// extends the range by the same span and inherits all non-range params.
func GenerateFollowupPhase(p project.Project, completed phase.Phase, all []phase.Phase) *phase.Config {
	if completed.Totals.TotalFound != 0 {
		return nil
	}
	if strings.HasSuffix(completed.Name, extendSuffix) {
		return nil
	}
	extendName := completed.Name + extendSuffix
	for _, ph := range all {
		if ph.Name == extendName {
			return nil
		}
	}

	oldStart, oldEnd := ExtractRangeFromParams(completed.SearchParams)
	newStart := oldEnd + 1
	newEnd := newStart + (oldEnd - oldStart)

	params := make(map[string]any, len(completed.SearchParams))
	for k, v := range completed.SearchParams {
		params[k] = v
	}
	params["start"] = newStart
	params["end"] = newEnd

	return &phase.Config{
		Name:                extendName,
		PhaseOrder:          completed.PhaseOrder + 1,
		SearchParams:        params,
		BlockSize:           completed.BlockSize,
		DependsOn:           []string{completed.Name},
		ActivationCondition: phase.ActivationPreviousPhaseFoundZero,
		CompletionCondition: completed.CompletionCondition,
		RangeStart:          newStart,
		RangeEnd:            newEnd,
	}
}

// GenerateAutoStrategy builds the default phase set for a project created
// with automatic strategy: a sweep phase covering the target range,
// followed for record objectives by a symmetric extend phase gated on the
// sweep finding nothing.
func GenerateAutoStrategy(target project.Target, objective project.Objective, blockSize int64) []phase.Config {
	sweep := phase.Config{
		Name:                "sweep",
		PhaseOrder:          0,
		SearchParams:        map[string]any{"start": target.RangeStart, "end": target.RangeEnd},
		BlockSize:           blockSize,
		CompletionCondition: phase.CompletionAllBlocksDone,
		RangeStart:          target.RangeStart,
		RangeEnd:            target.RangeEnd,
	}
	if objective != project.ObjectiveRecord {
		return []phase.Config{sweep}
	}

	span := target.RangeEnd - target.RangeStart
	extendStart := target.RangeEnd + 1
	extend := phase.Config{
		Name:                "extend",
		PhaseOrder:          1,
		SearchParams:        map[string]any{"start": extendStart, "end": extendStart + span},
		BlockSize:           blockSize,
		DependsOn:           []string{"sweep"},
		ActivationCondition: phase.ActivationPreviousPhaseFoundZero,
		CompletionCondition: phase.CompletionAllBlocksDone,
		RangeStart:          extendStart,
		RangeEnd:            extendStart + span,
	}
	return []phase.Config{sweep, extend}
}

func rangeStartOf(params map[string]any) int64 {
	start, _ := ExtractRangeFromParams(params)
	return start
}

func rangeEndOf(params map[string]any) int64 {
	_, end := ExtractRangeFromParams(params)
	return end
}
