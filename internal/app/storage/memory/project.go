package memory

import (
	"context"
	"sort"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/phase"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/project"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/searchjob"
)

func (s *Store) CreateProjectWithPhases(_ context.Context, p project.Project, phases []phase.Phase) (project.Project, []phase.Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.projectBySlug[p.Slug]; exists {
		return project.Project{}, nil, apperr.Conflictf("project slug %q already exists", p.Slug)
	}

	p.ID = s.nextProjID
	s.nextProjID++
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.projects[p.ID] = p
	s.projectBySlug[p.Slug] = p.ID

	created := make([]phase.Phase, len(phases))
	for i, ph := range phases {
		ph.ID = s.nextPhaseID
		s.nextPhaseID++
		ph.ProjectID = p.ID
		ph.CreatedAt = now
		ph.UpdatedAt = now
		s.phases[ph.ID] = ph
		created[i] = ph
	}
	return p, created, nil
}

func (s *Store) GetProject(_ context.Context, id int64) (project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, apperr.NotFoundf("project %d not found", id)
	}
	return p, nil
}

func (s *Store) GetProjectBySlug(_ context.Context, slug string) (project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.projectBySlug[slug]
	if !ok {
		return project.Project{}, apperr.NotFoundf("project %q not found", slug)
	}
	return s.projects[id], nil
}

func (s *Store) ListActiveProjects(ctx context.Context) ([]project.Project, error) {
	all, err := s.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	var active []project.Project
	for _, p := range all {
		if p.Status == project.StatusActive {
			active = append(active, p)
		}
	}
	return active, nil
}

func (s *Store) ListProjects(_ context.Context) ([]project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var projects []project.Project
	for _, p := range s.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })
	return projects, nil
}

func (s *Store) UpdateProjectStatus(_ context.Context, id int64, status project.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return apperr.NotFoundf("project %d not found", id)
	}
	p.Status = status
	p.UpdatedAt = time.Now().UTC()
	s.projects[id] = p
	return nil
}

func (s *Store) UpdateProjectAggregates(_ context.Context, id int64, totalTested, totalFound int64, bestPrimeID *int64, bestDigits int64, coreHours, costUSD float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return apperr.NotFoundf("project %d not found", id)
	}
	p.TotalTested = totalTested
	p.TotalFound = totalFound
	p.BestPrimeID = bestPrimeID
	p.BestDigits = bestDigits
	p.TotalCoreHours = coreHours
	p.TotalCostUSD = costUSD
	p.UpdatedAt = time.Now().UTC()
	s.projects[id] = p
	return nil
}

func (s *Store) ListPhases(_ context.Context, projectID int64) ([]phase.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var phases []phase.Phase
	for _, ph := range s.phases {
		if ph.ProjectID == projectID {
			phases = append(phases, ph)
		}
	}
	sort.Slice(phases, func(i, j int) bool { return phases[i].PhaseOrder < phases[j].PhaseOrder })
	return phases, nil
}

func (s *Store) GetPhase(_ context.Context, id int64) (phase.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ph, ok := s.phases[id]
	if !ok {
		return phase.Phase{}, apperr.NotFoundf("phase %d not found", id)
	}
	return ph, nil
}

func (s *Store) UpdatePhaseStatus(_ context.Context, id int64, status phase.Status, searchJobID *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ph, ok := s.phases[id]
	if !ok {
		return apperr.NotFoundf("phase %d not found", id)
	}
	ph.Status = status
	ph.SearchJobID = searchJobID
	ph.UpdatedAt = time.Now().UTC()
	s.phases[id] = ph
	return nil
}

func (s *Store) UpdatePhaseTotals(_ context.Context, id int64, totals phase.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ph, ok := s.phases[id]
	if !ok {
		return apperr.NotFoundf("phase %d not found", id)
	}
	ph.Totals = totals
	ph.UpdatedAt = time.Now().UTC()
	s.phases[id] = ph
	return nil
}

func (s *Store) CreatePhase(_ context.Context, p phase.Phase) (phase.Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextPhaseID
	s.nextPhaseID++
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.phases[p.ID] = p
	return p, nil
}

func (s *Store) FleetSnapshot(_ context.Context, heartbeatFreshWindow time.Duration, now time.Time) (project.FleetSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := project.FleetSummary{ActiveSearchTypes: map[string]bool{}}
	cutoff := now.Add(-heartbeatFreshWindow)
	for _, n := range s.nodes {
		if n.LastHeartbeat.Before(cutoff) {
			continue
		}
		summary.TotalCores += n.Cores
		if n.RAMGB > summary.MaxRAMGB {
			summary.MaxRAMGB = n.RAMGB
		}
		summary.WorkerCount++
	}
	for _, j := range s.jobs {
		if j.Status == searchjob.StatusRunning {
			summary.ActiveSearchTypes[j.SearchType] = true
		}
	}
	return summary, nil
}
