package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/oddurs/darkreach-coordinator/internal/app/domain/phase"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/project"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/searchjob"
)

func (s *Store) CreateProjectWithPhases(ctx context.Context, p project.Project, phases []phase.Phase) (project.Project, []phase.Phase, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return project.Project{}, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	infraJSON, budgetJSON, err := marshalProjectJSON(p)
	if err != nil {
		return project.Project{}, nil, err
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO projects (slug, name, objective, form, status, range_start, range_end, competitive,
		                       strategy, infrastructure, budget)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`, p.Slug, p.Name, string(p.Objective), p.Form, string(p.Status), p.Target.RangeStart, p.Target.RangeEnd,
		p.Competitive, p.Strategy, infraJSON, budgetJSON)
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return project.Project{}, nil, fmt.Errorf("insert project: %w", err)
	}

	for i := range phases {
		phases[i].ProjectID = p.ID
		created, err := createPhaseTx(ctx, tx, phases[i])
		if err != nil {
			return project.Project{}, nil, err
		}
		phases[i] = created
	}

	if err := tx.Commit(); err != nil {
		return project.Project{}, nil, err
	}
	return p, phases, nil
}

func marshalProjectJSON(p project.Project) ([]byte, []byte, error) {
	var infraJSON, budgetJSON []byte
	var err error
	if p.Infrastructure != nil {
		infraJSON, err = json.Marshal(p.Infrastructure)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal infrastructure: %w", err)
		}
	}
	if p.Budget != nil {
		budgetJSON, err = json.Marshal(p.Budget)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal budget: %w", err)
		}
	}
	return infraJSON, budgetJSON, nil
}

func (s *Store) GetProject(ctx context.Context, id int64) (project.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, objective, form, status, range_start, range_end, competitive, strategy,
		       infrastructure, budget, total_tested, total_found, best_prime_id, best_digits,
		       total_core_hours, total_cost_usd, created_at, updated_at
		FROM projects WHERE id = $1
	`, id)
	return scanProject(row)
}

func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (project.Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, slug, name, objective, form, status, range_start, range_end, competitive, strategy,
		       infrastructure, budget, total_tested, total_found, best_prime_id, best_digits,
		       total_core_hours, total_cost_usd, created_at, updated_at
		FROM projects WHERE slug = $1
	`, slug)
	return scanProject(row)
}

func (s *Store) ListActiveProjects(ctx context.Context) ([]project.Project, error) {
	return s.listProjectsWhere(ctx, `WHERE status = $1`, string(project.StatusActive))
}

func (s *Store) ListProjects(ctx context.Context) ([]project.Project, error) {
	return s.listProjectsWhere(ctx, ``)
}

func (s *Store) listProjectsWhere(ctx context.Context, clause string, args ...any) ([]project.Project, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, slug, name, objective, form, status, range_start, range_end, competitive, strategy,
		       infrastructure, budget, total_tested, total_found, best_prime_id, best_digits,
		       total_core_hours, total_cost_usd, created_at, updated_at
		FROM projects %s ORDER BY id
	`, clause), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (s *Store) UpdateProjectStatus(ctx context.Context, id int64, status project.Status) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects SET status = $1, updated_at = now() WHERE id = $2
	`, string(status), id)
	return err
}

func (s *Store) UpdateProjectAggregates(ctx context.Context, id int64, totalTested, totalFound int64, bestPrimeID *int64, bestDigits int64, coreHours, costUSD float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET total_tested = $1, total_found = $2, best_prime_id = $3, best_digits = $4,
		    total_core_hours = $5, total_cost_usd = $6, updated_at = now()
		WHERE id = $7
	`, totalTested, totalFound, nullInt64(bestPrimeID), bestDigits, coreHours, costUSD, id)
	return err
}

func scanProject(row rowScanner) (project.Project, error) {
	var p project.Project
	var objective, status string
	var infraJSON, budgetJSON []byte
	var bestPrimeID sql.NullInt64
	if err := row.Scan(&p.ID, &p.Slug, &p.Name, &objective, &p.Form, &status, &p.Target.RangeStart,
		&p.Target.RangeEnd, &p.Competitive, &p.Strategy, &infraJSON, &budgetJSON, &p.TotalTested,
		&p.TotalFound, &bestPrimeID, &p.BestDigits, &p.TotalCoreHours, &p.TotalCostUSD,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return project.Project{}, err
	}
	p.Objective = project.Objective(objective)
	p.Status = project.Status(status)
	p.BestPrimeID = int64Ptr(bestPrimeID)
	if len(infraJSON) > 0 {
		p.Infrastructure = &project.Infrastructure{}
		if err := json.Unmarshal(infraJSON, p.Infrastructure); err != nil {
			return project.Project{}, fmt.Errorf("unmarshal infrastructure: %w", err)
		}
	}
	if len(budgetJSON) > 0 {
		p.Budget = &project.Budget{}
		if err := json.Unmarshal(budgetJSON, p.Budget); err != nil {
			return project.Project{}, fmt.Errorf("unmarshal budget: %w", err)
		}
	}
	return p, nil
}

func (s *Store) ListPhases(ctx context.Context, projectID int64) ([]phase.Phase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, name, phase_order, status, search_params, block_size, depends_on,
		       activation_condition, completion_condition, search_job_id, total_tested, total_found,
		       created_at, updated_at
		FROM project_phases WHERE project_id = $1 ORDER BY phase_order
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var phases []phase.Phase
	for rows.Next() {
		ph, err := scanPhase(rows)
		if err != nil {
			return nil, err
		}
		phases = append(phases, ph)
	}
	return phases, rows.Err()
}

func (s *Store) GetPhase(ctx context.Context, id int64) (phase.Phase, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, phase_order, status, search_params, block_size, depends_on,
		       activation_condition, completion_condition, search_job_id, total_tested, total_found,
		       created_at, updated_at
		FROM project_phases WHERE id = $1
	`, id)
	return scanPhase(row)
}

func (s *Store) UpdatePhaseStatus(ctx context.Context, id int64, status phase.Status, searchJobID *int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE project_phases SET status = $1, search_job_id = $2, updated_at = now() WHERE id = $3
	`, string(status), nullInt64(searchJobID), id)
	return err
}

func (s *Store) UpdatePhaseTotals(ctx context.Context, id int64, totals phase.Totals) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE project_phases SET total_tested = $1, total_found = $2, updated_at = now() WHERE id = $3
	`, totals.TotalTested, totals.TotalFound, id)
	return err
}

func (s *Store) CreatePhase(ctx context.Context, p phase.Phase) (phase.Phase, error) {
	return createPhaseTx(ctx, s.db, p)
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting CreatePhase and
// CreateProjectWithPhases share one insert path.
type execer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func createPhaseTx(ctx context.Context, ex execer, p phase.Phase) (phase.Phase, error) {
	paramsJSON, err := json.Marshal(p.SearchParams)
	if err != nil {
		return phase.Phase{}, fmt.Errorf("marshal search params: %w", err)
	}

	row := ex.QueryRowContext(ctx, `
		INSERT INTO project_phases (project_id, name, phase_order, status, search_params, block_size,
		                             depends_on, activation_condition, completion_condition)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, p.ProjectID, p.Name, p.PhaseOrder, string(p.Status), paramsJSON, p.BlockSize,
		pq.Array(p.DependsOn), string(p.ActivationCondition), string(p.CompletionCondition))
	if err := row.Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return phase.Phase{}, fmt.Errorf("insert phase: %w", err)
	}
	return p, nil
}

func scanPhase(row rowScanner) (phase.Phase, error) {
	var p phase.Phase
	var status, activation, completion string
	var paramsJSON []byte
	var dependsOn pq.StringArray
	var searchJobID sql.NullInt64
	if err := row.Scan(&p.ID, &p.ProjectID, &p.Name, &p.PhaseOrder, &status, &paramsJSON, &p.BlockSize,
		&dependsOn, &activation, &completion, &searchJobID, &p.Totals.TotalTested, &p.Totals.TotalFound,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return phase.Phase{}, err
	}
	p.Status = phase.Status(status)
	p.ActivationCondition = phase.ActivationCondition(activation)
	p.CompletionCondition = phase.CompletionCondition(completion)
	p.DependsOn = []string(dependsOn)
	p.SearchJobID = int64Ptr(searchJobID)
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &p.SearchParams); err != nil {
			return phase.Phase{}, fmt.Errorf("unmarshal search params: %w", err)
		}
	}
	return p, nil
}

// FleetSnapshot aggregates currently-heartbeating nodes into the summary the
// Orchestrator consults instead of raw heartbeat rows (spec.md §4.4).
func (s *Store) FleetSnapshot(ctx context.Context, heartbeatFreshWindow time.Duration, now time.Time) (project.FleetSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cores, ram_gb FROM operator_nodes WHERE last_heartbeat >= $1
	`, now.Add(-heartbeatFreshWindow))
	if err != nil {
		return project.FleetSummary{}, err
	}
	defer rows.Close()

	summary := project.FleetSummary{ActiveSearchTypes: map[string]bool{}}
	for rows.Next() {
		var cores, ram int
		if err := rows.Scan(&cores, &ram); err != nil {
			return project.FleetSummary{}, err
		}
		summary.TotalCores += cores
		if ram > summary.MaxRAMGB {
			summary.MaxRAMGB = ram
		}
		summary.WorkerCount++
	}
	if err := rows.Err(); err != nil {
		return project.FleetSummary{}, err
	}

	typeRows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT sj.search_type
		FROM search_jobs sj
		WHERE sj.status = $1
	`, string(searchjob.StatusRunning))
	if err != nil {
		return project.FleetSummary{}, err
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var t string
		if err := typeRows.Scan(&t); err != nil {
			return project.FleetSummary{}, err
		}
		summary.ActiveSearchTypes[t] = true
	}
	return summary, typeRows.Err()
}
