// Dashboard read endpoints (SPEC_FULL.md Supplemented Features): ordinary
// JSON aggregation queries the original dashboard served, carried forward
// without the static web UI spec.md excludes.
package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/phase"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/project"
	"github.com/oddurs/darkreach-coordinator/internal/app/orchestrator"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
)

// listPrimes handles GET /api/v1/primes, whitelisting sort column/direction
// against storage.AllowedPrimeSortColumns/AllowedSortDirections per spec.md
// §6's injection-prevention requirement.
func (h *handler) listPrimes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sortColumn := strings.ToLower(strings.TrimSpace(q.Get("sort")))
	if sortColumn == "" {
		sortColumn = "found_at"
	}
	sortDirection := strings.ToLower(strings.TrimSpace(q.Get("dir")))
	if sortDirection == "" {
		sortDirection = "desc"
	}
	if !storage.AllowedPrimeSortColumns[sortColumn] {
		writeError(w, apperr.BadRequestf("unsupported sort column %q", sortColumn))
		return
	}
	if !storage.AllowedSortDirections[sortDirection] {
		writeError(w, apperr.BadRequestf("unsupported sort direction %q", sortDirection))
		return
	}
	limit, err := parseLimitParam(q.Get("limit"), 100)
	if err != nil {
		writeError(w, apperr.BadRequestf("%v", err))
		return
	}
	offset := 0
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v < 0 {
			writeError(w, apperr.BadRequestf("offset must be a non-negative integer"))
			return
		}
		offset = v
	}

	primes, err := h.primes.ListPrimes(r.Context(), sortColumn, sortDirection, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, primes)
}

// listProjects handles GET /api/v1/projects.
func (h *handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

// projectBySlug handles GET /api/v1/projects/{slug}, including its phase
// list and a freshly computed cost estimate.
func (h *handler) projectBySlug(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	p, err := h.projects.GetProjectBySlug(r.Context(), slug)
	if err != nil {
		writeError(w, err)
		return
	}
	phases, err := h.projects.ListPhases(r.Context(), p.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	cost := orchestrator.EstimateProjectCost(p, phases)
	writeJSON(w, http.StatusOK, map[string]any{
		"project": p,
		"phases":  phases,
		"cost":    cost,
	})
}

// createProject handles admin-only POST /api/v1/projects: creates a project
// and its initial phase DAG in one transactional call (storage.ProjectStore.
// CreateProjectWithPhases), per spec.md §7's "transactional multi-row
// insert for ... project+phases creation" store guarantee.
func (h *handler) createProject(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Slug           string                 `json:"slug"`
		Name           string                 `json:"name"`
		Objective      project.Objective      `json:"objective"`
		Form           string                 `json:"form"`
		Target         project.Target         `json:"target"`
		Competitive    bool                   `json:"competitive"`
		Strategy       string                 `json:"strategy"`
		Infrastructure *project.Infrastructure `json:"infrastructure"`
		Budget         *project.Budget         `json:"budget"`
		Phases         []phase.Config         `json:"phases"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperr.BadRequestf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(payload.Slug) == "" || strings.TrimSpace(payload.Name) == "" {
		writeError(w, apperr.BadRequestf("slug and name are required"))
		return
	}
	if payload.Target.RangeEnd <= payload.Target.RangeStart {
		writeError(w, apperr.BadRequestf("target range_end must exceed range_start"))
		return
	}
	if err := validatePhaseGraph(payload.Phases); err != nil {
		writeError(w, err)
		return
	}

	p := project.Project{
		Slug: payload.Slug, Name: payload.Name, Objective: payload.Objective, Form: payload.Form,
		Status: project.StatusDraft, Target: payload.Target, Competitive: payload.Competitive,
		Strategy: payload.Strategy, Infrastructure: payload.Infrastructure, Budget: payload.Budget,
	}
	phases := make([]phase.Phase, 0, len(payload.Phases))
	for _, cfg := range payload.Phases {
		phases = append(phases, phase.Phase{
			Name: cfg.Name, PhaseOrder: cfg.PhaseOrder, SearchParams: cfg.SearchParams, BlockSize: cfg.BlockSize,
			DependsOn: cfg.DependsOn, ActivationCondition: cfg.ActivationCondition, CompletionCondition: cfg.CompletionCondition,
			Status: phase.StatusPending,
		})
	}

	created, createdPhases, err := h.projects.CreateProjectWithPhases(r.Context(), p, phases)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"project": created, "phases": createdPhases})
}

// validatePhaseGraph rejects cyclic depends_on references or references to
// names absent from the set, per spec.md §8 item 6.
func validatePhaseGraph(phases []phase.Config) error {
	names := make(map[string]bool, len(phases))
	for _, p := range phases {
		if p.Name == "" {
			return apperr.BadRequestf("every phase requires a name")
		}
		names[p.Name] = true
	}
	for _, p := range phases {
		for _, dep := range p.DependsOn {
			if !names[dep] {
				return apperr.BadRequestf("phase %q depends on unknown phase %q", p.Name, dep)
			}
		}
	}

	visiting := make(map[string]bool)
	visited := make(map[string]bool)
	byName := make(map[string]phase.Config, len(phases))
	for _, p := range phases {
		byName[p.Name] = p
	}
	var visit func(name string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}
		if visiting[name] {
			return apperr.BadRequestf("cyclic phase dependency detected at %q", name)
		}
		visiting[name] = true
		for _, dep := range byName[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		visiting[name] = false
		visited[name] = true
		return nil
	}
	for _, p := range phases {
		if err := visit(p.Name); err != nil {
			return err
		}
	}
	return nil
}
