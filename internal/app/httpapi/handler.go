package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/dispatch"
	"github.com/oddurs/darkreach-coordinator/internal/app/release"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
	"github.com/oddurs/darkreach-coordinator/internal/app/system"
	"github.com/oddurs/darkreach-coordinator/internal/app/verification"
)

// handler holds the dependencies every route method closes over: the
// Dispatcher and Pipeline for write paths, the read-oriented store
// sub-interfaces for the dashboard/listing endpoints, the release manifest
// resolver for GET /nodes/latest, and the system manager for health/status.
type handler struct {
	dispatcher   *dispatch.Dispatcher
	verification *verification.Pipeline
	releases     *release.Manager

	operators storage.OperatorStore
	primes    storage.PrimeStore
	projects  storage.ProjectStore

	services *system.Manager
	audit    *auditLog
}

func newHandler(
	dispatcher *dispatch.Dispatcher,
	pipeline *verification.Pipeline,
	releases *release.Manager,
	operators storage.OperatorStore,
	primes storage.PrimeStore,
	projects storage.ProjectStore,
	services *system.Manager,
	audit *auditLog,
) *handler {
	return &handler{
		dispatcher:   dispatcher,
		verification: pipeline,
		releases:     releases,
		operators:    operators,
		primes:       primes,
		projects:     projects,
		services:     services,
		audit:        audit,
	}
}

// health handles GET /healthz.
func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// systemStatus handles GET /system/status: the descriptors of every
// lifecycle-managed component (the HTTP API itself, the tick Scheduler,
// the coordinator host report).
func (h *handler) systemStatus(w http.ResponseWriter, r *http.Request) {
	var descriptors []system.Descriptor
	if h.services != nil {
		descriptors = h.services.Descriptors()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"services": descriptors,
	})
}

// adminAudit handles GET /admin/audit, admin-only: the in-memory ring buffer
// of recent requests, optionally filtered.
func (h *handler) adminAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []auditEntry{})
		return
	}
	limit, err := parseLimitParam(r.URL.Query().Get("limit"), 200)
	if err != nil {
		writeError(w, apperr.BadRequestf("%v", err))
		return
	}
	offset := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v < 0 {
			writeError(w, apperr.BadRequestf("offset must be a non-negative integer"))
			return
		}
		offset = v
	}

	q := r.URL.Query()
	operatorID := strings.TrimSpace(q.Get("operator_id"))
	callerKind := strings.ToLower(strings.TrimSpace(q.Get("caller_kind")))
	method := strings.ToLower(strings.TrimSpace(q.Get("method")))
	pathContains := strings.ToLower(strings.TrimSpace(q.Get("contains")))
	var statusFilter *int
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v <= 0 {
			writeError(w, apperr.BadRequestf("status must be a positive integer"))
			return
		}
		statusFilter = &v
	}

	entries := h.audit.listLimit(limit + offset)
	filtered := make([]auditEntry, 0, len(entries))
	for _, e := range entries {
		if operatorID != "" && e.OperatorID != operatorID {
			continue
		}
		if callerKind != "" && strings.ToLower(e.CallerKind) != callerKind {
			continue
		}
		if method != "" && strings.ToLower(e.Method) != method {
			continue
		}
		if pathContains != "" && !strings.Contains(strings.ToLower(e.Path), pathContains) {
			continue
		}
		if statusFilter != nil && e.Status != *statusFilter {
			continue
		}
		filtered = append(filtered, e)
	}
	if offset > 0 {
		if offset >= len(filtered) {
			filtered = []auditEntry{}
		} else {
			filtered = filtered[offset:]
		}
	}
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	writeJSON(w, http.StatusOK, filtered)
}
