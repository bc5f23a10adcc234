package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/oddurs/darkreach-coordinator/internal/app/metrics"
)

// newRouter wires every handler method to its path, mounting both the
// literal spec.md §6 paths and their /api/v1-versioned equivalents (spec.md
// §6: "versioned under /api/v1, with compatible legacy aliases"), plus the
// SPEC_FULL-supplemented dashboard and verification-claim routes.
func newRouter(h *handler, gate *authGate) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.HandleFunc("/system/status", h.systemStatus).Methods(http.MethodGet)
	r.HandleFunc("/admin/audit", gate.requireAdmin(h.adminAudit)).Methods(http.MethodGet)

	mountOperatorRoutes(r, h, gate)
	mountOperatorRoutes(r.PathPrefix("/api/v1").Subrouter(), h, gate)

	mountNodeRoutes(r, h, gate)
	mountNodeRoutes(r.PathPrefix("/api/v1").Subrouter(), h, gate)

	mountDashboardRoutes(r.PathPrefix("/api/v1").Subrouter(), h, gate)

	return r
}

func mountOperatorRoutes(r *mux.Router, h *handler, gate *authGate) {
	r.HandleFunc("/operators/register", h.registerOperator).Methods(http.MethodPost)
	r.HandleFunc("/operators/rotate-key", gate.requireOperator(h.rotateAPIKey)).Methods(http.MethodPost)
	r.HandleFunc("/operators/stats", gate.requireOperator(h.operatorStats)).Methods(http.MethodGet)
	r.HandleFunc("/operators/leaderboard", h.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/operators/{username}", h.operatorByUsername).Methods(http.MethodGet)
}

func mountNodeRoutes(r *mux.Router, h *handler, gate *authGate) {
	r.HandleFunc("/nodes/register", gate.requireOperatorOrInternal(h.registerNode)).Methods(http.MethodPost)
	r.HandleFunc("/nodes/heartbeat", gate.requireOperatorOrInternal(h.heartbeat)).Methods(http.MethodPost)
	r.HandleFunc("/nodes/work", gate.requireOperatorOrInternal(h.claimWork)).Methods(http.MethodGet)
	r.HandleFunc("/nodes/result", gate.requireOperatorOrInternal(h.submitResult)).Methods(http.MethodPost)
	r.HandleFunc("/nodes/latest", h.latestRelease).Methods(http.MethodGet)
	r.HandleFunc("/nodes/verify-work", gate.requireOperatorOrInternal(h.claimVerification)).Methods(http.MethodGet)
	r.HandleFunc("/nodes/verify-result", gate.requireOperatorOrInternal(h.submitVerification)).Methods(http.MethodPost)
}

func mountDashboardRoutes(r *mux.Router, h *handler, gate *authGate) {
	r.HandleFunc("/primes", h.listPrimes).Methods(http.MethodGet)
	r.HandleFunc("/projects", h.listProjects).Methods(http.MethodGet)
	r.HandleFunc("/projects", gate.requireAdmin(h.createProject)).Methods(http.MethodPost)
	r.HandleFunc("/projects/{slug}", h.projectBySlug).Methods(http.MethodGet)
}
