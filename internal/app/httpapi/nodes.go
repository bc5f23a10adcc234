package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/operator"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/prime"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/searchjob"
)

// registerNode handles POST /nodes/register. Operators attach their worker
// id to their own volunteer identity; internal-worker tokens register
// anonymous (no-volunteer) nodes.
func (h *handler) registerNode(w http.ResponseWriter, r *http.Request) {
	var n operator.Node
	if err := decodeJSON(r.Body, &n); err != nil {
		writeError(w, apperr.BadRequestf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(n.WorkerID) == "" {
		writeError(w, apperr.BadRequestf("worker_id is required"))
		return
	}

	var volunteerID string
	if op, ok := operatorFromContext(r.Context()); ok {
		volunteerID = op.ID
	}
	saved, err := h.dispatcher.RegisterNode(r.Context(), volunteerID, n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "worker_id": saved.WorkerID})
}

// heartbeat handles POST /nodes/heartbeat.
func (h *handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		WorkerID string `json:"worker_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperr.BadRequestf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(payload.WorkerID) == "" {
		writeError(w, apperr.BadRequestf("worker_id is required"))
		return
	}

	command, err := h.dispatcher.Heartbeat(r.Context(), payload.WorkerID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := map[string]any{"ok": true}
	if command != nil {
		resp["command"] = *command
	}
	writeJSON(w, http.StatusOK, resp)
}

// claimWork handles GET /nodes/work. 204 No Content on NoWork, per §7.
func (h *handler) claimWork(w http.ResponseWriter, r *http.Request) {
	workerID := strings.TrimSpace(r.URL.Query().Get("worker_id"))
	if workerID == "" {
		writeError(w, apperr.BadRequestf("worker_id query param is required"))
		return
	}
	caps, err := parseCapabilities(r)
	if err != nil {
		writeError(w, apperr.BadRequestf("%v", err))
		return
	}

	var volunteerID *string
	if op, ok := operatorFromContext(r.Context()); ok {
		volunteerID = &op.ID
	}

	assignment, err := h.dispatcher.ClaimWork(r.Context(), workerID, volunteerID, caps)
	if err != nil {
		writeError(w, err)
		return
	}
	if assignment == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

func parseCapabilities(r *http.Request) (searchjob.Capabilities, error) {
	q := r.URL.Query()
	caps := searchjob.Capabilities{
		OS:   strings.TrimSpace(q.Get("os")),
		Arch: strings.TrimSpace(q.Get("arch")),
	}
	if v := strings.TrimSpace(q.Get("cores")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return caps, apperr.BadRequestf("cores must be an integer")
		}
		caps.Cores = n
	}
	if v := strings.TrimSpace(q.Get("ram_gb")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return caps, apperr.BadRequestf("ram_gb must be an integer")
		}
		caps.RAMGB = n
	}
	if v := strings.TrimSpace(q.Get("has_gpu")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return caps, apperr.BadRequestf("has_gpu must be a boolean")
		}
		caps.HasGPU = b
	}
	return caps, nil
}

// submitResult handles POST /nodes/result.
func (h *handler) submitResult(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		BlockID int64  `json:"block_id"`
		WorkerID string `json:"worker_id"`
		Tested  int64  `json:"tested"`
		Found   int64  `json:"found"`
		Primes  []struct {
			Expression  string  `json:"expression"`
			Form        string  `json:"form"`
			Digits      int64   `json:"digits"`
			ProofMethod string  `json:"proof_method"`
			Certificate *string `json:"certificate"`
		} `json:"primes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperr.BadRequestf("invalid request body: %v", err))
		return
	}
	if payload.BlockID == 0 {
		writeError(w, apperr.BadRequestf("block_id is required"))
		return
	}
	if strings.TrimSpace(payload.WorkerID) == "" {
		writeError(w, apperr.BadRequestf("worker_id is required"))
		return
	}

	primes := make([]prime.Prime, 0, len(payload.Primes))
	for _, p := range payload.Primes {
		primes = append(primes, prime.Prime{
			Expression:  p.Expression,
			Form:        p.Form,
			Digits:      p.Digits,
			ProofMethod: p.ProofMethod,
			Certificate: p.Certificate,
		})
	}

	_, err := h.dispatcher.SubmitResult(r.Context(), payload.BlockID, payload.WorkerID, payload.Tested, payload.Found, primes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// latestRelease handles GET /nodes/latest.
func (h *handler) latestRelease(w http.ResponseWriter, r *http.Request) {
	channel := strings.TrimSpace(r.URL.Query().Get("channel"))
	rel, err := h.releases.Resolve(r.Context(), channel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rel)
}
