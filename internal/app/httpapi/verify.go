// Verification work endpoints: a worker that has no original work pulls
// from this queue the same way it pulls regular blocks from /nodes/work.
// Grounded on original_source/src/db/trust.rs's claim_verification_block/
// submit_verification_result, which spec.md §4.3 describes at the pipeline
// level without naming an HTTP route — supplemented here under /nodes/
// verify-work and /nodes/verify-result, consistent with the §6 table's
// /nodes/* naming convention.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
)

func (h *handler) claimVerification(w http.ResponseWriter, r *http.Request) {
	workerID := strings.TrimSpace(r.URL.Query().Get("worker_id"))
	if workerID == "" {
		writeError(w, apperr.BadRequestf("worker_id query param is required"))
		return
	}
	entry, err := h.verification.ClaimVerification(r.Context(), workerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if entry == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handler) submitVerification(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VerificationID int64  `json:"verification_id"`
		WorkerID       string `json:"worker_id"`
		Tested         int64  `json:"tested"`
		Found          int64  `json:"found"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperr.BadRequestf("invalid request body: %v", err))
		return
	}
	if payload.VerificationID == 0 || strings.TrimSpace(payload.WorkerID) == "" {
		writeError(w, apperr.BadRequestf("verification_id and worker_id are required"))
		return
	}

	outcome, err := h.verification.SubmitVerification(r.Context(), payload.VerificationID, payload.WorkerID, payload.Tested, payload.Found)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcome": outcome.Outcome, "entry": outcome.Entry})
}
