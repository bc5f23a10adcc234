package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
)

// registerOperator handles POST /operators/register (spec.md §6).
func (h *handler) registerOperator(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, apperr.BadRequestf("invalid request body: %v", err))
		return
	}
	payload.Username = strings.TrimSpace(payload.Username)
	payload.Email = strings.TrimSpace(payload.Email)
	if len(payload.Username) < 3 || len(payload.Username) > 32 {
		writeError(w, apperr.BadRequestf("username must be 3-32 characters"))
		return
	}
	if !strings.Contains(payload.Email, "@") {
		writeError(w, apperr.BadRequestf("email must contain @"))
		return
	}

	registered, err := h.dispatcher.RegisterOperator(r.Context(), payload.Username, payload.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"api_key":  registered.APIKey,
		"username": registered.Operator.Username,
	})
}

// rotateAPIKey handles POST /operators/rotate-key, authenticated.
func (h *handler) rotateAPIKey(w http.ResponseWriter, r *http.Request) {
	op, ok := operatorFromContext(r.Context())
	if !ok {
		writeError(w, apperr.Unauthorizedf("operator identity required"))
		return
	}
	apiKey, err := h.dispatcher.RotateAPIKey(r.Context(), op.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_key": apiKey})
}

// operatorStats handles GET /operators/stats, authenticated.
func (h *handler) operatorStats(w http.ResponseWriter, r *http.Request) {
	op, ok := operatorFromContext(r.Context())
	if !ok {
		writeError(w, apperr.Unauthorizedf("operator identity required"))
		return
	}
	stats, err := h.operators.GetStats(r.Context(), op.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// leaderboard handles GET /operators/leaderboard, public.
func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	team := strings.TrimSpace(r.URL.Query().Get("team"))
	limit, err := parseLimitParam(r.URL.Query().Get("limit"), 100)
	if err != nil {
		writeError(w, apperr.BadRequestf("%v", err))
		return
	}
	entries, err := h.operators.ListLeaderboard(r.Context(), team, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// operatorByUsername handles GET /api/v1/operators/{username}, a supplemented
// public read endpoint (SPEC_FULL.md "Dashboard read endpoints").
func (h *handler) operatorByUsername(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	op, err := h.operators.GetOperatorByUsername(r.Context(), username)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.operators.GetStats(r.Context(), op.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
