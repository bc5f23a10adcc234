package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/oddurs/darkreach-coordinator/internal/app/apperr"
)

// decodeJSON decodes a JSON request body, rejecting unknown fields the same
// way the teacher's handler.go does.
func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusForCode maps the §7 taxonomy onto HTTP status codes, per
// SPEC_FULL.md's A.3: 401, 404, 409, 400, 409, 204, 500, 503.
func statusForCode(code apperr.Code) int {
	switch code {
	case apperr.Unauthorized:
		return http.StatusUnauthorized
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	case apperr.BadRequest:
		return http.StatusBadRequest
	case apperr.NotOwned:
		return http.StatusConflict
	case apperr.NoWork:
		return http.StatusNoContent
	case apperr.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// writeError translates err to its taxonomy status and a {"error": message}
// body. A bare (non-*apperr.Error) err is treated as Internal, per
// apperr.CodeOf's documented fallback.
func writeError(w http.ResponseWriter, err error) {
	status := statusForCode(apperr.CodeOf(err))
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
