package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/oddurs/darkreach-coordinator/internal/app/dispatch"
	"github.com/oddurs/darkreach-coordinator/internal/app/eventbus"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage/memory"
)

const internalTokenPlain = "internal-fleet-token"

func newTestRouter(t *testing.T) (http.Handler, *dispatch.Dispatcher, *memory.Store) {
	t.Helper()
	store := memory.New()
	d := dispatch.New(store, store, eventbus.New(nil), nil)

	internalHash, err := bcrypt.GenerateFromPassword([]byte(internalTokenPlain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash internal token: %v", err)
	}

	gate := newAuthGate(d, []string{string(internalHash)}, nil)
	h := newHandler(d, nil, nil, store, store, store, nil, newAuditLog(10, nil))
	return newRouter(h, gate), d, store
}

func doRequest(h http.Handler, method, path, body, bearer string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if bearer != "" {
		r.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestHealthzReturnsOK(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRegisterOperatorViaHTTP(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/operators/register",
		`{"username":"alice","email":"alice@example.com"}`, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		APIKey   string `json:"api_key"`
		Username string `json:"username"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Username != "alice" || resp.APIKey == "" {
		t.Fatalf("unexpected response body: %+v", resp)
	}
}

func TestRegisterOperatorRejectsShortUsername(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/operators/register",
		`{"username":"ab","email":"a@example.com"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a too-short username, got %d", rec.Code)
	}
}

func TestClaimWorkRequiresBearerToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/nodes/work?worker_id=w1", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", rec.Code)
	}
}

func TestClaimWorkAcceptsInternalToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/nodes/work?worker_id=w1", "", internalTokenPlain)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 no-work with an empty store, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRotateAPIKeyRequiresOperatorCredential(t *testing.T) {
	router, d, _ := newTestRouter(t)
	ctx := httptest.NewRequest(http.MethodPost, "/operators/rotate-key", nil).Context()

	reg, err := d.RegisterOperator(ctx, "bob", "bob@example.com")
	if err != nil {
		t.Fatalf("register operator: %v", err)
	}

	unauthed := doRequest(router, http.MethodPost, "/operators/rotate-key", "", "")
	if unauthed.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", unauthed.Code)
	}

	authed := doRequest(router, http.MethodPost, "/operators/rotate-key", "", reg.APIKey)
	if authed.Code != http.StatusOK {
		t.Fatalf("expected 200 with a valid api_key, got %d: %s", authed.Code, authed.Body.String())
	}
}

func TestAdminAuditRequiresAdminToken(t *testing.T) {
	router, _, _ := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/admin/audit", "", internalTokenPlain)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected an internal-worker token to be rejected for an admin-only route, got %d", rec.Code)
	}
}
