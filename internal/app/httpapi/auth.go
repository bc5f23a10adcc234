package httpapi

import (
	"context"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/oddurs/darkreach-coordinator/internal/app/dispatch"
	"github.com/oddurs/darkreach-coordinator/internal/app/domain/operator"
)

type ctxKey string

const (
	ctxOperatorKey   ctxKey = "httpapi.operator"
	ctxCallerKindKey ctxKey = "httpapi.caller_kind"
)

// Caller kinds recorded on the request context by wrapWithAuth.
const (
	callerOperator CallerKind = "operator"
	callerInternal CallerKind = "internal_worker"
	callerAdmin    CallerKind = "admin"
)

// CallerKind distinguishes which credential authenticated a request.
type CallerKind string

// operatorAuthenticator resolves a bearer api_key to its owning operator;
// satisfied by *dispatch.Dispatcher.
type operatorAuthenticator interface {
	AuthenticateOperator(ctx context.Context, apiKey string) (operator.Operator, error)
}

var _ operatorAuthenticator = (*dispatch.Dispatcher)(nil)

// bcryptTokenSet is a small, fixed list of bcrypt-hashed bearer tokens
// (internal worker fleets or admins). Unlike per-operator api keys, this
// list is short enough that a linear bcrypt.CompareHashAndPassword scan per
// request is cheap, so bcrypt's random salt is not a lookup obstacle here —
// the deviation that pushed operator api keys onto a SHA-256 digest instead
// (see dispatch.HashAPIKey) does not apply.
type bcryptTokenSet []string

func (set bcryptTokenSet) matches(token string) bool {
	if token == "" {
		return false
	}
	for _, hash := range set {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil {
			return true
		}
	}
	return false
}

// authGate controls which credential kinds a route accepts.
type authGate struct {
	operators operatorAuthenticator
	internal  bcryptTokenSet
	admin     bcryptTokenSet
}

func newAuthGate(operators operatorAuthenticator, internalTokenHashes, adminTokenHashes []string) *authGate {
	return &authGate{operators: operators, internal: bcryptTokenSet(internalTokenHashes), admin: bcryptTokenSet(adminTokenHashes)}
}

// requireOperator authenticates a per-volunteer api_key and stores the
// resolved operator.Operator on the request context.
func (g *authGate) requireOperator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			unauthorised(w)
			return
		}
		op, err := g.operators.AuthenticateOperator(r.Context(), token)
		if err != nil {
			unauthorised(w)
			return
		}
		ctx := context.WithValue(r.Context(), ctxOperatorKey, op)
		ctx = context.WithValue(ctx, ctxCallerKindKey, callerOperator)
		next(w, r.WithContext(ctx))
	}
}

// requireOperatorOrInternal authenticates either an operator api_key or an
// internal-worker bearer token (spec.md §4.1's internal dispatch workers
// have no operator/volunteer identity).
func (g *authGate) requireOperatorOrInternal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			unauthorised(w)
			return
		}
		if g.internal.matches(token) {
			ctx := context.WithValue(r.Context(), ctxCallerKindKey, callerInternal)
			next(w, r.WithContext(ctx))
			return
		}
		op, err := g.operators.AuthenticateOperator(r.Context(), token)
		if err != nil {
			unauthorised(w)
			return
		}
		ctx := context.WithValue(r.Context(), ctxOperatorKey, op)
		ctx = context.WithValue(ctx, ctxCallerKindKey, callerOperator)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin authenticates an admin bearer token for project/phase
// administration endpoints.
func (g *authGate) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if !g.admin.matches(token) {
			unauthorised(w)
			return
		}
		ctx := context.WithValue(r.Context(), ctxCallerKindKey, callerAdmin)
		next(w, r.WithContext(ctx))
	}
}

func operatorFromContext(ctx context.Context) (operator.Operator, bool) {
	op, ok := ctx.Value(ctxOperatorKey).(operator.Operator)
	return op, ok
}

func unauthorised(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid bearer credential"})
}
