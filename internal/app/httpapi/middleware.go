package httpapi

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/oddurs/darkreach-coordinator/internal/app/logging"
)

// wrapWithRequestID echoes x-request-id if the caller supplied one,
// generating a uuid otherwise, and stamps it onto the request context so
// every downstream log line (internal/app/logging.WithContext) and error
// response can correlate to it (spec.md §7).
func wrapWithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("x-request-id"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("x-request-id", id)
		ctx := logging.WithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// wrapWithCORS allows cross-origin requests from the configured origins and
// short-circuits preflight requests, mirroring the teacher's permissive
// dashboard CORS handling.
func wrapWithCORS(origins []string, next http.Handler) http.Handler {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowAll {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		} else if _, ok := allowed[origin]; ok {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, x-request-id")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limiterSet holds one token bucket per caller (bearer token when present,
// otherwise client IP) so one noisy operator can't starve others. Mirrors
// SecurityConfig.RateLimit{PerMinute,Burst}.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
	burst    int
}

func newLimiterSet(perMinute, burst int) *limiterSet {
	return &limiterSet{limiters: make(map[string]*rate.Limiter), perMin: perMinute, burst: burst}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.limiters[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(float64(s.perMin)/60.0), s.burst)
	s.limiters[key] = l
	return l
}

// wrapWithRateLimit rejects with 429 once a caller exceeds perMinute
// requests/burst. A disabled limiter (enabled=false) is a pass-through.
func wrapWithRateLimit(enabled bool, perMinute, burst int, next http.Handler) http.Handler {
	if !enabled {
		return next
	}
	limiters := newLimiterSet(perMinute, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)
		if !limiters.get(key).Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if token := extractBearerToken(r); token != "" {
		return "key:" + token
	}
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return "ip:" + host
}

// statusCapturingWriter records the status code written so wrapWithAudit can
// log it after the handler runs.
type statusCapturingWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// wrapWithAudit appends one auditEntry per request to the ring buffer (and,
// if configured, a durable sink), identifying the caller by whichever
// credential requireOperator/requireOperatorOrInternal/requireAdmin stamped
// onto the request context.
func wrapWithAudit(next http.Handler, audit *auditLog) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusCapturingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		entry := auditEntry{
			Time:       time.Now().UTC(),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     sw.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		}
		if kind, ok := r.Context().Value(ctxCallerKindKey).(CallerKind); ok {
			entry.CallerKind = string(kind)
		}
		if op, ok := operatorFromContext(r.Context()); ok {
			entry.OperatorID = op.ID
		}
		audit.add(entry)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.Fields(auth)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
