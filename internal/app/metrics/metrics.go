// Package metrics exposes the coordinator's Prometheus collectors: HTTP
// instrumentation plus dispatch/verification/tick counters. Grounded on
// internal/app/metrics/metrics.go's Registry/InstrumentHandler shape,
// trimmed of the teacher's per-product ObservationHooks (they wrapped a
// core.ObservationHooks type that belonged to the deleted blockchain
// domain packages) and given coordinator-specific collectors instead.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coordinatord"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Current number of in-flight HTTP requests.",
	})

	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests handled.",
	}, []string{"method", "path", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "Duration of HTTP requests.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"method", "path"})

	dispatchClaims = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "claims_total",
		Help:      "Total number of work block claim attempts.",
	}, []string{"result"})

	dispatchSubmissions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dispatch",
		Name:      "submissions_total",
		Help:      "Total number of work block result submissions.",
	}, []string{"result"})

	verificationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verification",
		Name:      "outcomes_total",
		Help:      "Total number of completed verification entries by outcome.",
	}, []string{"outcome"})

	primesFound = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "primes",
		Name:      "found_total",
		Help:      "Total number of primes accepted, by form.",
	}, []string{"form"})

	tickDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "duration_seconds",
		Help:      "Duration of each named tick step.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"step"})

	// tickDrift is the gap between a tick's actual start and its nominal
	// scheduled start (spec.md §4.6: drift is itself a recorded metric).
	tickDrift = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "tick",
		Name:      "drift_seconds",
		Help:      "Most recent tick's drift from its nominal scheduled time.",
	})
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		dispatchClaims,
		dispatchSubmissions,
		verificationOutcomes,
		primesFound,
		tickDuration,
		tickDrift,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP request metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordClaim records one claim_work/batch-claim attempt outcome: "claimed",
// "empty" (no eligible work) or "error".
func RecordClaim(result string) {
	dispatchClaims.WithLabelValues(result).Inc()
}

// RecordSubmission records one submit_result outcome: "ok" or "error".
func RecordSubmission(result string) {
	dispatchSubmissions.WithLabelValues(result).Inc()
}

// RecordVerificationOutcome records one completed verification: "matched"
// or "conflict".
func RecordVerificationOutcome(outcome string) {
	verificationOutcomes.WithLabelValues(outcome).Inc()
}

// RecordPrimeFound increments the discovered-prime counter for form.
func RecordPrimeFound(form string) {
	primesFound.WithLabelValues(form).Inc()
}

// RecordTickStep observes one tick step's duration.
func RecordTickStep(step string, duration time.Duration) {
	tickDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// SetTickDrift records the most recent tick's scheduling drift.
func SetTickDrift(drift time.Duration) {
	tickDrift.Set(drift.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses path parameters into a fixed label so the
// requests_total/duration_seconds series don't grow unbounded per id.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	collapsible := map[string]bool{
		"blocks": true, "projects": true, "phases": true, "operators": true,
		"nodes": true, "verifications": true, "primes": true,
	}
	for i, p := range parts {
		if i == 0 {
			continue
		}
		if collapsible[parts[i-1]] && looksLikeID(p) {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

func looksLikeID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '-' && !(r >= 'a' && r <= 'f') && !(r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}
