package httpapi

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/oddurs/darkreach-coordinator/internal/app/dispatch"
	"github.com/oddurs/darkreach-coordinator/internal/app/logging"
	"github.com/oddurs/darkreach-coordinator/internal/app/metrics"
	"github.com/oddurs/darkreach-coordinator/internal/app/release"
	"github.com/oddurs/darkreach-coordinator/internal/app/storage"
	"github.com/oddurs/darkreach-coordinator/internal/app/system"
	"github.com/oddurs/darkreach-coordinator/internal/app/verification"
	"github.com/oddurs/darkreach-coordinator/internal/config"
)

// Service exposes the HTTP API and fits into the system manager lifecycle.
type Service struct {
	addr    string
	server  *http.Server
	handler http.Handler
	log     *logging.Logger
}

// NewService assembles the router and its middleware chain: request-id
// correlation, then rate limiting, then CORS (so OPTIONS preflight never
// touches auth), then auth, with an audit entry recorded for every request
// and metrics instrumenting the whole chain.
func NewService(
	cfg config.ServerConfig,
	security config.SecurityConfig,
	auth config.AuthConfig,
	dispatcher *dispatch.Dispatcher,
	pipeline *verification.Pipeline,
	releases *release.Manager,
	operators storage.OperatorStore,
	primes storage.PrimeStore,
	projects storage.ProjectStore,
	services *system.Manager,
	db *sql.DB,
	log *logging.Logger,
) *Service {
	if log == nil {
		log = logging.New("http", "info", "json")
	}

	var sink auditSink
	if path := strings.TrimSpace(os.Getenv("AUDIT_LOG_PATH")); path != "" {
		if fileSink, err := newFileAuditSink(path); err == nil {
			sink = fileSink
		} else {
			log.WithError(err).Warn("audit log file not configured")
		}
	} else if db != nil {
		sink = newPostgresAuditSink(db)
	}
	audit := newAuditLog(300, sink)

	gate := newAuthGate(dispatcher, auth.InternalWorkerTokens, auth.AdminTokens)
	h := newHandler(dispatcher, pipeline, releases, operators, primes, projects, services, audit)

	var router http.Handler = newRouter(h, gate)
	router = wrapWithAudit(router, audit)
	router = wrapWithCORS(security.CORSOrigins, router)
	router = wrapWithRateLimit(security.RateLimitEnabled, security.RateLimitPerMinute, security.RateLimitBurst, router)
	router = wrapWithRequestID(router)
	router = metrics.InstrumentHandler(router)

	return &Service{
		addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		handler: router,
		log:     log,
	}
}

var _ system.Service = (*Service)(nil)

func (s *Service) Name() string { return "http" }

func (s *Service) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("http server error")
		}
	}()
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Service) Descriptor() system.Descriptor {
	return system.Descriptor{Name: "http", Layer: "transport", Notes: "REST API: operator/node dispatch, verification claims, dashboard reads"}
}
