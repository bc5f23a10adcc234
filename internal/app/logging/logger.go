// Package logging provides structured, request-correlated logging built on
// logrus. Grounded on infrastructure/logging/logger.go's context-key/
// trace-ID pattern, trimmed to the fields the coordinator actually needs
// (request correlation per spec.md §7) and stripped of the teacher's
// blockchain/crypto-specific helpers.
package logging

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ContextKey is the type for context keys carrying correlation data.
type ContextKey string

const (
	// RequestIDKey is the context key for the x-request-id value.
	RequestIDKey ContextKey = "request_id"
)

// Logger wraps logrus.Logger with request-id correlation.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a Logger for service, with the given level ("debug".."fatal")
// and format ("json" or text).
func New(service, level, format string) *Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	if format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	log.SetOutput(os.Stdout)

	return &Logger{Logger: log, service: service}
}

// NewFromEnv builds a logger using LOG_LEVEL/LOG_FORMAT, defaulting to
// info/json.
func NewFromEnv(service string) *Logger {
	level := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if level == "" {
		level = "info"
	}
	format := strings.TrimSpace(os.Getenv("LOG_FORMAT"))
	if format == "" {
		format = "json"
	}
	return New(service, level, format)
}

// WithContext returns a log entry carrying the service name and, if
// present, the request id pulled from ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("service", l.service)
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		entry = entry.WithField("request_id", requestID)
	}
	return entry
}

// WithFields returns a log entry with the service name plus fields.
func (l *Logger) WithFields(fields map[string]any) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError returns a log entry with the service name plus the error.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

// WithRequestID attaches a request id to ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext retrieves the request id, or "" if absent.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogRequest logs one HTTP request/response.
func (l *Logger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}).Info("http request")
}

// LogStoreQuery logs a persistent-store call and its outcome.
func (l *Logger) LogStoreQuery(ctx context.Context, operation string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("store query failed")
	} else {
		entry.Debug("store query executed")
	}
}

// LogAudit logs an audit event for a dispatch/verification/project action.
func (l *Logger) LogAudit(ctx context.Context, action, resource, resourceID, result string) {
	l.WithContext(ctx).WithFields(logrus.Fields{
		"action":      action,
		"resource":    resource,
		"resource_id": resourceID,
		"result":      result,
		"audit":       true,
	}).Info("audit")
}

// LogTick logs one Tick Scheduler pass: its drift from the nominal period
// and any step error (spec.md §4.6 — tick drift is itself a metric; every
// step error is logged and the tick continues).
func (l *Logger) LogTick(ctx context.Context, step string, duration time.Duration, err error) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"tick_step":   step,
		"duration_ms": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Error("tick step failed")
		return
	}
	entry.Debug("tick step completed")
}

var defaultLogger *Logger

// InitDefault initializes the package-level default logger.
func InitDefault(service, level, format string) {
	defaultLogger = New(service, level, format)
}

// Default returns the default logger, lazily creating a fallback if
// InitDefault was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New("coordinatord", "info", "json")
	}
	return defaultLogger
}
