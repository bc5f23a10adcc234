// Package config provides the coordinator's configuration tree: defaults,
// an optional YAML/JSON file, then environment overrides, in that order.
// Grounded on pkg/config/config.go's New/Load/LoadFile/LoadConfig layering.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Host string `json:"host" env:"SERVER_HOST"`
	Port int    `json:"port" env:"SERVER_PORT"`
}

// DatabaseConfig controls the Postgres connection.
type DatabaseConfig struct {
	Driver          string `json:"driver" env:"DATABASE_DRIVER"`
	DSN             string `json:"dsn" env:"DATABASE_DSN"`
	Host            string `json:"host" env:"DATABASE_HOST"`
	Port            int    `json:"port" env:"DATABASE_PORT"`
	User            string `json:"user" env:"DATABASE_USER"`
	Password        string `json:"password" env:"DATABASE_PASSWORD"`
	Name            string `json:"name" env:"DATABASE_NAME"`
	SSLMode         string `json:"sslmode" env:"DATABASE_SSLMODE"`
	MaxOpenConns    int    `json:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `json:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// ConnectionString builds a libpq key=value connection string from host
// parameters; ignored when DSN is already set.
func (c DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// LoggingConfig controls application logging.
type LoggingConfig struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// TickConfig controls the Tick Scheduler's cadence and reclamation
// timeouts (spec.md §4.6).
type TickConfig struct {
	IntervalSeconds             int    `json:"interval_seconds" env:"TICK_INTERVAL_SECONDS"`
	InternalClaimTimeoutMinutes int    `json:"internal_claim_timeout_minutes" env:"TICK_INTERNAL_CLAIM_TIMEOUT_MINUTES"`
	OperatorClaimTimeoutHours   int    `json:"operator_claim_timeout_hours" env:"TICK_OPERATOR_CLAIM_TIMEOUT_HOURS"`
	NotificationFlushSeconds    int    `json:"notification_flush_seconds" env:"TICK_NOTIFICATION_FLUSH_SECONDS"`
	StrategyTickCron            string `json:"strategy_tick_cron" env:"TICK_STRATEGY_CRON"`
	MetricsSampleCron           string `json:"metrics_sample_cron" env:"TICK_METRICS_SAMPLE_CRON"`
	HousekeepingCron            string `json:"housekeeping_cron" env:"TICK_HOUSEKEEPING_CRON"`
}

// Interval returns IntervalSeconds as a time.Duration.
func (t TickConfig) Interval() time.Duration {
	return time.Duration(t.IntervalSeconds) * time.Second
}

// InternalClaimTimeout returns InternalClaimTimeoutMinutes as a duration.
func (t TickConfig) InternalClaimTimeout() time.Duration {
	return time.Duration(t.InternalClaimTimeoutMinutes) * time.Minute
}

// OperatorClaimTimeout returns OperatorClaimTimeoutHours as a duration.
func (t TickConfig) OperatorClaimTimeout() time.Duration {
	return time.Duration(t.OperatorClaimTimeoutHours) * time.Hour
}

// SecurityConfig controls rate limiting, CORS and debug endpoints.
// APIKeyBcryptCost is not read by any code path.
type SecurityConfig struct {
	RateLimitEnabled     bool     `json:"rate_limit_enabled" env:"RATE_LIMIT_ENABLED"`
	RateLimitPerMinute   int      `json:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst       int      `json:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CORSOrigins          []string `json:"cors_origins"`
	APIKeyBcryptCost     int      `json:"api_key_bcrypt_cost" env:"API_KEY_BCRYPT_COST"`
	EnableDebugEndpoints bool     `json:"enable_debug_endpoints" env:"ENABLE_DEBUG_ENDPOINTS"`
}

// AuthConfig controls static bearer tokens recognised ahead of per-operator
// api keys: InternalWorkerTokens authenticate internal (non-volunteer)
// worker fleets, AdminTokens authenticate project/phase administration.
type AuthConfig struct {
	InternalWorkerTokens []string `json:"internal_worker_tokens"`
	AdminTokens          []string `json:"admin_tokens"`
}

// RetentionConfig controls housekeeping cutoffs (spec.md §4.6 step 9).
type RetentionConfig struct {
	EventLogDays   int `json:"event_log_days" env:"RETENTION_EVENT_LOG_DAYS"`
	MetricRollupDays int `json:"metric_rollup_days" env:"RETENTION_METRIC_ROLLUP_DAYS"`
}

// ReleaseConfig points the release-manifest reader at its update channels.
type ReleaseConfig struct {
	ManifestPath string `json:"manifest_path" env:"RELEASE_MANIFEST_PATH"`
	DefaultChannel string `json:"default_channel" env:"RELEASE_DEFAULT_CHANNEL"`
}

// EventBusConfig controls the event bus's optional Redis fan-out mirror.
// The bus's in-memory fan-out is primary and always active; when
// RedisAddr is set, every fan-out message is additionally published on a Redis
// pub/sub channel so a horizontally-scaled dashboard process can
// subscribe without holding an in-process channel. Never load-bearing
// for the bus's own invariants.
type EventBusConfig struct {
	RedisAddr    string `json:"redis_addr" env:"EVENTBUS_REDIS_ADDR"`
	RedisChannel string `json:"redis_channel" env:"EVENTBUS_REDIS_CHANNEL"`
}

// Environment names the deployment environment, mirroring the teacher's
// Env/IsProduction split.
type Environment string

const (
	Development Environment = "development"
	Testing     Environment = "testing"
	Production  Environment = "production"
)

// Config is the top-level configuration structure.
type Config struct {
	Env       Environment     `json:"env" env:"COORDINATOR_ENV"`
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
	Tick      TickConfig      `json:"tick"`
	Security  SecurityConfig  `json:"security"`
	Auth      AuthConfig      `json:"auth"`
	Retention RetentionConfig `json:"retention"`
	Release   ReleaseConfig   `json:"release"`
	EventBus  EventBusConfig  `json:"event_bus"`
}

// IsDevelopment reports whether c.Env is the development environment.
func (c *Config) IsDevelopment() bool { return c.Env == Development }

// IsTesting reports whether c.Env is the testing environment.
func (c *Config) IsTesting() bool { return c.Env == Testing }

// IsProduction reports whether c.Env is the production environment.
func (c *Config) IsProduction() bool { return c.Env == Production }

// Validate enforces production hardening: rate limiting must stay enabled
// and debug endpoints must stay off whenever c.Env is production.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if !c.Security.RateLimitEnabled {
			return fmt.Errorf("security.rate_limit_enabled must be true in production")
		}
		if c.Security.EnableDebugEndpoints {
			return fmt.Errorf("security.enable_debug_endpoints must be false in production")
		}
	}
	return nil
}

// New returns a configuration populated with defaults.
func New() *Config {
	return &Config{
		Env: Development,
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePrefix: "coordinatord",
		},
		Tick: TickConfig{
			IntervalSeconds:             30,
			InternalClaimTimeoutMinutes: 30,
			OperatorClaimTimeoutHours:   24,
			NotificationFlushSeconds:    10,
		},
		Security: SecurityConfig{
			RateLimitEnabled:   true,
			RateLimitPerMinute: 120,
			RateLimitBurst:     20,
			CORSOrigins:        []string{"*"},
			APIKeyBcryptCost:   12,
		},
		Auth:      AuthConfig{},
		Retention: RetentionConfig{EventLogDays: 90, MetricRollupDays: 30},
		Release:   ReleaseConfig{ManifestPath: "configs/releases.json", DefaultChannel: "stable"},
		EventBus:  EventBusConfig{RedisChannel: "darkreach:eventbus:fanout"},
	}
}

// Load loads configuration from an optional file, then environment
// variables, in that order of increasing precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		// envdecode errors when no tagged field has a matching env var; treat
		// that as "no overrides" so local runs work without exporting vars.
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

// LoadFile reads configuration from a YAML file, applying defaults first.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

// LoadConfig reads configuration from a JSON file; used by tests exercising
// JSON fixtures directly.
func LoadConfig(path string) (*Config, error) {
	cfg := New()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDatabaseURLOverride(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDatabaseURLOverride lets DATABASE_URL override a file-based DSN, the
// form most hosting providers inject directly.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Database.DSN = dsn
	}
}
