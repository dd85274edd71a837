// Package config loads and validates the environment-variable configuration
// for every role process, per the table in the specification.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/artzaitsev/ai-assignment-checker/internal/database"
)

// SchedulerConfig controls worker polling, leasing, and reclaim behavior.
// These values are shared by every worker role; only the stage they act on
// differs.
type SchedulerConfig struct {
	// PollIntervalMs is the sleep after a tick that did work.
	PollIntervalMs int `env:"WORKER_POLL_INTERVAL_MS"`

	// IdleBackoffMs is the sleep after a tick that claimed nothing.
	IdleBackoffMs int `env:"WORKER_IDLE_BACKOFF_MS"`

	// ErrorBackoffMs is the sleep after a tick that raised.
	ErrorBackoffMs int `env:"WORKER_ERROR_BACKOFF_MS"`

	// ClaimLeaseSeconds is the initial lease duration granted by claim_next.
	ClaimLeaseSeconds int `env:"WORKER_CLAIM_LEASE_SECONDS"`

	// HeartbeatIntervalMs is the heartbeat cadence while a claim is held.
	HeartbeatIntervalMs int `env:"WORKER_HEARTBEAT_INTERVAL_MS"`

	// ArtifactCompatPolicy governs schema-version enforcement on read
	// ("strict" or "lenient").
	ArtifactCompatPolicy string `env:"ARTIFACT_COMPAT_POLICY"`

	// MaxAttempts bounds each stage's attempt counter before dead-letter.
	MaxAttempts int `env:"WORKER_MAX_ATTEMPTS"`

	// ReclaimBatchLimit bounds how many expired claims one reclaim call
	// moves per tick (spec.md §4.3 step 1: "a bounded number of reclaims
	// per tick").
	ReclaimBatchLimit int `env:"WORKER_RECLAIM_BATCH_LIMIT"`
}

// PollInterval returns the configured poll interval as a time.Duration.
func (c SchedulerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// IdleBackoff returns the configured idle backoff as a time.Duration.
func (c SchedulerConfig) IdleBackoff() time.Duration {
	return time.Duration(c.IdleBackoffMs) * time.Millisecond
}

// ErrorBackoff returns the configured error backoff as a time.Duration.
func (c SchedulerConfig) ErrorBackoff() time.Duration {
	return time.Duration(c.ErrorBackoffMs) * time.Millisecond
}

// ClaimLease returns the configured lease duration as a time.Duration.
func (c SchedulerConfig) ClaimLease() time.Duration {
	return time.Duration(c.ClaimLeaseSeconds) * time.Second
}

// HeartbeatInterval returns the configured heartbeat cadence as a time.Duration.
func (c SchedulerConfig) HeartbeatInterval() time.Duration {
	return time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
}

// DefaultSchedulerConfig returns the built-in defaults from spec.md §6.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		PollIntervalMs:        200,
		IdleBackoffMs:         1000,
		ErrorBackoffMs:        2000,
		ClaimLeaseSeconds:     30,
		HeartbeatIntervalMs:   10000,
		ArtifactCompatPolicy:  "strict",
		MaxAttempts:           3,
		ReclaimBatchLimit:     100,
	}
}

// LoadSchedulerConfigFromEnv overlays environment variables onto the defaults.
func LoadSchedulerConfigFromEnv() (SchedulerConfig, error) {
	cfg := DefaultSchedulerConfig()

	var err error
	if cfg.PollIntervalMs, err = intEnvOrDefault("WORKER_POLL_INTERVAL_MS", cfg.PollIntervalMs); err != nil {
		return cfg, err
	}
	if cfg.IdleBackoffMs, err = intEnvOrDefault("WORKER_IDLE_BACKOFF_MS", cfg.IdleBackoffMs); err != nil {
		return cfg, err
	}
	if cfg.ErrorBackoffMs, err = intEnvOrDefault("WORKER_ERROR_BACKOFF_MS", cfg.ErrorBackoffMs); err != nil {
		return cfg, err
	}
	if cfg.ClaimLeaseSeconds, err = intEnvOrDefault("WORKER_CLAIM_LEASE_SECONDS", cfg.ClaimLeaseSeconds); err != nil {
		return cfg, err
	}
	if cfg.HeartbeatIntervalMs, err = intEnvOrDefault("WORKER_HEARTBEAT_INTERVAL_MS", cfg.HeartbeatIntervalMs); err != nil {
		return cfg, err
	}
	if cfg.MaxAttempts, err = intEnvOrDefault("WORKER_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return cfg, err
	}
	if cfg.ReclaimBatchLimit, err = intEnvOrDefault("WORKER_RECLAIM_BATCH_LIMIT", cfg.ReclaimBatchLimit); err != nil {
		return cfg, err
	}
	cfg.ArtifactCompatPolicy = getEnvOrDefault("ARTIFACT_COMPAT_POLICY", cfg.ArtifactCompatPolicy)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks invariants the scheduler depends on, notably spec.md §5's
// heartbeat/lease ratio: a single missed heartbeat must not cause reclaim.
func (c SchedulerConfig) Validate() error {
	if c.PollIntervalMs <= 0 {
		return NewValidationError("WORKER_POLL_INTERVAL_MS", fmt.Errorf("must be positive"))
	}
	if c.IdleBackoffMs <= 0 {
		return NewValidationError("WORKER_IDLE_BACKOFF_MS", fmt.Errorf("must be positive"))
	}
	if c.ErrorBackoffMs <= 0 {
		return NewValidationError("WORKER_ERROR_BACKOFF_MS", fmt.Errorf("must be positive"))
	}
	if c.ClaimLeaseSeconds <= 0 {
		return NewValidationError("WORKER_CLAIM_LEASE_SECONDS", fmt.Errorf("must be positive"))
	}
	if c.HeartbeatIntervalMs <= 0 {
		return NewValidationError("WORKER_HEARTBEAT_INTERVAL_MS", fmt.Errorf("must be positive"))
	}
	if c.MaxAttempts < 1 {
		return NewValidationError("WORKER_MAX_ATTEMPTS", fmt.Errorf("must be at least 1"))
	}
	if c.ArtifactCompatPolicy != "strict" && c.ArtifactCompatPolicy != "lenient" {
		return NewValidationError("ARTIFACT_COMPAT_POLICY", fmt.Errorf("must be 'strict' or 'lenient', got %q", c.ArtifactCompatPolicy))
	}
	threeHeartbeats := 3 * time.Duration(c.HeartbeatIntervalMs) * time.Millisecond
	lease := time.Duration(c.ClaimLeaseSeconds) * time.Second
	if threeHeartbeats >= lease {
		return NewValidationError("WORKER_HEARTBEAT_INTERVAL_MS",
			fmt.Errorf("3 * heartbeat interval (%v) must be less than claim lease (%v)", threeHeartbeats, lease))
	}
	return nil
}

// LoadDatabaseConfigFromEnv loads PostgreSQL connection settings with
// production-ready defaults, mirroring the teacher's DB_* env convention.
func LoadDatabaseConfigFromEnv() (database.Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return database.Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpen, err := intEnvOrDefault("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return database.Config{}, err
	}
	maxIdle, err := intEnvOrDefault("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return database.Config{}, err
	}

	maxLifetime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_LIFETIME", "1h"))
	if err != nil {
		return database.Config{}, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}
	maxIdleTime, err := time.ParseDuration(getEnvOrDefault("DB_CONN_MAX_IDLE_TIME", "15m"))
	if err != nil {
		return database.Config{}, fmt.Errorf("invalid DB_CONN_MAX_IDLE_TIME: %w", err)
	}

	cfg := database.Config{
		Host:            getEnvOrDefault("DB_HOST", "localhost"),
		Port:            port,
		User:            getEnvOrDefault("DB_USER", "ai_assignment_checker"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        getEnvOrDefault("DB_NAME", "ai_assignment_checker"),
		SSLMode:         getEnvOrDefault("DB_SSLMODE", "disable"),
		MaxOpenConns:    int32(maxOpen),
		MaxIdleConns:    int32(maxIdle),
		ConnMaxLifetime: maxLifetime,
		ConnMaxIdleTime: maxIdleTime,
	}
	if cfg.Password == "" {
		return database.Config{}, NewValidationError("DB_PASSWORD", fmt.Errorf("required"))
	}
	if cfg.MaxIdleConns > cfg.MaxOpenConns {
		return database.Config{}, NewValidationError("DB_MAX_IDLE_CONNS",
			fmt.Errorf("(%d) cannot exceed DB_MAX_OPEN_CONNS (%d)", cfg.MaxIdleConns, cfg.MaxOpenConns))
	}
	return cfg, nil
}

func intEnvOrDefault(key string, defaultVal int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
