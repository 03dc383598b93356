package config

import (
	"fmt"
	"time"
)

// Config holds runtime configuration for the lesson ledger service.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Program     ProgramConfig     `mapstructure:"program"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	I18n        I18nConfig        `mapstructure:"i18n"`
}

// ProgramConfig describes the on-ledger program whose accounts are managed.
type ProgramConfig struct {
	ID                string `mapstructure:"id" validate:"required"`
	Seed              string `mapstructure:"seed" validate:"required,max=32"`
	MaxLessons        int    `mapstructure:"max_lessons" validate:"gte=1"`
	MaxLessonIDLength int    `mapstructure:"max_lesson_id_length" validate:"gte=1"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the account storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=redis memory"`
}

// RedisConfig defines connection parameters for Redis.
type RedisConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	PoolTimeout     time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	MinRetryBackoff time.Duration `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

// DatabaseConfig holds PostgreSQL settings for the progress projection.
type DatabaseConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Host          string `mapstructure:"host" validate:"required_if=Enabled true"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user" validate:"required_if=Enabled true"`
	Password      string `mapstructure:"password"`
	Name          string `mapstructure:"name" validate:"required_if=Enabled true"`
	SSLMode       string `mapstructure:"sslmode"`
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// JobsConfig configures the asynq projection worker and scheduler.
type JobsConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	Concurrency   int            `mapstructure:"concurrency"`
	ReconcileCron string         `mapstructure:"reconcile_cron"`
	Queues        map[string]int `mapstructure:"queues"`
}

// RateLimitRule is a limit over a window expressed as a Go duration string.
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitConfig configures submission rate limits.
type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Global    RateLimitRule `mapstructure:"global"`
	PerSigner RateLimitRule `mapstructure:"per_signer"`
	Whitelist []string      `mapstructure:"whitelist"`
}

// IdempotencyConfig configures replay protection for signed submissions.
type IdempotencyConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// LoggerConfig configures slog output.
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	DSN        string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	SampleRate float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// I18nConfig configures localized API error messages.
type I18nConfig struct {
	DefaultLang string `mapstructure:"default_lang"`
}

// GetDBConnectionString returns PostgreSQL DSN based on config values.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
