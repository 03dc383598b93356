// Package config provides configuration loading and validation utilities.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// DefaultProgramSeed is the domain-separation seed of the user progress account.
const DefaultProgramSeed = "user-progress"

// Load reads configuration from ./configs/<APP_ENV>.yaml and environment variables,
// validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	if err := godotenv.Load(".env.local", ".env"); err != nil {
		// env files are optional
		_ = err
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	return LoadFile(fmt.Sprintf("./configs/%s.yaml", env), env)
}

// LoadFile reads configuration from the given YAML file with environment overrides.
func LoadFile(path, env string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if env != "" {
		cfg.AppEnv = env
	}

	if err := Validate(&cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

// Validate checks struct constraints and cross-field rules of cfg.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	if cfg.Jobs.Enabled && cfg.Jobs.ReconcileCron != "" {
		if _, err := cron.ParseStandard(cfg.Jobs.ReconcileCron); err != nil {
			return fmt.Errorf("validate config: jobs.reconcile_cron: %w", err)
		}
	}

	for _, rule := range []RateLimitRule{cfg.RateLimit.Global, cfg.RateLimit.PerSigner} {
		if !cfg.RateLimit.Enabled || rule.Window == "" {
			continue
		}
		if _, err := time.ParseDuration(rule.Window); err != nil {
			return fmt.Errorf("validate config: rate limit window %q: %w", rule.Window, err)
		}
	}

	return nil
}

// Watch invokes onChange with the re-read configuration every time the config file changes.
// Invalid revisions are reported through onError and otherwise ignored.
func Watch(v *viper.Viper, onChange func(*Config), onError func(error)) {
	if v == nil || onChange == nil {
		return
	}

	v.OnConfigChange(func(event fsnotify.Event) {
		if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
			return
		}

		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload config %s: %w", event.Name, err))
			}
			return
		}
		if err := Validate(&cfg); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload config %s: %w", event.Name, err))
			}
			return
		}

		onChange(&cfg)
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_env", "development")

	v.SetDefault("program.seed", DefaultProgramSeed)
	v.SetDefault("program.max_lessons", 10)
	v.SetDefault("program.max_lesson_id_length", 32)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)

	v.SetDefault("storage.backend", "redis")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.lock_ttl", 5*time.Second)

	v.SetDefault("database.port", "5432")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.migrations_dir", "migrations")

	v.SetDefault("jobs.concurrency", 10)
	v.SetDefault("jobs.reconcile_cron", "*/30 * * * *")

	v.SetDefault("rate_limit.global.limit", 1000)
	v.SetDefault("rate_limit.global.window", "1m")
	v.SetDefault("rate_limit.per_signer.limit", 30)
	v.SetDefault("rate_limit.per_signer.window", "1m")

	v.SetDefault("idempotency.ttl", 24*time.Hour)
	v.SetDefault("idempotency.cleanup_interval", time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 14)

	v.SetDefault("sentry.sample_rate", 1.0)

	v.SetDefault("i18n.default_lang", "en")
}
