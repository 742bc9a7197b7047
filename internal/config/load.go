package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. TASKQUOTA_DATABASE_URL for database.url.
const EnvPrefix = "TASKQUOTA"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// A .env file in the working directory, if present, is loaded into the
// process environment first without overriding variables already set.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if _, err := cfg.Distribution.Location(); err != nil {
		return fmt.Errorf("config validation failed: distribution.timezone: %w", err)
	}
	if cfg.Scheduler.Enabled && cfg.Scheduler.RunAt == "" {
		return errors.New("config validation failed: scheduler.run_at is required when the scheduler is enabled")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("distribution.timezone", "UTC")
	v.SetDefault("distribution.concurrency", 8)
	v.SetDefault("distribution.max_claim_rounds", 3)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.run_at", "00:05")

	v.SetDefault("jobs.worker_count", 2)
	v.SetDefault("jobs.queue_size", 100)
	v.SetDefault("jobs.stuck_job_age", 30*time.Minute)
	v.SetDefault("jobs.monitor_interval", 5*time.Minute)
	v.SetDefault("jobs.event_buffer_size", 256)

	v.SetDefault("settlement.direct_referral_bonus", "0")
	v.SetDefault("settlement.indirect_referral_bonus", "0")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "taskquota.events")
}

// bindEnvs registers keys that have no default so that AutomaticEnv can see
// them during Unmarshal.
func bindEnvs(v *viper.Viper) {
	for _, key := range []string{"database.url", "redis.addr", "redis.password"} {
		_ = v.BindEnv(key)
	}
}
