package config

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server       ServerConfig       `mapstructure:"server" validate:"required"`
	Database     DatabaseConfig     `mapstructure:"database" validate:"required"`
	Distribution DistributionConfig `mapstructure:"distribution" validate:"required"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Jobs         JobsConfig         `mapstructure:"jobs" validate:"required"`
	Settlement   SettlementConfig   `mapstructure:"settlement" validate:"required"`
	Redis        RedisConfig        `mapstructure:"redis"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// DistributionConfig controls the daily distribution engine.
type DistributionConfig struct {
	// Timezone is the IANA zone whose calendar day defines "today".
	Timezone       string `mapstructure:"timezone" validate:"required"`
	Concurrency    int    `mapstructure:"concurrency" validate:"required,gt=0"`
	MaxClaimRounds int    `mapstructure:"max_claim_rounds" validate:"required,gt=0"`
}

// Location resolves the configured timezone.
func (c DistributionConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// SchedulerConfig controls the in-process daily trigger.
type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// RunAt is the local time of day, "HH:MM", at which the sweep and the
	// distribution run.
	RunAt string `mapstructure:"run_at" validate:"omitempty,datetime=15:04"`
}

// JobsConfig controls the background job runner.
type JobsConfig struct {
	WorkerCount     int           `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize       int           `mapstructure:"queue_size" validate:"required,gt=0"`
	StuckJobAge     time.Duration `mapstructure:"stuck_job_age" validate:"gt=0"`
	MonitorInterval time.Duration `mapstructure:"monitor_interval" validate:"gt=0"`
	EventBufferSize int           `mapstructure:"event_buffer_size" validate:"required,gt=0"`
}

// SettlementConfig holds the referral bonus amounts as decimal strings.
type SettlementConfig struct {
	DirectReferralBonus   string `mapstructure:"direct_referral_bonus" validate:"required,numeric"`
	IndirectReferralBonus string `mapstructure:"indirect_referral_bonus" validate:"required,numeric"`
}

// RedisConfig enables publishing settlement events to a Redis channel.
// An empty Addr disables the publisher.
type RedisConfig struct {
	Addr     string `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Channel  string `mapstructure:"channel" validate:"required_with=Addr"`
}

// Bonuses parses the configured referral bonus amounts.
func (c SettlementConfig) Bonuses() (direct, indirect decimal.Decimal, err error) {
	direct, err = decimal.NewFromString(c.DirectReferralBonus)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("direct_referral_bonus: %w", err)
	}
	indirect, err = decimal.NewFromString(c.IndirectReferralBonus)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("indirect_referral_bonus: %w", err)
	}
	return direct, indirect, nil
}
