package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAccountKey                = "default"
	DefaultRecencyWindowDays         = 20
	DefaultImageSearchTimeoutSeconds = 15
	DefaultReconcileLockTTLSeconds   = 300
	DefaultScheduleSpec              = "*/30 * * * *"
	DefaultScheduleMinIntervalSecs   = 1800
	maxRecencyWindowDays             = 365
)

type EnrichmentConfig struct {
	RecencyWindowDays         int  `koanf:"recency_window_days" mapstructure:"recency_window_days"`
	ImageSearchTimeoutSeconds int  `koanf:"image_search_timeout_seconds" mapstructure:"image_search_timeout_seconds"`
	ForecastEnabled           bool `koanf:"forecast_enabled" mapstructure:"forecast_enabled"`
}

type ReconcileConfig struct {
	LockTTLSeconds int `koanf:"lock_ttl_seconds" mapstructure:"lock_ttl_seconds"`
}

type ScheduleConfig struct {
	Enabled            bool   `koanf:"enabled" mapstructure:"enabled"`
	Spec               string `koanf:"spec" mapstructure:"spec"`
	MinIntervalSeconds int    `koanf:"min_interval_seconds" mapstructure:"min_interval_seconds"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	AccountKey  string           `koanf:"account_key" mapstructure:"account_key"`
	Enrichment  EnrichmentConfig `koanf:"enrichment" mapstructure:"enrichment"`
	Reconcile   ReconcileConfig  `koanf:"reconcile" mapstructure:"reconcile"`
	Schedule    ScheduleConfig   `koanf:"schedule" mapstructure:"schedule"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "deliveries",
		AccountKey:  DefaultAccountKey,
		Enrichment: EnrichmentConfig{
			RecencyWindowDays:         DefaultRecencyWindowDays,
			ImageSearchTimeoutSeconds: DefaultImageSearchTimeoutSeconds,
			ForecastEnabled:           true,
		},
		Reconcile: ReconcileConfig{
			LockTTLSeconds: DefaultReconcileLockTTLSeconds,
		},
		Schedule: ScheduleConfig{
			Enabled:            true,
			Spec:               DefaultScheduleSpec,
			MinIntervalSeconds: DefaultScheduleMinIntervalSecs,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.AccountKey) == "" {
		return fmt.Errorf("core: account_key is required")
	}
	if c.Enrichment.RecencyWindowDays < 1 || c.Enrichment.RecencyWindowDays > maxRecencyWindowDays {
		return fmt.Errorf(
			"core: enrichment.recency_window_days must be between 1 and %d, got %d",
			maxRecencyWindowDays,
			c.Enrichment.RecencyWindowDays,
		)
	}
	if c.Enrichment.ImageSearchTimeoutSeconds < 0 {
		return fmt.Errorf("core: enrichment.image_search_timeout_seconds is invalid")
	}
	if c.Reconcile.LockTTLSeconds < 0 {
		return fmt.Errorf("core: reconcile.lock_ttl_seconds is invalid")
	}
	if c.Schedule.Enabled && strings.TrimSpace(c.Schedule.Spec) == "" {
		return fmt.Errorf("core: schedule.spec is required when scheduling is enabled")
	}
	if c.Schedule.MinIntervalSeconds < 0 {
		return fmt.Errorf("core: schedule.min_interval_seconds is invalid")
	}
	return nil
}

func (c Config) RecencyWindow() time.Duration {
	days := c.Enrichment.RecencyWindowDays
	if days <= 0 {
		days = DefaultRecencyWindowDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func (c Config) ImageSearchTimeout() time.Duration {
	seconds := c.Enrichment.ImageSearchTimeoutSeconds
	if seconds <= 0 {
		seconds = DefaultImageSearchTimeoutSeconds
	}
	return time.Duration(seconds) * time.Second
}

func (c Config) ReconcileLockTTL() time.Duration {
	seconds := c.Reconcile.LockTTLSeconds
	if seconds <= 0 {
		seconds = DefaultReconcileLockTTLSeconds
	}
	return time.Duration(seconds) * time.Second
}

func (c Config) ScheduleMinInterval() time.Duration {
	return time.Duration(c.Schedule.MinIntervalSeconds) * time.Second
}
