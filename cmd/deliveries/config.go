package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/security"
)

const (
	envClientID     = "DELIVERIES_ML_CLIENT_ID"
	envClientSecret = "DELIVERIES_ML_CLIENT_SECRET"
	envAppKey       = "DELIVERIES_APP_KEY"
	envSerpAPIKey   = "DELIVERIES_SERPAPI_KEY"
	envDatabaseDSN  = "DELIVERIES_DATABASE_DSN"
	envPreviousKey  = "DELIVERIES_APP_KEY_PREVIOUS"
)

type fileConfig struct {
	Service     map[string]any    `toml:"service"`
	Database    databaseConfig    `toml:"database"`
	HTTP        httpConfig        `toml:"http"`
	Marketplace marketplaceConfig `toml:"marketplace"`
	SerpAPI     serpAPIConfig     `toml:"serpapi"`
	Log         logConfig         `toml:"log"`
	Cache       cacheConfig       `toml:"cache"`
	Queue       queueConfig       `toml:"queue"`
	Security    securityConfig    `toml:"security"`

	AppKey         string `toml:"-"`
	PreviousAppKey string `toml:"-"`
}

// securityConfig versions the app key. While rotating, the previous key
// (version key_version-1) still opens stored credentials until
// previous_key_until, an RFC 3339 timestamp; empty keeps it open.
type securityConfig struct {
	KeyVersion       int    `toml:"key_version"`
	PreviousKeyUntil string `toml:"previous_key_until"`
}

type databaseConfig struct {
	Driver      string `toml:"driver"`
	DSN         string `toml:"dsn"`
	Debug       bool   `toml:"debug"`
	AutoMigrate bool   `toml:"auto_migrate"`
	PingTimeout string `toml:"ping_timeout"`
}

type httpConfig struct {
	Addr           string `toml:"addr"`
	RequestTimeout string `toml:"request_timeout"`
	Metrics        bool   `toml:"metrics"`
	Notifications  bool   `toml:"notifications"`
	// NotificationBurst is none, coalesce or debounce.
	NotificationBurst  string `toml:"notification_burst"`
	NotificationWindow string `toml:"notification_window"`
}

type marketplaceConfig struct {
	BaseURL      string `toml:"base_url"`
	TokenURL     string `toml:"token_url"`
	SiteID       string `toml:"site_id"`
	RedirectURI  string `toml:"redirect_uri"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"-"`
}

type serpAPIConfig struct {
	Endpoint string `toml:"endpoint"`
	Engine   string `toml:"engine"`
	APIKey   string `toml:"-"`
}

type logConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type cacheConfig struct {
	Enabled bool   `toml:"enabled"`
	TTL     string `toml:"ttl"`
}

type queueConfig struct {
	Workers      int    `toml:"workers"`
	PollInterval string `toml:"poll_interval"`
	MaxAttempts  int    `toml:"max_attempts"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Service: map[string]any{},
		Database: databaseConfig{
			Driver:      "sqlite3",
			DSN:         "file:deliveries.db?_foreign_keys=on",
			AutoMigrate: true,
			PingTimeout: "5s",
		},
		HTTP: httpConfig{
			Addr:           ":8080",
			RequestTimeout: "60s",
			Metrics:        true,
			Notifications:  true,

			NotificationBurst:  "coalesce",
			NotificationWindow: "30s",
		},
		Log: logConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: cacheConfig{
			Enabled: true,
			TTL:     "1m",
		},
		Security: securityConfig{KeyVersion: 1},
		Queue: queueConfig{
			Workers:      1,
			PollInterval: "2s",
			MaxAttempts:  5,
		},
	}
}

// loadFileConfig reads path over the defaults and applies secrets from the
// environment. A missing file is only an error when required is set.
func loadFileConfig(path string, required bool) (fileConfig, error) {
	cfg := defaultFileConfig()
	path = strings.TrimSpace(path)
	if path != "" {
		md, err := toml.DecodeFile(path, &cfg)
		switch {
		case err == nil:
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				keys := make([]string, 0, len(undecoded))
				for _, key := range undecoded {
					keys = append(keys, key.String())
				}
				return fileConfig{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
			}
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return fileConfig{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	if cfg.Service == nil {
		cfg.Service = map[string]any{}
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, cfg.validate()
}

func (c *fileConfig) applyEnv(lookup func(string) (string, bool)) {
	if value, ok := lookup(envClientID); ok {
		c.Marketplace.ClientID = value
	}
	if value, ok := lookup(envClientSecret); ok {
		c.Marketplace.ClientSecret = value
	}
	if value, ok := lookup(envAppKey); ok {
		c.AppKey = value
	}
	if value, ok := lookup(envPreviousKey); ok {
		c.PreviousAppKey = value
	}
	if value, ok := lookup(envSerpAPIKey); ok {
		c.SerpAPI.APIKey = value
	}
	if value, ok := lookup(envDatabaseDSN); ok {
		c.Database.DSN = value
	}
}

func (c fileConfig) validate() error {
	for name, value := range map[string]string{
		"database.ping_timeout":    c.Database.PingTimeout,
		"http.request_timeout":     c.HTTP.RequestTimeout,
		"http.notification_window": c.HTTP.NotificationWindow,
		"cache.ttl":                c.Cache.TTL,
		"queue.poll_interval":      c.Queue.PollInterval,
	} {
		if _, err := parseDuration(value); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	if _, err := c.previousKeyWindow(); err != nil {
		return err
	}
	if c.Security.KeyVersion < 1 {
		return fmt.Errorf("config: security.key_version must be at least 1")
	}
	if strings.TrimSpace(c.Database.Driver) == "" || strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("config: database driver and dsn are required")
	}
	return nil
}

// serviceConfig resolves the [service] table into the core configuration.
func (c fileConfig) serviceConfig(ctx context.Context) (core.Config, error) {
	provider := core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: c.Service})
	return provider.Load(ctx, core.DefaultConfig())
}

// secretOptions configures the credential cipher for the current key version
// and, when set, the previous key it replaces.
func (c fileConfig) secretOptions() ([]security.Option, error) {
	opts := []security.Option{security.WithVersion(c.Security.KeyVersion)}
	previous := strings.TrimSpace(c.PreviousAppKey)
	if previous == "" {
		return opts, nil
	}
	if c.Security.KeyVersion < 2 {
		return nil, fmt.Errorf("config: %s requires security.key_version of at least 2", envPreviousKey)
	}
	window, err := c.previousKeyWindow()
	if err != nil {
		return nil, err
	}
	return append(opts, security.WithRetiredKey("app-key", c.Security.KeyVersion-1, []byte(previous), window)), nil
}

func (c fileConfig) previousKeyWindow() (security.KeyRotationWindow, error) {
	until := strings.TrimSpace(c.Security.PreviousKeyUntil)
	if until == "" {
		return security.KeyRotationWindow{}, nil
	}
	at, err := time.Parse(time.RFC3339, until)
	if err != nil {
		return security.KeyRotationWindow{}, fmt.Errorf("config: security.previous_key_until: %w", err)
	}
	return security.KeyRotationWindow{NotAfter: at}, nil
}

func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return time.ParseDuration(value)
}

func mustDuration(value string) time.Duration {
	d, _ := parseDuration(value)
	return d
}
