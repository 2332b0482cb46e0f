package core

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

// StaticRawConfigLoader serves a fixed raw configuration map, such as the
// [service] table of a config file.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.Values == nil {
		return map[string]any{}, nil
	}
	return maps.Clone(l.Values), nil
}

// CfgxConfigProvider decodes a raw map over the defaults with cfgx and
// validates the result.
type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	raw := map[string]any{}
	if p.Loader != nil {
		loaded, err := p.Loader.LoadRaw(ctx)
		if err != nil {
			return Config{}, err
		}
		raw = loaded
	}
	return buildConfig(raw, defaults)
}

func buildConfig(raw map[string]any, defaults Config) (Config, error) {
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

type GoOptionsResolver struct{}

// Resolve layers defaults, then the loaded config, then runtime overrides.
// The loaded config already carries defaults so it is layered in full; the
// runtime layer only contributes values that are set.
func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(opts.NewScope("defaults", 0), configLayer(defaults, true), opts.WithSnapshotID[map[string]any]("defaults")),
		opts.NewLayer(opts.NewScope("config", 10), configLayer(loaded, true), opts.WithSnapshotID[map[string]any]("config")),
		opts.NewLayer(opts.NewScope("runtime", 20), configLayer(runtime, false), opts.WithSnapshotID[map[string]any]("runtime")),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: build options stack: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: merge options: %w", err)
	}
	return buildConfig(merged.Value, defaults)
}

// configLayer flattens cfg into the nested map cfgx decodes. With full unset
// values are kept so the layer overrides everything below it.
func configLayer(cfg Config, full bool) map[string]any {
	section := func() map[string]any { return map[string]any{} }
	set := func(m map[string]any, key string, value any, present bool) {
		if full || present {
			m[key] = value
		}
	}
	nest := func(parent map[string]any, key string, child map[string]any) {
		if len(child) > 0 {
			parent[key] = child
		}
	}

	root := section()
	set(root, "service_name", cfg.ServiceName, strings.TrimSpace(cfg.ServiceName) != "")
	set(root, "account_key", cfg.AccountKey, strings.TrimSpace(cfg.AccountKey) != "")

	enrichment := section()
	set(enrichment, "recency_window_days", cfg.Enrichment.RecencyWindowDays, cfg.Enrichment.RecencyWindowDays > 0)
	set(enrichment, "image_search_timeout_seconds", cfg.Enrichment.ImageSearchTimeoutSeconds, cfg.Enrichment.ImageSearchTimeoutSeconds > 0)
	set(enrichment, "forecast_enabled", cfg.Enrichment.ForecastEnabled, cfg.Enrichment.ForecastEnabled)
	nest(root, "enrichment", enrichment)

	reconcile := section()
	set(reconcile, "lock_ttl_seconds", cfg.Reconcile.LockTTLSeconds, cfg.Reconcile.LockTTLSeconds > 0)
	nest(root, "reconcile", reconcile)

	schedule := section()
	set(schedule, "enabled", cfg.Schedule.Enabled, cfg.Schedule.Enabled)
	set(schedule, "spec", cfg.Schedule.Spec, strings.TrimSpace(cfg.Schedule.Spec) != "")
	set(schedule, "min_interval_seconds", cfg.Schedule.MinIntervalSeconds, cfg.Schedule.MinIntervalSeconds > 0)
	nest(root, "schedule", schedule)
	return root
}
