package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	deliveries "github.com/goliatone/go-deliveries"
	"github.com/goliatone/go-deliveries/adapters/gologger"
	"github.com/goliatone/go-deliveries/adapters/prometheus"
	"github.com/goliatone/go-deliveries/core"
	deliverymigrations "github.com/goliatone/go-deliveries/migrations"
	"github.com/goliatone/go-deliveries/providers/mercadolivre"
	"github.com/goliatone/go-deliveries/providers/serpapi"
	"github.com/goliatone/go-deliveries/ratelimit"
	"github.com/goliatone/go-deliveries/security"
	sqlstore "github.com/goliatone/go-deliveries/store/sql"
	deliverysync "github.com/goliatone/go-deliveries/sync"
	"github.com/goliatone/go-deliveries/transport"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	db databaseConfig
}

func (c persistenceConfig) GetDebug() bool    { return c.db.Debug }
func (c persistenceConfig) GetDriver() string { return c.db.Driver }
func (c persistenceConfig) GetServer() string { return c.db.DSN }
func (c persistenceConfig) GetPingTimeout() time.Duration {
	if timeout := mustDuration(c.db.PingTimeout); timeout > 0 {
		return timeout
	}
	return 5 * time.Second
}
func (c persistenceConfig) GetOtelIdentifier() string { return "go-deliveries" }

// runtime holds every component a command may need. Commands build it once and
// close it on exit.
type runtime struct {
	cfg         fileConfig
	service     core.Config
	logs        *gologger.SlogProvider
	logger      core.Logger
	client      *persistence.Client
	dialect     string
	factory     *sqlstore.RepositoryFactory
	marketplace *mercadolivre.Client
	metrics     *prometheus.Recorder
	deliveries  *core.Service
	ledger      *deliverysync.RunLedger
	facade      *deliveries.Facade
}

func openDatabase(ctx context.Context, cfg databaseConfig) (*persistence.Client, string, error) {
	dialect, err := deliverymigrations.DialectForDriver(cfg.Driver)
	if err != nil {
		return nil, "", err
	}
	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	var bunDialect schema.Dialect
	switch dialect {
	case deliverymigrations.DialectSQLite:
		driver = "sqlite3"
		bunDialect = sqlitedialect.New()
	default:
		driver = "postgres"
		bunDialect = pgdialect.New()
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, "", fmt.Errorf("database: open %s: %w", driver, err)
	}
	if dialect == deliverymigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{db: cfg}, sqlDB, bunDialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, "", fmt.Errorf("database: connect: %w", err)
	}
	if err := client.DB().PingContext(ctx); err != nil {
		_ = client.Close()
		return nil, "", fmt.Errorf("database: ping: %w", err)
	}
	return client, dialect, nil
}

// openRuntime sets up logging and the database connection only.
func openRuntime(ctx context.Context, cfg fileConfig) (*runtime, error) {
	rt := &runtime{cfg: cfg}
	rt.logs = gologger.NewSlogProvider(gologger.SlogOptions{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})
	rt.logger = rt.logs.GetLogger("deliveries.cmd")

	serviceCfg, err := cfg.serviceConfig(ctx)
	if err != nil {
		return nil, err
	}
	rt.service = serviceCfg

	client, dialect, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	rt.client = client
	rt.dialect = dialect
	return rt, nil
}

// openServiceRuntime opens the runtime, applies migrations when configured and
// builds the delivery service with its stores and providers.
func openServiceRuntime(ctx context.Context, cfg fileConfig) (*runtime, error) {
	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := rt.migrate(ctx); err != nil {
			rt.Close()
			return nil, err
		}
	}
	if err := rt.buildService(); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) migrate(ctx context.Context) error {
	src, err := deliverymigrations.Apply(ctx, rt.client, rt.dialect)
	if err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	rt.logger.Info("migrations applied", "dialect", rt.dialect, "path", src.Path, "latest", src.Latest())
	return nil
}

func (rt *runtime) buildService() error {
	cfg := rt.cfg
	if strings.TrimSpace(cfg.AppKey) == "" {
		return fmt.Errorf("config: %s is required to encrypt credentials", envAppKey)
	}
	secretOpts, err := cfg.secretOptions()
	if err != nil {
		return err
	}
	secrets, err := security.NewAppKeySecretProviderFromString(cfg.AppKey, secretOpts...)
	if err != nil {
		return err
	}

	factoryOpts := []sqlstore.FactoryOption{
		sqlstore.WithAccountKey(rt.service.AccountKey),
		sqlstore.WithCredentialSecrets(secrets),
	}
	if cfg.Cache.Enabled {
		cacheCfg := repositorycache.DefaultConfig()
		if ttl := mustDuration(cfg.Cache.TTL); ttl > 0 {
			cacheCfg.TTL = ttl
		}
		cacheService, cacheErr := repositorycache.NewCacheService(cacheCfg)
		if cacheErr != nil {
			return fmt.Errorf("cache: %w", cacheErr)
		}
		factoryOpts = append(factoryOpts, sqlstore.WithCacheService(cacheService))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(rt.client, factoryOpts...)
	if err != nil {
		return err
	}
	rt.factory = factory

	adapter := transport.NewRESTAdapter(&http.Client{Timeout: time.Minute})
	marketplace, err := deliveries.MercadoLivreClient(mercadolivre.Config{
		BaseURL:      cfg.Marketplace.BaseURL,
		TokenURL:     cfg.Marketplace.TokenURL,
		SiteID:       cfg.Marketplace.SiteID,
		ClientID:     cfg.Marketplace.ClientID,
		ClientSecret: cfg.Marketplace.ClientSecret,
		RedirectURI:  cfg.Marketplace.RedirectURI,
	}, adapter)
	if err != nil {
		return err
	}
	rt.marketplace = marketplace

	chain, err := deliveries.ImageSearchChain(serpapi.Config{
		Endpoint: cfg.SerpAPI.Endpoint,
		Engine:   cfg.SerpAPI.Engine,
		APIKey:   cfg.SerpAPI.APIKey,
		Timeout:  rt.service.ImageSearchTimeout(),
	}, marketplace, adapter)
	if err != nil {
		return err
	}

	hooks := deliveries.NewExtensionHooks()
	if len(chain) > 0 {
		if err := hooks.RegisterImageSearchPack(deliveries.ImageSearchPack{Name: "builtin", Providers: chain}); err != nil {
			return err
		}
	}

	rt.metrics = prometheus.NewRecorder(prometheus.Options{Namespace: rt.service.ServiceName})

	opts := append([]deliveries.Option{
		deliveries.WithConfigProvider(core.NewCfgxConfigProvider(core.StaticRawConfigLoader{Values: cfg.Service})),
		deliveries.WithRepositoryFactory(factory),
		deliveries.WithPersistenceClient(rt.client),
		deliveries.WithMarketplaceClient(marketplace),
		deliveries.WithRateLimitPolicy(ratelimit.NewAdaptivePolicy(factory.RateLimitStateStore())),
		deliveries.WithMetricsRecorder(rt.metrics),
		deliveries.WithLoggerProvider(rt.logs),
	}, hooks.Options()...)
	svc, err := deliveries.NewService(core.Config{}, opts...)
	if err != nil {
		return err
	}
	rt.deliveries = svc

	rt.ledger = deliverysync.NewRunLedger(factory.SyncRunStore(), svc, svc.Config().AccountKey)
	rt.ledger.Logger = rt.logs.GetLogger("deliveries.sync")
	facade, err := deliveries.NewFacade(svc, rt.ledger, factory.SyncRunStore())
	if err != nil {
		return err
	}
	rt.facade = facade
	return nil
}

func (rt *runtime) Close() {
	if rt == nil || rt.client == nil {
		return
	}
	if err := rt.client.Close(); err != nil && rt.logger != nil {
		rt.logger.Warn("database close failed", "error", err)
	}
}
