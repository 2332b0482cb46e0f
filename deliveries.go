package deliveries

import "github.com/goliatone/go-deliveries/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type CredentialStore = core.CredentialStore
type DeliveryStore = core.DeliveryStore
type SyncRunStore = core.SyncRunStore
type MarketplaceClient = core.MarketplaceClient
type ImageSearchProvider = core.ImageSearchProvider
type RateLimitPolicy = core.RateLimitPolicy
type RunLocker = core.RunLocker

type Delivery = core.Delivery
type DeliveryView = core.DeliveryView
type ReconcileResult = core.ReconcileResult

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithErrorFactory         = core.WithErrorFactory
	WithErrorMapper          = core.WithErrorMapper
	WithPersistenceClient    = core.WithPersistenceClient
	WithRepositoryFactory    = core.WithRepositoryFactory
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithRunLocker            = core.WithRunLocker
	WithRateLimitPolicy      = core.WithRateLimitPolicy
	WithCredentialStore      = core.WithCredentialStore
	WithDeliveryStore        = core.WithDeliveryStore
	WithMarketplaceClient    = core.WithMarketplaceClient
	WithImageSearchProviders = core.WithImageSearchProviders
	WithSellerExtractors     = core.WithSellerExtractors
	WithImageExtractors      = core.WithImageExtractors
	WithForecastExtractors   = core.WithForecastExtractors
	WithClock                = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
