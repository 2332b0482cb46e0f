package core

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	runLocker         RunLocker
	rateLimitPolicy   RateLimitPolicy
	credentialStore   CredentialStore
	deliveryStore     DeliveryStore
	marketplace       MarketplaceClient
	imageProviders    []ImageSearchProvider
	sellerExtractors  []SellerExtractor
	imageExtractors   []ImageExtractor
	forecastFields    []ForecastExtractor
	clock             func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorFactory(factory ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithRunLocker(locker RunLocker) Option {
	return func(b *serviceBuilder) {
		b.runLocker = locker
	}
}

func WithRateLimitPolicy(policy RateLimitPolicy) Option {
	return func(b *serviceBuilder) {
		b.rateLimitPolicy = policy
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

func WithDeliveryStore(store DeliveryStore) Option {
	return func(b *serviceBuilder) {
		b.deliveryStore = store
	}
}

func WithMarketplaceClient(client MarketplaceClient) Option {
	return func(b *serviceBuilder) {
		b.marketplace = client
	}
}

// WithImageSearchProviders sets the image search chain, tried in order.
func WithImageSearchProviders(providers ...ImageSearchProvider) Option {
	return func(b *serviceBuilder) {
		b.imageProviders = append([]ImageSearchProvider(nil), providers...)
	}
}

func WithSellerExtractors(extractors ...SellerExtractor) Option {
	return func(b *serviceBuilder) {
		b.sellerExtractors = append([]SellerExtractor(nil), extractors...)
	}
}

func WithImageExtractors(extractors ...ImageExtractor) Option {
	return func(b *serviceBuilder) {
		b.imageExtractors = append([]ImageExtractor(nil), extractors...)
	}
}

func WithForecastExtractors(extractors ...ForecastExtractor) Option {
	return func(b *serviceBuilder) {
		b.forecastFields = append([]ForecastExtractor(nil), extractors...)
	}
}

func WithClock(clock func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.clock = clock
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("deliveries", nil, nil)
	return serviceBuilder{
		runtimeConfig:    runtime,
		loggerProvider:   loggerProvider,
		logger:           logger,
		metricsRecorder:  NopMetricsRecorder{},
		errorFactory:     goerrors.New,
		errorMapper:      defaultErrorMapper,
		configProvider:   NewCfgxConfigProvider(nil),
		optionsResolver:  GoOptionsResolver{},
		sellerExtractors: DefaultSellerExtractors(),
		imageExtractors:  DefaultImageExtractors(),
		forecastFields:   DefaultForecastExtractors(),
		clock:            func() time.Time { return time.Now().UTC() },
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return serviceErrorMapper(err)
}
