package core

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"golang.org/x/sync/singleflight"
)

// Service is the delivery reconciliation engine together with the credential
// manager and enrichment resolver it depends on.
type Service struct {
	config            Config
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
	credentialStore   CredentialStore
	deliveryStore     DeliveryStore
	marketplace       MarketplaceClient
	enrichment        *EnrichmentResolver
	sellerExtractors  []SellerExtractor
	imageExtractors   []ImageExtractor
	clock             func() time.Time
	refreshGroup      singleflight.Group
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	RunLocker         RunLocker
	CredentialStore   CredentialStore
	DeliveryStore     DeliveryStore
	MarketplaceClient MarketplaceClient
	Enrichment        *EnrichmentResolver
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("deliveries", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("deliveries"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.runLocker == nil {
		builder.runLocker = NewMemoryRunLocker()
	}
	if builder.clock == nil {
		builder.clock = func() time.Time { return time.Now().UTC() }
	}
	if len(builder.sellerExtractors) == 0 {
		builder.sellerExtractors = DefaultSellerExtractors()
	}
	if len(builder.imageExtractors) == 0 {
		builder.imageExtractors = DefaultImageExtractors()
	}
	if len(builder.forecastFields) == 0 {
		builder.forecastFields = DefaultForecastExtractors()
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if (builder.credentialStore == nil || builder.deliveryStore == nil) && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if stores != nil {
				fillStores(&builder, stores)
			}
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			fillStores(&builder, stores)
		}
	}

	enrichment := &EnrichmentResolver{
		providers:   append([]ImageSearchProvider(nil), builder.imageProviders...),
		marketplace: builder.marketplace,
		rateLimit:   builder.rateLimitPolicy,
		forecast:    append([]ForecastExtractor(nil), builder.forecastFields...),
		accountKey:  finalConfig.AccountKey,
		timeout:     finalConfig.ImageSearchTimeout(),
		window:      finalConfig.RecencyWindow(),
		logger:      logger,
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		runLocker:         builder.runLocker,
		credentialStore:   builder.credentialStore,
		deliveryStore:     builder.deliveryStore,
		marketplace:       builder.marketplace,
		enrichment:        enrichment,
		sellerExtractors:  builder.sellerExtractors,
		imageExtractors:   builder.imageExtractors,
		clock:             builder.clock,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func fillStores(builder *serviceBuilder, stores StoreProvider) {
	if builder.credentialStore == nil {
		builder.credentialStore = stores.CredentialStore()
	}
	if builder.deliveryStore == nil {
		builder.deliveryStore = stores.DeliveryStore()
	}
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		RunLocker:         s.runLocker,
		CredentialStore:   s.credentialStore,
		DeliveryStore:     s.deliveryStore,
		MarketplaceClient: s.marketplace,
		Enrichment:        s.enrichment,
	}
}

// ListDeliveries serves the read path: the last persisted delivery set,
// filtered by view and sorted by purchase date, newest first.
func (s *Service) ListDeliveries(ctx context.Context, view DeliveryView) ([]Delivery, error) {
	if s == nil || s.deliveryStore == nil {
		return nil, s.mapError(fmt.Errorf("core: delivery store is required"))
	}
	stored, err := s.deliveryStore.FindAll(ctx)
	if err != nil {
		return nil, s.mapError(NewPersistenceError(err, "find_all"))
	}
	return FilterDeliveries(stored, view), nil
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}
