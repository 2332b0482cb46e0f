package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/ratelimit"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db           *bun.DB
	accountKey   string
	secrets      core.SecretProvider
	cacheService repositorycache.CacheService

	credentialStore     *CredentialStore
	deliveryStore       core.DeliveryStore
	syncRunStore        *SyncRunStore
	rateLimitStateStore ratelimit.StateStore
}

type FactoryOption func(*RepositoryFactory)

func WithAccountKey(accountKey string) FactoryOption {
	return func(f *RepositoryFactory) {
		f.accountKey = accountKey
	}
}

func WithCredentialSecrets(secrets core.SecretProvider) FactoryOption {
	return func(f *RepositoryFactory) {
		f.secrets = secrets
	}
}

// WithCacheService puts delivery reads and rate-limit state reads behind a
// read-through cache.
func WithCacheService(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cacheService = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{accountKey: DefaultAccountKey}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.credentialStore != nil && f.deliveryStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) CredentialStore() core.CredentialStore {
	if f == nil || f.credentialStore == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) DeliveryStore() core.DeliveryStore {
	if f == nil {
		return nil
	}
	return f.deliveryStore
}

func (f *RepositoryFactory) SyncRunStore() *SyncRunStore {
	if f == nil {
		return nil
	}
	return f.syncRunStore
}

func (f *RepositoryFactory) RateLimitStateStore() ratelimit.StateStore {
	if f == nil {
		return nil
	}
	return f.rateLimitStateStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialStore, err := NewCredentialStore(f.db, f.accountKey, WithSecretProvider(f.secrets))
	if err != nil {
		return err
	}
	deliveryStore, err := NewDeliveryStore(f.db)
	if err != nil {
		return err
	}
	syncRunStore, err := NewSyncRunStore(f.db)
	if err != nil {
		return err
	}
	rateLimitStore, err := NewRateLimitStateStore(f.db)
	if err != nil {
		return err
	}

	f.credentialStore = credentialStore
	f.syncRunStore = syncRunStore
	f.deliveryStore = deliveryStore
	f.rateLimitStateStore = rateLimitStore
	if f.cacheService == nil {
		return nil
	}

	cachedDeliveries, err := NewCachedDeliveryStore(deliveryStore, f.cacheService, f.accountKey)
	if err != nil {
		return err
	}
	cachedRateLimits, err := NewCachedRateLimitStateStore(rateLimitStore, f.cacheService)
	if err != nil {
		return err
	}
	f.deliveryStore = cachedDeliveries
	f.rateLimitStateStore = cachedRateLimits
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
