package main

import (
	"context"
	"fmt"
	"time"

	"github.com/trigg3rX/labelmarket-backend/internal/cache"
	"github.com/trigg3rX/labelmarket-backend/internal/config"
	"github.com/trigg3rX/labelmarket-backend/internal/devchain"
	"github.com/trigg3rX/labelmarket-backend/internal/marketplace"
	"github.com/trigg3rX/labelmarket-backend/internal/metrics"
	"github.com/trigg3rX/labelmarket-backend/internal/registry"
	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/internal/wallet"
	"github.com/trigg3rX/labelmarket-backend/pkg/blobstore"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/retry"
)

const redisKeyPrefix = "labelmarket:"

// runtime holds every long-lived component built from a Config.
type runtime struct {
	cfg     *config.Config
	logger  logging.Logger
	service *marketplace.Service
	layer   *cache.Layer

	closers []func()
}

func newRuntime(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	if cfg.AbortCodesFile != "" {
		if err := pkgErrors.LoadAbortCatalogFile(cfg.AbortCodesFile); err != nil {
			return nil, fmt.Errorf("failed to load abort codes: %w", err)
		}
		logger.Infof("Loaded abort codes from %s", cfg.AbortCodesFile)
	}

	client, devStore, err := rt.ledgerClient(ctx)
	if err != nil {
		return nil, err
	}

	resolver, err := registry.NewResolver(client, registry.Config{
		PackageID:   cfg.PackageID,
		RegistryID:  cfg.RegistryID,
		Concurrency: cfg.RegistryConcurrency,
	}, logger)
	if err != nil {
		return nil, err
	}
	builder, err := txbuilder.NewBuilder(txbuilder.Config{
		PackageID:  cfg.PackageID,
		RegistryID: cfg.RegistryID,
		ClockID:    cfg.ClockID,
	})
	if err != nil {
		return nil, err
	}

	backend, err := rt.cacheBackend(ctx)
	if err != nil {
		return nil, err
	}
	rt.layer = cache.NewLayer(backend, cache.Config{
		TTL:             cfg.CacheTTL,
		Grace:           cfg.CacheInvalidationGrace,
		LiveKeyLifetime: cache.DefaultLiveKeyLifetime,
	}, logger)
	rt.closers = append(rt.closers, rt.layer.Close)

	blobs, err := rt.blobStore()
	if err != nil {
		return nil, err
	}

	w, err := rt.signer(ctx, client, devStore)
	if err != nil {
		return nil, err
	}

	deps := marketplace.Deps{
		Resolver: resolver,
		Cache:    rt.layer,
		Builder:  builder,
		Blobs:    blobs,
		Logger:   logger,
	}
	if w != nil {
		deps.Wallet = w
	} else {
		logger.Warn("No wallet configured, serving read-only")
	}
	rt.service, err = marketplace.NewService(deps)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// ledgerClient returns the JSON-RPC client, or in dev mode a memory store with the
// development chain attached.
func (rt *runtime) ledgerClient(ctx context.Context) (ledger.Client, *ledger.MemoryStore, error) {
	cfg := rt.cfg
	if cfg.UseMemoryLedger() {
		store := ledger.NewMemoryStore()
		seeder := registry.NewSeeder(store, cfg.PackageID, cfg.RegistryID)
		devchain.Attach(store, seeder, rt.logger)
		rt.logger.Warn("Using the in-memory development ledger; nothing is persisted")
		return store, store, nil
	}

	ledgerCfg := ledger.DefaultConfig(cfg.LedgerRPCURL, rt.logger)
	ledgerCfg.ReadTimeout = cfg.LedgerReadTimeout
	ledgerCfg.PageLimit = cfg.LedgerPageLimit
	readRetry := retry.DefaultRetryConfig()
	readRetry.MaxAttempts = cfg.LedgerReadRetries
	ledgerCfg.ReadRetry = readRetry
	ledgerCfg.OnRead = metrics.ObserveLedgerRead

	client, err := ledger.NewRPCClient(ctx, ledgerCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to ledger: %w", err)
	}
	rt.closers = append(rt.closers, client.Close)
	return client, nil, nil
}

func (rt *runtime) cacheBackend(ctx context.Context) (cache.Backend, error) {
	if rt.cfg.CacheBackend != config.CacheBackendRedis {
		return cache.NewMemoryBackend(), nil
	}
	backend, err := cache.NewRedisBackend(rt.cfg.RedisURL, redisKeyPrefix)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { _ = backend.Close() })
	if err := waitForCache(ctx, backend, startupRetryConfig(), rt.logger); err != nil {
		return nil, fmt.Errorf("redis cache unreachable: %w", err)
	}
	return backend, nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// startupRetryConfig gives a cache that starts alongside the service a few seconds
// to accept connections.
func startupRetryConfig() *retry.RetryConfig {
	cfg := retry.DefaultRetryConfig()
	cfg.MaxAttempts = 5
	cfg.InitialDelay = 500 * time.Millisecond
	cfg.MaxDelay = 4 * time.Second
	return cfg
}

func waitForCache(ctx context.Context, p pinger, cfg *retry.RetryConfig, logger logging.Logger) error {
	return retry.RetryFunc(ctx, p.Ping, cfg, logger)
}

func (rt *runtime) blobStore() (blobstore.Store, error) {
	cfg := rt.cfg
	switch cfg.BlobBackend {
	case config.BlobBackendIPFS:
		return blobstore.NewIPFSStore(cfg.IPFSAPIURL, int(cfg.BlobMaxBytes), rt.logger)
	case config.BlobBackendMemory:
		return blobstore.NewMemoryStore(int(cfg.BlobMaxBytes)), nil
	}
	blobCfg := blobstore.NewConfig(cfg.BlobPublisherURL, cfg.BlobAggregatorURL, cfg.BlobEpochs)
	blobCfg.MaxBytes = int(cfg.BlobMaxBytes)
	store, err := blobstore.NewWalrusStore(blobCfg, rt.logger)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, store.Close)
	return store, nil
}

// signer picks the development wallet on the memory ledger and the signer bridge
// otherwise. A nil wallet means read-only.
func (rt *runtime) signer(ctx context.Context, client ledger.Client, devStore *ledger.MemoryStore) (wallet.Wallet, error) {
	cfg := rt.cfg
	if !cfg.CanSign() {
		return nil, nil
	}
	if devStore != nil {
		return wallet.NewDevWallet(cfg.WalletAddress, devStore, rt.logger)
	}
	bridge, err := wallet.NewBridgeWallet(ctx, wallet.BridgeConfig{
		URL:     cfg.WalletBridgeURL,
		Address: cfg.WalletAddress,
	}, client, rt.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to wallet bridge: %w", err)
	}
	rt.closers = append(rt.closers, bridge.Close)
	return bridge, nil
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
