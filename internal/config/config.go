package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/trigg3rX/labelmarket-backend/pkg/env"
)

const (
	BlobBackendWalrus = "walrus"
	BlobBackendIPFS   = "ipfs"
	BlobBackendMemory = "memory"

	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"

	// MemoryLedger as LEDGER_RPC_URL runs against an in-process development ledger.
	MemoryLedger = "memory"
)

type Config struct {
	DevMode bool

	// Deployed package and its shared registry object
	PackageID  string
	RegistryID string
	ClockID    string

	// Ledger full node
	LedgerRPCURL      string
	LedgerReadTimeout time.Duration
	LedgerReadRetries int
	LedgerPageLimit   int

	// Blob storage
	BlobBackend       string
	BlobPublisherURL  string
	BlobAggregatorURL string
	BlobEpochs        int
	BlobMaxBytes      int64
	IPFSAPIURL        string

	// Signing. Without a bridge the service is read-only, except on the memory
	// ledger where WalletAddress gets a development wallet.
	WalletBridgeURL string
	WalletAddress   string

	// Cache
	CacheBackend           string
	RedisURL               string
	CacheTTL               time.Duration
	CacheRefreshInterval   time.Duration
	CacheInvalidationGrace time.Duration

	// HTTP API, /metrics included
	APIPort        string
	AllowedOrigins []string

	AbortCodesFile      string
	RegistryConcurrency int
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &Config{
		DevMode:                env.GetEnvBool("DEV_MODE", false),
		PackageID:              env.GetEnvString("LABELMARKET_PACKAGE_ID", ""),
		RegistryID:             env.GetEnvString("LABELMARKET_REGISTRY_ID", ""),
		ClockID:                env.GetEnvString("LABELMARKET_CLOCK_ID", "0x6"),
		LedgerRPCURL:           env.GetEnvString("LEDGER_RPC_URL", ""),
		LedgerReadTimeout:      env.GetEnvDuration("LEDGER_READ_TIMEOUT", 8*time.Second),
		LedgerReadRetries:      env.GetEnvInt("LEDGER_READ_RETRIES", 3),
		LedgerPageLimit:        env.GetEnvInt("LEDGER_PAGE_LIMIT", 50),
		BlobBackend:            strings.ToLower(env.GetEnvString("BLOB_BACKEND", BlobBackendWalrus)),
		BlobPublisherURL:       env.GetEnvString("BLOB_PUBLISHER_URL", ""),
		BlobAggregatorURL:      env.GetEnvString("BLOB_AGGREGATOR_URL", ""),
		BlobEpochs:             env.GetEnvInt("BLOB_EPOCHS", 5),
		BlobMaxBytes:           env.GetEnvInt64("BLOB_MAX_BYTES", 10<<20),
		IPFSAPIURL:             env.GetEnvString("IPFS_API_URL", ""),
		WalletBridgeURL:        env.GetEnvString("WALLET_BRIDGE_URL", ""),
		WalletAddress:          env.GetEnvString("WALLET_ADDRESS", ""),
		CacheBackend:           strings.ToLower(env.GetEnvString("CACHE_BACKEND", CacheBackendMemory)),
		RedisURL:               env.GetEnvString("REDIS_URL", ""),
		CacheTTL:               env.GetEnvDuration("CACHE_TTL", 30*time.Second),
		CacheRefreshInterval:   env.GetEnvDuration("CACHE_REFRESH_INTERVAL", 30*time.Second),
		CacheInvalidationGrace: env.GetEnvDuration("CACHE_INVALIDATION_GRACE", 2*time.Second),
		APIPort:                env.GetEnvString("API_PORT", "9010"),
		AllowedOrigins:         splitList(env.GetEnvString("CORS_ALLOWED_ORIGINS", "*")),
		AbortCodesFile:         env.GetEnvString("ABORT_CODES_FILE", ""),
		RegistryConcurrency:    env.GetEnvInt("REGISTRY_CONCURRENCY", 8),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate is run once at startup; any error is fatal.
func (c *Config) Validate() error {
	if !env.IsValidObjectID(c.PackageID) {
		return fmt.Errorf("LABELMARKET_PACKAGE_ID must be a 0x-prefixed object id, got %q", c.PackageID)
	}
	if !env.IsValidObjectID(c.RegistryID) {
		return fmt.Errorf("LABELMARKET_REGISTRY_ID must be a 0x-prefixed object id, got %q", c.RegistryID)
	}
	if !env.IsValidObjectID(c.ClockID) {
		return fmt.Errorf("invalid LABELMARKET_CLOCK_ID %q", c.ClockID)
	}

	if c.UseMemoryLedger() {
		if !c.DevMode {
			return fmt.Errorf("LEDGER_RPC_URL=%s requires DEV_MODE=true", MemoryLedger)
		}
	} else if !env.IsValidURL(c.LedgerRPCURL) {
		return fmt.Errorf("invalid LEDGER_RPC_URL %q", c.LedgerRPCURL)
	}
	if c.LedgerReadTimeout <= 0 {
		return fmt.Errorf("LEDGER_READ_TIMEOUT must be positive")
	}
	if c.LedgerReadRetries < 1 {
		return fmt.Errorf("LEDGER_READ_RETRIES must be at least 1")
	}
	if c.LedgerPageLimit <= 0 {
		return fmt.Errorf("LEDGER_PAGE_LIMIT must be positive")
	}

	switch c.BlobBackend {
	case BlobBackendWalrus:
		if !env.IsValidURL(c.BlobPublisherURL) || !env.IsValidURL(c.BlobAggregatorURL) {
			return fmt.Errorf("BLOB_PUBLISHER_URL and BLOB_AGGREGATOR_URL are required for the %s backend", BlobBackendWalrus)
		}
		if c.BlobEpochs <= 0 {
			return fmt.Errorf("BLOB_EPOCHS must be positive")
		}
	case BlobBackendIPFS:
		if !env.IsValidURL(c.IPFSAPIURL) {
			return fmt.Errorf("IPFS_API_URL is required for the %s backend", BlobBackendIPFS)
		}
	case BlobBackendMemory:
		if !c.DevMode {
			return fmt.Errorf("BLOB_BACKEND=%s requires DEV_MODE=true", BlobBackendMemory)
		}
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.BlobBackend)
	}
	if c.BlobMaxBytes <= 0 {
		return fmt.Errorf("BLOB_MAX_BYTES must be positive")
	}

	if c.WalletBridgeURL != "" && !env.IsValidURL(c.WalletBridgeURL) {
		return fmt.Errorf("invalid WALLET_BRIDGE_URL %q", c.WalletBridgeURL)
	}
	if c.WalletAddress != "" && !env.IsValidObjectID(c.WalletAddress) {
		return fmt.Errorf("invalid WALLET_ADDRESS %q", c.WalletAddress)
	}

	switch c.CacheBackend {
	case CacheBackendMemory:
	case CacheBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the %s cache backend", CacheBackendRedis)
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if c.CacheTTL <= 0 || c.CacheRefreshInterval <= 0 {
		return fmt.Errorf("CACHE_TTL and CACHE_REFRESH_INTERVAL must be positive")
	}
	if c.CacheInvalidationGrace < 0 {
		return fmt.Errorf("CACHE_INVALIDATION_GRACE cannot be negative")
	}

	if !env.IsValidPort(c.APIPort) {
		return fmt.Errorf("invalid API_PORT %q", c.APIPort)
	}
	if c.RegistryConcurrency <= 0 {
		return fmt.Errorf("REGISTRY_CONCURRENCY must be positive")
	}
	return nil
}

func (c *Config) UseMemoryLedger() bool {
	return strings.EqualFold(c.LedgerRPCURL, MemoryLedger)
}

// CanSign reports whether mutations are available.
func (c *Config) CanSign() bool {
	if c.UseMemoryLedger() {
		return c.WalletAddress != ""
	}
	return c.WalletBridgeURL != ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
