package ledger

import (
	"fmt"
	"time"

	"github.com/trigg3rX/labelmarket-backend/pkg/env"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/retry"
)

const (
	DefaultReadTimeout = 8 * time.Second
	DefaultPageLimit   = 50
)

// Config holds the configuration for the RPCClient
type Config struct {
	// RPCURL is the full node JSON-RPC endpoint
	RPCURL string

	// ReadTimeout bounds every individual read call
	ReadTimeout time.Duration

	// ReadRetry is applied to reads only; transaction execution is never retried
	ReadRetry *retry.RetryConfig

	// PageLimit is the page size for cursor-paginated listings
	PageLimit int

	Logger logging.Logger

	// OnRead, if set, is invoked after every read attempt sequence with its outcome
	OnRead func(method string, err error)
}

func DefaultConfig(rpcURL string, logger logging.Logger) *Config {
	return &Config{
		RPCURL:      rpcURL,
		ReadTimeout: DefaultReadTimeout,
		ReadRetry:   retry.DefaultRetryConfig(),
		PageLimit:   DefaultPageLimit,
		Logger:      logger,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !env.IsValidURL(c.RPCURL) {
		return fmt.Errorf("invalid RPC URL %q", c.RPCURL)
	}
	if c.Logger == nil {
		return fmt.Errorf("logger cannot be nil")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.PageLimit <= 0 {
		return fmt.Errorf("page limit must be positive")
	}
	if c.ReadRetry != nil {
		if err := c.ReadRetry.Validate(); err != nil {
			return fmt.Errorf("invalid read retry config: %w", err)
		}
	}
	return nil
}
