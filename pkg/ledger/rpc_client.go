package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/rpc"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	httppkg "github.com/trigg3rX/labelmarket-backend/pkg/http"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/retry"
)

const (
	methodGetObject        = "sui_getObject"
	methodGetDynamicField  = "suix_getDynamicFieldObject"
	methodGetDynamicFields = "suix_getDynamicFields"
	methodGetOwnedObjects  = "suix_getOwnedObjects"
	methodExecute          = "sui_executeTransactionBlock"
)

var ErrInvalidConfig = fmt.Errorf("invalid ledger client configuration")

// RPCClient talks to a full node over JSON-RPC.
type RPCClient struct {
	config     *Config
	logger     logging.Logger
	httpClient *httppkg.HTTPClient
	rpcClient  *rpc.Client
}

var _ Client = (*RPCClient)(nil)

func NewRPCClient(ctx context.Context, cfg *Config) (*RPCClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// Timeouts are applied per call through the context; the transport itself never retries.
	httpClient, err := httppkg.NewHTTPClient(httppkg.SingleShotHTTPConfig(cfg.ReadTimeout*2), cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL, rpc.WithHTTPClient(httpClient.GetClient()))
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC client: %w", err)
	}

	return &RPCClient{
		config:     cfg,
		logger:     cfg.Logger,
		httpClient: httpClient,
		rpcClient:  rpcClient,
	}, nil
}

func (c *RPCClient) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
	c.httpClient.Close()
}

func (c *RPCClient) GetObject(ctx context.Context, id string) (*Object, error) {
	var resp objectResponse
	if err := c.read(ctx, methodGetObject, &resp, id, fullObjectOptions); err != nil {
		return nil, err
	}
	if resp.isNotFound() {
		return nil, fmt.Errorf("object %s: %w", id, pkgErrors.ErrNotFound)
	}
	return resp.Data.toObject()
}

func (c *RPCClient) GetDynamicField(ctx context.Context, parentID string, name DynamicFieldName) (*Object, error) {
	var resp objectResponse
	if err := c.read(ctx, methodGetDynamicField, &resp, parentID, name); err != nil {
		if isDynamicFieldMissing(err) {
			return nil, fmt.Errorf("dynamic field %s under %s: %w", name, parentID, pkgErrors.ErrNotFound)
		}
		return nil, err
	}
	if resp.isNotFound() {
		return nil, fmt.Errorf("dynamic field %s under %s: %w", name, parentID, pkgErrors.ErrNotFound)
	}
	return resp.Data.toObject()
}

// ListDynamicFields follows the cursor until the node reports no further pages.
func (c *RPCClient) ListDynamicFields(ctx context.Context, parentID string) ([]DynamicFieldInfo, error) {
	var (
		fields []DynamicFieldInfo
		cursor *string
	)
	for {
		var page dynamicFieldPage
		if err := c.read(ctx, methodGetDynamicFields, &page, parentID, cursor, c.config.PageLimit); err != nil {
			return nil, err
		}
		fields = append(fields, page.Data...)
		if !page.HasNextPage || page.NextCursor == nil {
			return fields, nil
		}
		cursor = page.NextCursor
	}
}

func (c *RPCClient) ListOwnedObjects(ctx context.Context, owner, structType string) ([]*Object, error) {
	query := ownedObjectQuery{Options: fullObjectOptions}
	if structType != "" {
		query.Filter = map[string]string{"StructType": structType}
	}

	var (
		objects []*Object
		cursor  *string
	)
	for {
		var page ownedObjectPage
		if err := c.read(ctx, methodGetOwnedObjects, &page, owner, query, cursor, c.config.PageLimit); err != nil {
			return nil, err
		}
		for i := range page.Data {
			if page.Data[i].isNotFound() {
				continue
			}
			obj, err := page.Data[i].Data.toObject()
			if err != nil {
				c.logger.Warn("Skipping malformed owned object", "owner", owner, "error", err)
				continue
			}
			objects = append(objects, obj)
		}
		if !page.HasNextPage || page.NextCursor == nil {
			return objects, nil
		}
		cursor = page.NextCursor
	}
}

// ExecuteTransaction submits exactly once. A signed transaction is never re-sent, so
// transport failures surface as TransactionFailedError rather than being retried.
func (c *RPCClient) ExecuteTransaction(ctx context.Context, tx SignedTransaction) (*Effects, error) {
	var raw json.RawMessage
	err := c.rpcClient.CallContext(ctx, &raw, methodExecute,
		tx.TxBytes, tx.Signatures, executeOptions{ShowEffects: true}, "WaitForLocalExecution")
	if err != nil {
		return nil, &pkgErrors.TransactionFailedError{Err: err}
	}

	var resp executeResponse
	if err := decodeJSON(raw, &resp); err != nil {
		return nil, &pkgErrors.TransactionFailedError{Err: fmt.Errorf("invalid execute response: %w", err)}
	}
	effects := resp.toEffects()
	c.logger.Debug("Transaction executed", "digest", effects.Digest, "status", effects.Status)
	return effects, nil
}

// read performs one JSON-RPC read with a per-call timeout and the configured retry budget.
func (c *RPCClient) read(ctx context.Context, method string, out any, args ...any) error {
	retryConfig := *retryConfigOrDefault(c.config.ReadRetry)
	retryConfig.ShouldRetry = func(err error, attempt int) bool {
		return isRetryableReadError(ctx, err)
	}

	raw, err := retry.Retry(ctx, func(ctx context.Context) (json.RawMessage, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.config.ReadTimeout)
		defer cancel()

		var result json.RawMessage
		if err := c.rpcClient.CallContext(callCtx, &result, method, args...); err != nil {
			return nil, err
		}
		return result, nil
	}, &retryConfig, c.logger)

	if c.config.OnRead != nil {
		c.config.OnRead(method, err)
	}

	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			return &pkgErrors.TransientNetworkError{Op: method, Attempts: exhausted.Attempts, Err: exhausted.Err}
		}
		return fmt.Errorf("%s failed: %w", method, err)
	}

	if err := decodeJSON(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return nil
}

func retryConfigOrDefault(cfg *retry.RetryConfig) *retry.RetryConfig {
	if cfg == nil {
		return retry.DefaultRetryConfig()
	}
	return cfg
}

// isRetryableReadError retries transport failures, per-call timeouts and 5xx/429
// responses. JSON-RPC application errors and caller cancellation are final.
func isRetryableReadError(parent context.Context, err error) bool {
	if parent.Err() != nil {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError || httpErr.StatusCode == http.StatusTooManyRequests
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Some nodes answer a missing dynamic field with a JSON-RPC error instead of an error object.
func isDynamicFieldMissing(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.ErrorCode() == -32000
}
