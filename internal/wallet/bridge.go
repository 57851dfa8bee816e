package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/env"
	httppkg "github.com/trigg3rX/labelmarket-backend/pkg/http"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

const (
	signPath    = "/v1/sign"
	addressPath = "/v1/address"

	DefaultSignTimeout = 2 * time.Minute
)

var ErrInvalidConfig = errors.New("invalid wallet configuration")

// BridgeConfig points at a signer bridge: a local process holding the user's keys that
// turns an intent into signed transaction bytes, prompting the user where needed.
type BridgeConfig struct {
	URL     string
	Address string
	Timeout time.Duration
}

func (c *BridgeConfig) Validate() error {
	if !env.IsValidURL(c.URL) {
		return fmt.Errorf("%w: bridge url %q", ErrInvalidConfig, c.URL)
	}
	if c.Address != "" && !env.IsValidObjectID(c.Address) {
		return fmt.Errorf("%w: address %q", ErrInvalidConfig, c.Address)
	}
	return nil
}

type signRequest struct {
	Sender string            `json:"sender"`
	Intent *txbuilder.Intent `json:"intent"`
}

type signResponse struct {
	TxBytes    string   `json:"tx_bytes"`
	Signatures []string `json:"signatures"`
	Rejected   bool     `json:"rejected"`
	Reason     string   `json:"reason"`
}

type addressResponse struct {
	Address string `json:"address"`
}

// BridgeWallet signs through the bridge and executes through the ledger client.
type BridgeWallet struct {
	config     BridgeConfig
	address    string
	httpClient *httppkg.HTTPClient
	ledger     ledger.Client
	logger     logging.Logger
}

var _ Wallet = (*BridgeWallet)(nil)

// NewBridgeWallet asks the bridge for its address when none is configured.
func NewBridgeWallet(ctx context.Context, cfg BridgeConfig, client ledger.Client, logger logging.Logger) (*BridgeWallet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("%w: ledger client is required", ErrInvalidConfig)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSignTimeout
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	// Signing prompts the user, so a request is never re-sent.
	httpClient, err := httppkg.NewHTTPClient(httppkg.SingleShotHTTPConfig(cfg.Timeout), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	w := &BridgeWallet{
		config:     cfg,
		address:    cfg.Address,
		httpClient: httpClient,
		ledger:     client,
		logger:     logger,
	}
	if w.address == "" {
		addr, err := w.fetchAddress(ctx)
		if err != nil {
			return nil, err
		}
		w.address = addr
	}
	w.address = env.NormalizeObjectID(w.address)
	return w, nil
}

func (w *BridgeWallet) Address() string {
	return w.address
}

func (w *BridgeWallet) SignAndExecute(ctx context.Context, intent *txbuilder.Intent) (*ledger.Effects, error) {
	tx, err := w.sign(ctx, intent)
	if err != nil {
		observe(intent.Kind, err)
		return nil, err
	}
	effects, err := execute(ctx, w.ledger, intent.Kind, tx)
	if err != nil {
		w.logger.Warn("Transaction failed", "kind", intent.Kind, "target", intent.Target, "error", err)
		return effects, err
	}
	w.logger.Info("Transaction executed", "kind", intent.Kind, "digest", effects.Digest)
	return effects, nil
}

func (w *BridgeWallet) sign(ctx context.Context, intent *txbuilder.Intent) (ledger.SignedTransaction, error) {
	body, err := json.Marshal(signRequest{Sender: w.address, Intent: intent})
	if err != nil {
		return ledger.SignedTransaction{}, fmt.Errorf("failed to encode intent: %w", err)
	}

	resp, err := w.httpClient.Post(ctx, w.config.URL+signPath, "application/json", bytes.NewReader(body))
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return ledger.SignedTransaction{}, err
		}
		return ledger.SignedTransaction{}, &pkgErrors.TransactionFailedError{Err: fmt.Errorf("signer bridge: %w", err)}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			w.logger.Warnf("Failed to close response body: %v", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, w.httpClient.HTTPConfig.MaxResponseSize))
	if err != nil {
		return ledger.SignedTransaction{}, &pkgErrors.TransactionFailedError{Err: fmt.Errorf("signer bridge: %w", err)}
	}

	var out signResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode == http.StatusOK {
			return ledger.SignedTransaction{}, &pkgErrors.TransactionFailedError{Err: fmt.Errorf("invalid signer response: %w", err)}
		}
	}

	switch {
	case out.Rejected || resp.StatusCode == http.StatusForbidden:
		reason := out.Reason
		if reason == "" {
			reason = "declined by user"
		}
		return ledger.SignedTransaction{}, &pkgErrors.TransactionRejectedError{Reason: reason}
	case resp.StatusCode != http.StatusOK:
		return ledger.SignedTransaction{}, &pkgErrors.TransactionFailedError{
			Raw: string(raw),
			Err: &httppkg.HTTPError{StatusCode: resp.StatusCode, Message: "signer bridge refused the request"},
		}
	case out.TxBytes == "" || len(out.Signatures) == 0:
		return ledger.SignedTransaction{}, &pkgErrors.TransactionFailedError{Raw: string(raw), Err: errors.New("signer returned no signed transaction")}
	}
	return ledger.SignedTransaction{TxBytes: out.TxBytes, Signatures: out.Signatures}, nil
}

func (w *BridgeWallet) fetchAddress(ctx context.Context) (string, error) {
	resp, err := w.httpClient.Get(ctx, w.config.URL+addressPath)
	if err != nil {
		return "", fmt.Errorf("failed to query signer address: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			w.logger.Warnf("Failed to close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to query signer address: HTTP %d", resp.StatusCode)
	}

	var out addressResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("invalid address response: %w", err)
	}
	if !env.IsValidObjectID(out.Address) {
		return "", fmt.Errorf("%w: bridge returned address %q", ErrInvalidConfig, out.Address)
	}
	return out.Address, nil
}

func (w *BridgeWallet) Close() {
	w.httpClient.Close()
}
