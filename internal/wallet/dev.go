package wallet

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/pkg/env"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

const devSignature = "dev-signature"

// DevWallet "signs" by wrapping the intent JSON. It only makes sense against a
// ledger.MemoryStore, whose ExecuteHook can decode the intent with DecodeDevTransaction.
type DevWallet struct {
	address string
	ledger  ledger.Client
	logger  logging.Logger
}

var _ Wallet = (*DevWallet)(nil)

func NewDevWallet(address string, client ledger.Client, logger logging.Logger) (*DevWallet, error) {
	if !env.IsValidObjectID(address) {
		return nil, fmt.Errorf("%w: address %q", ErrInvalidConfig, address)
	}
	return &DevWallet{address: env.NormalizeObjectID(address), ledger: client, logger: logger}, nil
}

func (w *DevWallet) Address() string {
	return w.address
}

func (w *DevWallet) SignAndExecute(ctx context.Context, intent *txbuilder.Intent) (*ledger.Effects, error) {
	raw, err := json.Marshal(signRequest{Sender: w.address, Intent: intent})
	if err != nil {
		return nil, fmt.Errorf("failed to encode intent: %w", err)
	}
	tx := ledger.SignedTransaction{
		TxBytes:    base64.StdEncoding.EncodeToString(raw),
		Signatures: []string{devSignature},
	}
	effects, err := execute(ctx, w.ledger, intent.Kind, tx)
	if err != nil {
		w.logger.Warn("Dev transaction failed", "kind", intent.Kind, "error", err)
		return effects, err
	}
	w.logger.Debug("Dev transaction executed", "kind", intent.Kind, "digest", effects.Digest)
	return effects, nil
}

// DecodeDevTransaction recovers the sender and intent from a DevWallet transaction.
// Numeric argument values come back as json.Number and byte vectors as base64 strings.
func DecodeDevTransaction(tx ledger.SignedTransaction) (string, *txbuilder.Intent, error) {
	raw, err := base64.StdEncoding.DecodeString(tx.TxBytes)
	if err != nil {
		return "", nil, fmt.Errorf("not a dev transaction: %w", err)
	}
	var req signRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return "", nil, fmt.Errorf("not a dev transaction: %w", err)
	}
	if req.Intent == nil {
		return "", nil, fmt.Errorf("not a dev transaction: missing intent")
	}
	return req.Sender, req.Intent, nil
}
