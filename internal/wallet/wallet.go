package wallet

import (
	"context"

	"github.com/trigg3rX/labelmarket-backend/internal/metrics"
	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
)

// Wallet signs an intent and executes it on the ledger. A nil error means the
// transaction executed successfully; failures come back as
// TransactionRejectedError, TransactionAbortedError or TransactionFailedError.
// Implementations never retry.
type Wallet interface {
	Address() string
	SignAndExecute(ctx context.Context, intent *txbuilder.Intent) (*ledger.Effects, error)
}

// execute submits a signed transaction and turns failed effects into a typed error.
func execute(ctx context.Context, client ledger.Client, kind txbuilder.Kind, tx ledger.SignedTransaction) (*ledger.Effects, error) {
	effects, err := client.ExecuteTransaction(ctx, tx)
	if err == nil {
		err = ledger.EffectsError(effects)
	}
	observe(kind, err)
	return effects, err
}

func observe(kind txbuilder.Kind, err error) {
	metrics.TransactionsTotal.WithLabelValues(string(kind), metrics.TransactionStatus(err)).Inc()
}
