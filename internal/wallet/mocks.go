package wallet

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
)

// MockWallet is a testify mock of Wallet.
type MockWallet struct {
	mock.Mock
}

var _ Wallet = (*MockWallet)(nil)

func (m *MockWallet) Address() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockWallet) SignAndExecute(ctx context.Context, intent *txbuilder.Intent) (*ledger.Effects, error) {
	args := m.Called(ctx, intent)
	if effects := args.Get(0); effects != nil {
		return effects.(*ledger.Effects), args.Error(1)
	}
	return nil, args.Error(1)
}
