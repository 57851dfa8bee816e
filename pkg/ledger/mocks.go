package ledger

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of Client for call-level assertions.
type MockClient struct {
	mock.Mock
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) GetObject(ctx context.Context, id string) (*Object, error) {
	args := m.Called(ctx, id)
	if obj := args.Get(0); obj != nil {
		return obj.(*Object), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) GetDynamicField(ctx context.Context, parentID string, name DynamicFieldName) (*Object, error) {
	args := m.Called(ctx, parentID, name)
	if obj := args.Get(0); obj != nil {
		return obj.(*Object), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) ListDynamicFields(ctx context.Context, parentID string) ([]DynamicFieldInfo, error) {
	args := m.Called(ctx, parentID)
	if fields := args.Get(0); fields != nil {
		return fields.([]DynamicFieldInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) ListOwnedObjects(ctx context.Context, owner, structType string) ([]*Object, error) {
	args := m.Called(ctx, owner, structType)
	if objects := args.Get(0); objects != nil {
		return objects.([]*Object), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockClient) ExecuteTransaction(ctx context.Context, tx SignedTransaction) (*Effects, error) {
	args := m.Called(ctx, tx)
	if effects := args.Get(0); effects != nil {
		return effects.(*Effects), args.Error(1)
	}
	return nil, args.Error(1)
}
