package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
)

func TestMemoryStore_TableEntriesResolveThroughDynamicFields(t *testing.T) {
	store := NewMemoryStore()
	store.PutObject(&Object{ID: "0xt1", Type: "0xpkg::marketplace::Task", Fields: map[string]any{"title": "cats"}})
	store.PutTableEntry("0xtasks", DynamicFieldName{Type: "u64", Value: "1"}, "0xt1")

	ctx := context.Background()
	fields, err := store.ListDynamicFields(ctx, "0xtasks")
	require.NoError(t, err)
	require.Len(t, fields, 1)

	entry, err := store.GetDynamicField(ctx, "0xtasks", fields[0].Name)
	require.NoError(t, err)
	assert.Equal(t, "0xt1", entry.Fields["value"])

	obj, err := store.GetObject(ctx, "0xt1")
	require.NoError(t, err)
	assert.Equal(t, "cats", obj.Fields["title"])

	// Mutating the returned copy does not touch the stored object.
	obj.Fields["title"] = "dogs"
	again, err := store.GetObject(ctx, "0xt1")
	require.NoError(t, err)
	assert.Equal(t, "cats", again.Fields["title"])

	assert.Equal(t, 3, store.TotalReads())
}

func TestMemoryStore_MissingKeyIsNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.GetDynamicField(context.Background(), "0xtasks", DynamicFieldName{Type: "u64", Value: "9"})
	assert.True(t, errors.Is(err, pkgErrors.ErrNotFound))

	_, err = store.GetObject(context.Background(), "0xnothing")
	assert.True(t, errors.Is(err, pkgErrors.ErrNotFound))
}

func TestMemoryStore_FailObject(t *testing.T) {
	store := NewMemoryStore()
	store.PutObject(&Object{ID: "0x1"})
	boom := errors.New("pruned")
	store.FailObject("0x1", boom)

	_, err := store.GetObject(context.Background(), "0x1")
	assert.ErrorIs(t, err, boom)
}

func TestMemoryStore_ListOwnedObjectsFiltersByType(t *testing.T) {
	store := NewMemoryStore()
	store.PutObject(&Object{ID: "0x2", Owner: "0xalice", Type: "0xpkg::staking::Stake"})
	store.PutObject(&Object{ID: "0x1", Owner: "0xalice", Type: "0xpkg::staking::Stake"})
	store.PutObject(&Object{ID: "0x3", Owner: "0xalice", Type: "0xpkg::profile::Profile"})
	store.PutObject(&Object{ID: "0x4", Owner: "0xbob", Type: "0xpkg::staking::Stake"})

	owned, err := store.ListOwnedObjects(context.Background(), "0xalice", "0xpkg::staking::Stake")
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, "0x1", owned[0].ID)
	assert.Equal(t, "0x2", owned[1].ID)
}

func TestMemoryStore_ExecuteHook(t *testing.T) {
	store := NewMemoryStore()
	code := uint64(2)
	store.ExecuteHook = func(tx SignedTransaction) (*Effects, error) {
		return &Effects{Status: StatusFailure, AbortCode: &code, AbortModule: "marketplace"}, nil
	}

	effects, err := store.ExecuteTransaction(context.Background(), SignedTransaction{TxBytes: "x"})
	require.NoError(t, err)
	assert.Error(t, EffectsError(effects))
	assert.Len(t, store.Executed(), 1)
	assert.Equal(t, 0, store.TotalReads())
}

func TestParseAbort(t *testing.T) {
	module, code, ok := ParseAbort(`MoveAbort(MoveLocation { module: ModuleId { address: 0x1, name: Identifier("staking") }, function: 1, instruction: 3, function_name: Some("unstake") }, 2) in command 0`)
	require.True(t, ok)
	assert.Equal(t, "staking", module)
	assert.Equal(t, uint64(2), code)

	_, _, ok = ParseAbort("InsufficientGas")
	assert.False(t, ok)
}
