package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/retry"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type fakeNode struct {
	calls    atomic.Int32
	handlers map[string]func(params []json.RawMessage) (any, int)
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n.calls.Add(1)
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	handler, ok := n.handlers[req.Method]
	if !ok {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	result, status := handler(req.Params)
	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func newTestRPCClient(t *testing.T, node *fakeNode) *RPCClient {
	t.Helper()
	server := httptest.NewServer(node)
	t.Cleanup(server.Close)

	cfg := DefaultConfig(server.URL, logging.NewNoOpLogger())
	cfg.ReadTimeout = 2 * time.Second
	cfg.ReadRetry = &retry.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
	cfg.PageLimit = 2

	client, err := NewRPCClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func taskObjectJSON(id string) map[string]any {
	return map[string]any{
		"data": map[string]any{
			"objectId": id,
			"version":  "42",
			"type":     "0xpkg::marketplace::Task",
			"owner":    map[string]any{"Shared": map[string]any{"initial_shared_version": "3"}},
			"content": map[string]any{
				"dataType": "moveObject",
				"type":     "0xpkg::marketplace::Task",
				"fields":   map[string]any{"bounty": "18446744073709551615", "required_labelers": 3},
			},
		},
	}
}

func TestConfig_Validate_InvalidConfig_ReturnsError(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		expectedErr string
	}{
		{name: "bad url", config: DefaultConfig("localhost:9000", logging.NewNoOpLogger()), expectedErr: "invalid RPC URL"},
		{name: "nil logger", config: DefaultConfig("http://localhost:9000", nil), expectedErr: "logger cannot be nil"},
		{name: "zero timeout", config: &Config{RPCURL: "http://localhost:9000", Logger: logging.NewNoOpLogger(), PageLimit: 1}, expectedErr: "read timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

func TestRPCClient_GetObject_DecodesFieldsWithoutPrecisionLoss(t *testing.T) {
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) (any, int){
		methodGetObject: func(params []json.RawMessage) (any, int) {
			return taskObjectJSON("0xabc"), http.StatusOK
		},
	}}
	client := newTestRPCClient(t, node)

	obj, err := client.GetObject(context.Background(), "0xabc")
	require.NoError(t, err)

	assert.Equal(t, "0xabc", obj.ID)
	assert.Equal(t, uint64(42), obj.Version)
	assert.Equal(t, "shared", obj.Owner)
	assert.Equal(t, "18446744073709551615", obj.Fields["bounty"])
	assert.Equal(t, json.Number("3"), obj.Fields["required_labelers"])
}

func TestRPCClient_GetObject_MissingObjectReturnsNotFound(t *testing.T) {
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) (any, int){
		methodGetObject: func(params []json.RawMessage) (any, int) {
			return map[string]any{"error": map[string]any{"code": "notExists", "object_id": "0xdead"}}, http.StatusOK
		},
	}}
	client := newTestRPCClient(t, node)

	_, err := client.GetObject(context.Background(), "0xdead")
	assert.True(t, errors.Is(err, pkgErrors.ErrNotFound))
	assert.Equal(t, int32(1), node.calls.Load())
}

func TestRPCClient_Read_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) (any, int){
		methodGetObject: func(params []json.RawMessage) (any, int) {
			if attempts.Add(1) < 3 {
				return nil, http.StatusServiceUnavailable
			}
			return taskObjectJSON("0xabc"), http.StatusOK
		},
	}}
	client := newTestRPCClient(t, node)

	obj, err := client.GetObject(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", obj.ID)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRPCClient_Read_ExhaustedRetriesSurfaceTransientError(t *testing.T) {
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) (any, int){
		methodGetObject: func(params []json.RawMessage) (any, int) {
			return nil, http.StatusBadGateway
		},
	}}
	client := newTestRPCClient(t, node)

	_, err := client.GetObject(context.Background(), "0xabc")

	var transient *pkgErrors.TransientNetworkError
	require.True(t, errors.As(err, &transient))
	assert.Equal(t, methodGetObject, transient.Op)
	assert.Equal(t, 3, transient.Attempts)
	assert.Equal(t, int32(3), node.calls.Load())
}

func TestRPCClient_ListDynamicFields_FollowsCursor(t *testing.T) {
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) (any, int){
		methodGetDynamicFields: func(params []json.RawMessage) (any, int) {
			if string(params[1]) == "null" {
				next := "page-2"
				return dynamicFieldPage{
					Data: []DynamicFieldInfo{
						{Name: DynamicFieldName{Type: "u64", Value: "1"}, ObjectID: "0xf1"},
						{Name: DynamicFieldName{Type: "u64", Value: "2"}, ObjectID: "0xf2"},
					},
					NextCursor:  &next,
					HasNextPage: true,
				}, http.StatusOK
			}
			return dynamicFieldPage{
				Data: []DynamicFieldInfo{{Name: DynamicFieldName{Type: "u64", Value: "3"}, ObjectID: "0xf3"}},
			}, http.StatusOK
		},
	}}
	client := newTestRPCClient(t, node)

	fields, err := client.ListDynamicFields(context.Background(), "0xtable")
	require.NoError(t, err)
	require.Len(t, fields, 3)
	assert.Equal(t, "0xf3", fields[2].ObjectID)
	assert.Equal(t, int32(2), node.calls.Load())
}

func TestRPCClient_ExecuteTransaction_ParsesAbort(t *testing.T) {
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) (any, int){
		methodExecute: func(params []json.RawMessage) (any, int) {
			return map[string]any{
				"digest": "D1",
				"effects": map[string]any{
					"status": map[string]any{
						"status": "failure",
						"error":  `MoveAbort(MoveLocation { module: ModuleId { address: 0xpkg, name: Identifier("marketplace") }, function: 4, instruction: 9, function_name: Some("cancel_task") }, 6) in command 0`,
					},
				},
			}, http.StatusOK
		},
	}}
	client := newTestRPCClient(t, node)

	effects, err := client.ExecuteTransaction(context.Background(), SignedTransaction{TxBytes: "AAA=", Signatures: []string{"sig"}})
	require.NoError(t, err)
	assert.False(t, effects.Succeeded())
	require.NotNil(t, effects.AbortCode)
	assert.Equal(t, uint64(6), *effects.AbortCode)
	assert.Equal(t, "marketplace", effects.AbortModule)

	var aborted *pkgErrors.TransactionAbortedError
	require.True(t, errors.As(EffectsError(effects), &aborted))
	assert.Equal(t, uint64(6), aborted.Code)
}

func TestRPCClient_ExecuteTransaction_NeverRetries(t *testing.T) {
	node := &fakeNode{handlers: map[string]func([]json.RawMessage) (any, int){
		methodExecute: func(params []json.RawMessage) (any, int) {
			return nil, http.StatusServiceUnavailable
		},
	}}
	client := newTestRPCClient(t, node)

	_, err := client.ExecuteTransaction(context.Background(), SignedTransaction{TxBytes: "AAA="})

	var failed *pkgErrors.TransactionFailedError
	assert.True(t, errors.As(err, &failed))
	assert.Equal(t, int32(1), node.calls.Load())
}

func TestParseOwner(t *testing.T) {
	tests := []struct {
		raw      string
		expected string
	}{
		{raw: `{"AddressOwner":"0x1"}`, expected: "0x1"},
		{raw: `{"ObjectOwner":"0x2"}`, expected: "0x2"},
		{raw: `{"Shared":{"initial_shared_version":"1"}}`, expected: "shared"},
		{raw: `"Immutable"`, expected: "immutable"},
		{raw: `null`, expected: ""},
	}
	for _, tt := range tests {
		owner, err := parseOwner(json.RawMessage(tt.raw))
		require.NoError(t, err)
		assert.Equal(t, tt.expected, owner, tt.raw)
	}
}
