package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{name: "nil", err: nil, expected: CategoryNone},
		{name: "not found wrapped", err: fmt.Errorf("load task 7: %w", ErrNotFound), expected: CategoryNotFound},
		{name: "decode", err: &DecodeError{Kind: "task", ObjectID: "0x1", Field: "qualityTrackerId", Reason: "missing"}, expected: CategoryLegacyRecord},
		{name: "network", err: &TransientNetworkError{Op: "getObject", Attempts: 3, Err: errors.New("timeout")}, expected: CategoryNetwork},
		{name: "rejected", err: &TransactionRejectedError{}, expected: CategoryRejected},
		{name: "aborted", err: &TransactionAbortedError{Code: 2, Module: "marketplace"}, expected: CategoryContractAbort},
		{name: "failed", err: &TransactionFailedError{Raw: "InsufficientGas"}, expected: CategoryTransaction},
		{name: "partial", err: &PartialOrchestrationFailure{Operation: "finalize"}, expected: CategoryPartial},
		{name: "guard", err: &GuardError{Rule: "cancel", Detail: "task has submissions"}, expected: CategoryGuard},
		{name: "validation", err: &ValidationError{Field: "bounty", Reason: "must be positive"}, expected: CategoryInvalidInput},
		{name: "payload too large", err: fmt.Errorf("upload: %w", ErrPayloadTooLarge), expected: CategoryPayloadTooLarge},
		{name: "blob network", err: ErrBlobNetwork, expected: CategoryBlobNetwork},
		{name: "blob denied", err: ErrBlobAccessDenied, expected: CategoryBlobAccessDenied},
		{name: "blob server", err: ErrBlobServer, expected: CategoryBlobServer},
		{name: "cancelled", err: context.Canceled, expected: CategoryCancelled},
		{name: "unknown", err: errors.New("boom"), expected: CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestUserMessage_AbortCodeUsesCatalog(t *testing.T) {
	err := &TransactionAbortedError{Code: 6, Module: "marketplace", Raw: "MoveAbort(..., 6)"}

	msg := UserMessage(err)

	assert.Equal(t, "The task has submissions and can no longer be cancelled.", msg)
	assert.NotContains(t, msg, "MoveAbort")
	assert.Contains(t, Detail(err), "code 6")
}

func TestUserMessage_UnknownAbortCodeFallsBack(t *testing.T) {
	msg := UserMessage(&TransactionAbortedError{Code: 999, Module: "marketplace"})
	assert.Equal(t, categoryMessages[CategoryContractAbort], msg)
}

func TestUserMessage_DecodeErrorNamesField(t *testing.T) {
	msg := UserMessage(&DecodeError{Kind: "task", ObjectID: "0x1", Field: "qualityTrackerId", Reason: "missing"})
	assert.Contains(t, msg, "qualityTrackerId")
}

func TestParseAbortCatalog(t *testing.T) {
	catalog, err := ParseAbortCatalog([]byte("custom:\n  42: \"nope\"\n"))
	require.NoError(t, err)

	msg, ok := catalog.Explain("custom", 42)
	assert.True(t, ok)
	assert.Equal(t, "nope", msg)

	_, ok = catalog.Explain("custom", 1)
	assert.False(t, ok)
}

func TestPartialOrchestrationFailure_Error(t *testing.T) {
	err := &PartialOrchestrationFailure{
		Operation: "finalize consensus",
		Succeeded: []uint64{1, 2},
		Failed:    []StatusUpdateFailure{{SubmissionID: 3, Accepted: false, Err: errors.New("gas")}},
	}
	assert.Equal(t, "finalize consensus committed but 1 of 3 status updates failed (submissions 3)", err.Error())
}

func TestTransientNetworkError_Unwrap(t *testing.T) {
	err := &TransientNetworkError{Op: "getObject", Attempts: 3, Err: context.DeadlineExceeded}
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	// Network classification wins over the wrapped cancellation.
	assert.Equal(t, CategoryNetwork, Classify(err))
}
