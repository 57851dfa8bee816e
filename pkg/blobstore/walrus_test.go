package blobstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

func newTestWalrusStore(t *testing.T, handler http.HandlerFunc) (*WalrusStore, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	store, err := NewWalrusStore(NewConfig(server.URL, server.URL, 5), logging.NewNoOpLogger())
	require.NoError(t, err)
	store.httpClient.HTTPConfig.RetryConfig.InitialDelay = 1
	store.httpClient.HTTPConfig.RetryConfig.MaxDelay = 1
	t.Cleanup(store.Close)
	return store, &calls
}

func TestWalrusStore_StoreThenFetch(t *testing.T) {
	var stored []byte
	store, _ := newTestWalrusStore(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			assert.Equal(t, "/v1/blobs", r.URL.Path)
			assert.Equal(t, "5", r.URL.Query().Get("epochs"))
			stored, _ = io.ReadAll(r.Body)
			_, _ = w.Write([]byte(`{"newlyCreated":{"blobObject":{"blobId":"blob-1"}}}`))
		case http.MethodGet:
			assert.Equal(t, "/v1/blobs/blob-1", r.URL.Path)
			_, _ = w.Write(stored)
		}
	})

	blob, err := store.Store(context.Background(), []byte("label,cat\n"), "labels.csv", "text/csv")
	require.NoError(t, err)
	assert.Equal(t, "blob-1", blob.ID)
	assert.Equal(t, store.BlobURL("blob-1"), blob.URL)

	data, err := store.Fetch(context.Background(), blob.URL)
	require.NoError(t, err)
	assert.Equal(t, "label,cat\n", string(data))
}

func TestWalrusStore_AlreadyCertified(t *testing.T) {
	store, _ := newTestWalrusStore(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"alreadyCertified":{"blobId":"blob-9"}}`))
	})

	blob, err := store.Store(context.Background(), []byte("x"), "x.bin", "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, "blob-9", blob.ID)
}

func TestWalrusStore_StoreErrorsMapToDistinctCategories(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		expected      error
		expectedCalls int32
	}{
		{name: "too large", status: http.StatusRequestEntityTooLarge, expected: pkgErrors.ErrPayloadTooLarge, expectedCalls: 1},
		{name: "forbidden", status: http.StatusForbidden, expected: pkgErrors.ErrBlobAccessDenied, expectedCalls: 1},
		{name: "server error retried", status: http.StatusInternalServerError, expected: pkgErrors.ErrBlobServer, expectedCalls: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, calls := newTestWalrusStore(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := store.Store(context.Background(), []byte("data"), "f", "text/plain")
			assert.True(t, errors.Is(err, tt.expected), "got %v", err)
			assert.Equal(t, tt.expectedCalls, calls.Load())
		})
	}
}

func TestWalrusStore_OversizedPayloadRejectedLocally(t *testing.T) {
	store, calls := newTestWalrusStore(t, func(w http.ResponseWriter, r *http.Request) {})
	store.config.MaxBytes = 4

	_, err := store.Store(context.Background(), []byte("12345"), "f", "text/plain")
	assert.True(t, errors.Is(err, pkgErrors.ErrPayloadTooLarge))
	assert.Equal(t, pkgErrors.CategoryPayloadTooLarge, pkgErrors.Classify(err))
	assert.Equal(t, int32(0), calls.Load())
}

func TestWalrusStore_UnreachablePublisherIsNetworkError(t *testing.T) {
	store, err := NewWalrusStore(NewConfig("http://127.0.0.1:1", "http://127.0.0.1:1", 1), logging.NewNoOpLogger())
	require.NoError(t, err)
	store.httpClient.HTTPConfig.RetryConfig.MaxAttempts = 1

	_, err = store.Store(context.Background(), []byte("data"), "f", "text/plain")
	assert.True(t, errors.Is(err, pkgErrors.ErrBlobNetwork), "got %v", err)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	store := NewMemoryStore(DefaultMaxBytes)
	blob, err := store.Store(context.Background(), []byte("hello"), "a.txt", "text/plain")
	require.NoError(t, err)

	data, err := store.Fetch(context.Background(), blob.URL)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = store.Fetch(context.Background(), "mem://missing")
	assert.True(t, errors.Is(err, pkgErrors.ErrNotFound))
}
