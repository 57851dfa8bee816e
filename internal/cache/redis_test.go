package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

func TestNewRedisBackend_InvalidURL(t *testing.T) {
	_, err := NewRedisBackend("not a url", "")
	assert.Error(t, err)
}

func TestRedisBackend_PrefixesKeys(t *testing.T) {
	backend, err := NewRedisBackend("redis://localhost:6379/0", "")
	require.NoError(t, err)
	defer backend.Close()

	assert.Equal(t, "labelmarket:tasks:all", backend.key(KeyTasksAll))
}

func TestRedisBackend_UnreachableServerIsErrorNotMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	backend := NewRedisBackendWithClient(client, "test:")
	defer backend.Close()

	_, err := backend.Get(context.Background(), KeyTasksAll)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)

	// The layer degrades to uncached reads when the backend is down.
	layer := NewLayer(backend, DefaultConfig(), logging.NewNoOpLogger())
	value, err := Fetch(context.Background(), layer, KeyTasksAll, func(ctx context.Context) (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", value)
}
