package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/trigg3rX/labelmarket-backend/internal/config"
	"github.com/trigg3rX/labelmarket-backend/internal/marketplace"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
	"github.com/trigg3rX/labelmarket-backend/pkg/retry"
)

func setDevEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DEV_MODE", "true")
	t.Setenv("LABELMARKET_PACKAGE_ID", "0xfeed")
	t.Setenv("LABELMARKET_REGISTRY_ID", "0x1e")
	t.Setenv("LEDGER_RPC_URL", "memory")
	t.Setenv("BLOB_BACKEND", "memory")
	t.Setenv("WALLET_ADDRESS", "0xca")
}

func TestNewRuntime_DevLedger(t *testing.T) {
	setDevEnv(t)
	cfg, err := config.Load()
	require.NoError(t, err)

	rt, err := newRuntime(context.Background(), cfg, logging.NewNoOpLogger())
	require.NoError(t, err)
	defer rt.close()
	ctx := context.Background()

	assert.NotEmpty(t, rt.service.Address())
	_, err = rt.service.CreateTask(ctx, marketplace.CreateTaskInput{
		Title:              "Segment roads",
		Dataset:            []byte("tiles"),
		DatasetFilename:    "tiles.zip",
		DatasetContentType: "application/zip",
		Bounty:             90,
		RequiredLabelers:   3,
		Deadline:           time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	listing, err := rt.service.Tasks(ctx)
	require.NoError(t, err)

	var out bytes.Buffer
	printTasks(&out, listing)
	assert.Contains(t, out.String(), "Segment roads")
	assert.Contains(t, out.String(), "0/3")
	assert.NotContains(t, out.String(), "warning")
}

func TestNewRuntime_ReadOnlyWithoutWallet(t *testing.T) {
	setDevEnv(t)
	t.Setenv("WALLET_ADDRESS", "")
	cfg, err := config.Load()
	require.NoError(t, err)

	rt, err := newRuntime(context.Background(), cfg, logging.NewNoOpLogger())
	require.NoError(t, err)
	defer rt.close()

	assert.Empty(t, rt.service.Address())
	_, err = rt.service.CancelTask(context.Background(), 1)
	assert.ErrorIs(t, err, marketplace.ErrReadOnly)
}

func TestNewRuntime_BadAbortCatalog(t *testing.T) {
	setDevEnv(t)
	t.Setenv("ABORT_CODES_FILE", "/nonexistent/abort_codes.yaml")
	cfg, err := config.Load()
	require.NoError(t, err)

	_, err = newRuntime(context.Background(), cfg, logging.NewNoOpLogger())
	assert.ErrorContains(t, err, "abort codes")
}

func TestApp_TasksListOnEmptyLedger(t *testing.T) {
	setDevEnv(t)

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"labelmarket", "tasks", "list"}))
	assert.Contains(t, out.String(), "ID")
	assert.Contains(t, out.String(), "DEADLINE")
}

func TestApp_ArgumentErrors(t *testing.T) {
	setDevEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"show without id", []string{"labelmarket", "tasks", "show"}},
		{"show with bad id", []string{"labelmarket", "tasks", "show", "abc"}},
		{"finalize without task", []string{"labelmarket", "review", "finalize"}},
		{"finalize with bad id", []string{"labelmarket", "review", "finalize", "--task", "1", "--accept", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp()
			app.Writer = &bytes.Buffer{}
			app.ErrWriter = &bytes.Buffer{}
			app.ExitErrHandler = func(*cli.Context, error) {}
			assert.Error(t, app.Run(tt.args))
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"1", " #2", "3"})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	_, err = parseIDs([]string{"-1"})
	assert.Error(t, err)
}

type flakyPinger struct {
	failures int
	calls    int
}

func (p *flakyPinger) Ping(ctx context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForCache(t *testing.T) {
	fast := retry.DefaultRetryConfig()
	fast.MaxAttempts = 3
	fast.InitialDelay = time.Millisecond
	fast.MaxDelay = 2 * time.Millisecond

	tests := []struct {
		name      string
		failures  int
		wantErr   bool
		wantCalls int
	}{
		{"ready at once", 0, false, 1},
		{"comes up after two refusals", 2, false, 3},
		{"never comes up", 10, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &flakyPinger{failures: tt.failures}
			err := waitForCache(context.Background(), p, fast, logging.NewNoOpLogger())
			if tt.wantErr {
				var exhausted *retry.ExhaustedError
				assert.True(t, errors.As(err, &exhausted))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, p.calls)
		})
	}
}
