package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trigg3rX/labelmarket-backend/internal/cache"
	"github.com/trigg3rX/labelmarket-backend/internal/devchain"
	"github.com/trigg3rX/labelmarket-backend/internal/live"
	"github.com/trigg3rX/labelmarket-backend/internal/marketplace"
	"github.com/trigg3rX/labelmarket-backend/internal/registry"
	"github.com/trigg3rX/labelmarket-backend/internal/txbuilder"
	"github.com/trigg3rX/labelmarket-backend/internal/wallet"
	"github.com/trigg3rX/labelmarket-backend/pkg/blobstore"
	pkgErrors "github.com/trigg3rX/labelmarket-backend/pkg/errors"
	"github.com/trigg3rX/labelmarket-backend/pkg/ledger"
	"github.com/trigg3rX/labelmarket-backend/pkg/logging"
)

const (
	testPackageID  = "0xfeed"
	testRegistryID = "0x1e"
	requester      = "0xca"
	labelerA       = "0xa1"
	labelerB       = "0xa2"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	store    *ledger.MemoryStore
	resolver *registry.Resolver
	layer    *cache.Layer
	builder  *txbuilder.Builder
	blobs    *blobstore.MemoryStore
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	store := ledger.NewMemoryStore()
	seeder := registry.NewSeeder(store, testPackageID, testRegistryID)
	devchain.Attach(store, seeder, logging.NewNoOpLogger())

	resolver, err := registry.NewResolver(store, registry.Config{PackageID: testPackageID, RegistryID: testRegistryID}, logging.NewNoOpLogger())
	require.NoError(t, err)
	builder, err := txbuilder.NewBuilder(txbuilder.Config{PackageID: testPackageID, RegistryID: testRegistryID})
	require.NoError(t, err)
	layer := cache.NewLayer(cache.NewMemoryBackend(), cache.Config{TTL: time.Minute}, logging.NewNoOpLogger())
	t.Cleanup(layer.Close)

	return &testEnv{store: store, resolver: resolver, layer: layer, builder: builder, blobs: blobstore.NewMemoryStore(1024)}
}

// server returns an API acting as addr; an empty addr gives a read-only server.
func (e *testEnv) server(t *testing.T, addr string) http.Handler {
	t.Helper()
	return e.serverWith(t, addr, nil)
}

func (e *testEnv) serverWith(t *testing.T, addr string, hub *live.Hub) http.Handler {
	t.Helper()
	deps := marketplace.Deps{
		Resolver: e.resolver,
		Cache:    e.layer,
		Builder:  e.builder,
		Blobs:    e.blobs,
		Logger:   logging.NewNoOpLogger(),
	}
	if addr != "" {
		w, err := wallet.NewDevWallet(addr, e.store, logging.NewNoOpLogger())
		require.NoError(t, err)
		deps.Wallet = w
	}
	svc, err := marketplace.NewService(deps)
	require.NoError(t, err)
	return NewServer(Config{Port: "0", AllowedOrigins: []string{"https://app.example"}, Live: hub}, svc, logging.NewNoOpLogger()).Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, h http.Handler, path, fileField string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile(fileField, "data.csv")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createTask(t *testing.T, h http.Handler, required int) {
	t.Helper()
	rec := upload(t, h, "/api/tasks", "dataset", []byte("img1,img2"), map[string]string{
		"title":             "Classify birds",
		"description":       "Species labels",
		"bounty":            strconv.Itoa(100 * required),
		"required_labelers": strconv.Itoa(required),
		"deadline":          time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func createProfile(t *testing.T, h http.Handler, name string) {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/profiles", map[string]any{"display_name": name, "user_type": "labeler"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHealthAndWallet(t *testing.T) {
	e := newEnv(t)

	rec := do(t, e.server(t, ""), http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["read_only"])

	rec = do(t, e.server(t, requester), http.MethodGet, "/api/wallet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["read_only"])
	assert.NotEmpty(t, body["address"])
}

func TestReads_ErrorMapping(t *testing.T) {
	e := newEnv(t)
	h := e.server(t, "")

	tests := []struct {
		name     string
		path     string
		status   int
		category pkgErrors.Category
	}{
		{"malformed task id", "/api/tasks/abc", http.StatusBadRequest, pkgErrors.CategoryInvalidInput},
		{"unknown task", "/api/tasks/42", http.StatusNotFound, pkgErrors.CategoryNotFound},
		{"malformed address", "/api/profiles/nothex", http.StatusBadRequest, pkgErrors.CategoryInvalidInput},
		{"unknown profile", "/api/profiles/0xbb", http.StatusNotFound, pkgErrors.CategoryNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, string(tt.category), body["category"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestTasks_CreateAndList(t *testing.T) {
	e := newEnv(t)
	h := e.server(t, requester)

	rec := do(t, h, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["items"])

	createTask(t, h, 2)

	rec = do(t, h, http.MethodGet, "/api/tasks?status=open", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Classify birds", items[0].(map[string]any)["title"])

	rec = do(t, h, http.MethodGet, "/api/tasks/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(100), body["payout_per_labeler"])
	assert.Equal(t, float64(2), body["slots"])
	assert.Equal(t, true, body["accepts_submissions"])

	rec = do(t, h, http.MethodGet, "/api/requesters/"+requester+"/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["items"], 1)
}

func TestTasks_CreateRejectsBadForm(t *testing.T) {
	e := newEnv(t)
	h := e.server(t, requester)

	rec := upload(t, h, "/api/tasks", "dataset", []byte("x"), map[string]string{"bounty": "lots"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = upload(t, h, "/api/tasks", "dataset", bytes.Repeat([]byte("x"), 2048), map[string]string{
		"title":             "Too big",
		"bounty":            "100",
		"required_labelers": "1",
		"deadline":          strconv.FormatInt(time.Now().Add(time.Hour).UnixMilli(), 10),
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, 0, e.store.Calls("ExecuteTransaction"))
}

func TestCancelTask_WithSubmissionIsConflict(t *testing.T) {
	e := newEnv(t)
	owner := e.server(t, requester)
	labeler := e.server(t, labelerA)

	createTask(t, owner, 2)
	createProfile(t, labeler, "alice")
	rec := upload(t, labeler, "/api/tasks/1/submissions", "result", []byte("labels"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	calls := e.store.Calls("ExecuteTransaction")
	rec = do(t, owner, http.MethodPost, "/api/tasks/1/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgErrors.CategoryGuard), decode(t, rec)["category"])
	assert.Equal(t, calls, e.store.Calls("ExecuteTransaction"))
}

func TestReviewFlow(t *testing.T) {
	e := newEnv(t)
	owner := e.server(t, requester)
	createTask(t, owner, 2)
	for i, addr := range []string{labelerA, labelerB} {
		h := e.server(t, addr)
		createProfile(t, h, fmt.Sprintf("labeler-%d", i))
		rec := upload(t, h, "/api/tasks/1/submissions", "result", []byte("labels "+addr), nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := do(t, e.server(t, labelerA), http.MethodPost, "/api/tasks/1/reviews", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, owner, http.MethodPost, "/api/tasks/1/reviews", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	roundID := decode(t, rec)["round_id"].(string)
	base := "/api/reviews/" + roundID

	rec = do(t, owner, http.MethodPost, base+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "#1, #2")

	rec = do(t, owner, http.MethodPost, base+"/accept/1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, owner, http.MethodPost, base+"/reject/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, []any{float64(1)}, body["accepted"])
	assert.Equal(t, []any{float64(2)}, body["rejected"])

	rec = do(t, owner, http.MethodPost, base+"/accept/9", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, owner, http.MethodPost, base+"/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decode(t, rec)
	assert.Equal(t, "done", body["state"])
	assert.Empty(t, body["warning"])

	rec = do(t, owner, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, owner, http.MethodGet, "/api/profiles/"+labelerA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode(t, rec)["profile"].(map[string]any)
	assert.Equal(t, float64(100), profile["total_earned"])

	rec = do(t, owner, http.MethodGet, "/api/profiles/"+labelerB+"/reputation", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["ui_score"])
}

func TestCloseReview(t *testing.T) {
	e := newEnv(t)
	owner := e.server(t, requester)
	labeler := e.server(t, labelerA)
	createTask(t, owner, 1)
	createProfile(t, labeler, "alice")
	require.Equal(t, http.StatusCreated, upload(t, labeler, "/api/tasks/1/submissions", "result", []byte("l"), nil).Code)

	rec := do(t, owner, http.MethodPost, "/api/tasks/1/reviews", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	roundID := decode(t, rec)["round_id"].(string)

	assert.Equal(t, http.StatusNoContent, do(t, owner, http.MethodDelete, "/api/reviews/"+roundID, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, owner, http.MethodDelete, "/api/reviews/"+roundID, nil).Code)
}

func TestStakes(t *testing.T) {
	e := newEnv(t)
	h := e.server(t, labelerA)

	rec := do(t, h, http.MethodPost, "/api/stakes", map[string]any{"amount": 500, "lock_duration": "72h"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/stakes/"+labelerA, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	entry := items[0].(map[string]any)
	assert.Equal(t, true, entry["locked"])
	stakeID := entry["stake"].(map[string]any)["object_id"].(string)

	rec = do(t, h, http.MethodDelete, "/api/stakes/"+stakeID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/stakes", map[string]any{"amount": 500, "lock_duration": "soon"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReadOnlyServerRefusesMutations(t *testing.T) {
	e := newEnv(t)
	h := e.server(t, "")

	rec := do(t, h, http.MethodPost, "/api/stakes", map[string]any{"amount": 1, "lock_duration": "1h"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "read-only")
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t)
	h := e.server(t, "")

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	h := e.server(t, "")
	do(t, h, http.MethodGet, "/api/health", nil)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "labelmarket_http_requests_total"))
}

func TestLive_PushesInvalidationsAfterMutation(t *testing.T) {
	e := newEnv(t)
	hub := live.NewHub(logging.NewNoOpLogger())
	hub.Attach(e.layer)
	srv := httptest.NewServer(e.serverWith(t, requester, hub))
	defer srv.Close()
	defer hub.Shutdown()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/live", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "SUBSCRIBE", "data": map[string]string{"room": "tasks:all"}}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ack map[string]any
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "SUCCESS", ack["type"])

	createTask(t, e.serverWith(t, requester, hub), 1)

	var msg struct {
		Type string `json:"type"`
		Data struct {
			Keys []string `json:"keys"`
		} `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "INVALIDATED", msg.Type)
	assert.Equal(t, []string{"tasks:all"}, msg.Data.Keys)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("task 3: %w", pkgErrors.ErrNotFound), http.StatusNotFound},
		{"legacy record", &pkgErrors.DecodeError{Kind: "task", Field: "deadline"}, http.StatusUnprocessableEntity},
		{"network", &pkgErrors.TransientNetworkError{Op: "getObject", Attempts: 3, Err: errors.New("timeout")}, http.StatusServiceUnavailable},
		{"guard", &pkgErrors.GuardError{Rule: "cancel_task"}, http.StatusConflict},
		{"too large", pkgErrors.ErrPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{"read only", marketplace.ErrReadOnly, http.StatusForbidden},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}
