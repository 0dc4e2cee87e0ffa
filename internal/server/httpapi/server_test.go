package httpapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmsavelyev/chatvault/internal/audit"
	"github.com/dmsavelyev/chatvault/internal/cryptox"
	"github.com/dmsavelyev/chatvault/internal/logging"
	"github.com/dmsavelyev/chatvault/internal/messaging"
	"github.com/dmsavelyev/chatvault/internal/server/auth"
	"github.com/dmsavelyev/chatvault/internal/session"
	"github.com/dmsavelyev/chatvault/internal/session/registry"
)

type fakeClient struct {
	events chan messaging.Event

	mu        sync.Mutex
	destroyed bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan messaging.Event, 16)}
}

func (c *fakeClient) Initialize(_ context.Context) error { return nil }

func (c *fakeClient) Destroy(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.destroyed {
		c.destroyed = true
		close(c.events)
	}
	return nil
}

func (c *fakeClient) Events() <-chan messaging.Event { return c.events }

func (c *fakeClient) GetContactByID(_ context.Context, _ string) (*messaging.Contact, error) {
	return nil, nil
}

func (c *fakeClient) GetChatByID(_ context.Context, _ string) (*messaging.Chat, error) {
	return nil, nil
}

func (c *fakeClient) DownloadMedia(_ context.Context, _ string) (*messaging.Media, error) {
	return nil, nil
}

type fixture struct {
	server  *Server
	handler http.Handler
	clients map[string]*fakeClient
	mu      sync.Mutex
}

func (f *fixture) client(id string) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clients[id]
}

func setup(t *testing.T, qrWait time.Duration, secretKey string) *fixture {
	t.Helper()

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	db, err := registry.InitDatabase(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := registry.NewSQLiteRepository(db)

	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	cipher, err := cryptox.NewCipher(key)
	require.NoError(t, err)
	dirs := audit.Dirs{Base: t.TempDir()}
	normalizer := audit.NewNormalizer(audit.NewLogWriter(dirs, cipher), audit.NewVault(dirs, cipher), false, logger)

	f := &fixture{clients: make(map[string]*fakeClient)}
	factory := func(id, credsDir string) messaging.Client {
		c := newFakeClient()
		f.mu.Lock()
		f.clients[id] = c
		f.mu.Unlock()
		return c
	}

	manager := session.NewManager(repo, factory, normalizer, t.TempDir(), logger)
	t.Cleanup(func() { manager.StopAll(context.Background()) })

	f.server = NewServer(":0", manager, qrWait, secretKey, logger)
	f.handler = f.server.Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestCreateNumber_ReturnsQR(t *testing.T) {
	f := setup(t, 2*time.Second, "")

	go func() {
		for f.client("79001112233") == nil {
			time.Sleep(5 * time.Millisecond)
		}
		f.client("79001112233").events <- messaging.QREvent{Code: "pairing-challenge"}
	}()

	rr := f.do(t, http.MethodPost, "/numbers", map[string]string{"id": "79001112233", "name": "work"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	resp := decode[map[string]any](t, rr)
	assert.Equal(t, "79001112233", resp["id"])
	assert.Equal(t, "work", resp["name"])
	assert.Equal(t, "qr", resp["waitResult"])
	assert.Equal(t, "qr", resp["status"])
	assert.Contains(t, resp["qr"], "data:image/png;base64,")
}

func TestCreateNumber_Timeout(t *testing.T) {
	f := setup(t, 50*time.Millisecond, "")

	rr := f.do(t, http.MethodPost, "/numbers", map[string]string{"id": "79001112233"})
	require.Equal(t, http.StatusOK, rr.Code)

	resp := decode[map[string]any](t, rr)
	assert.Equal(t, "timeout", resp["waitResult"])
	assert.Equal(t, "initializing", resp["status"])
	assert.NotContains(t, resp, "qr")
}

func TestCreateNumber_BadRequests(t *testing.T) {
	f := setup(t, 50*time.Millisecond, "")

	rr := f.do(t, http.MethodPost, "/numbers", map[string]string{"name": "no id"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/numbers", bytes.NewReader([]byte("{broken")))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListNumbers(t *testing.T) {
	f := setup(t, 50*time.Millisecond, "")

	rr := f.do(t, http.MethodGet, "/numbers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	f.do(t, http.MethodPost, "/numbers", map[string]string{"id": "79001112233"})

	rr = f.do(t, http.MethodGet, "/numbers", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]map[string]any](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "79001112233", list[0]["id"])
}

func TestNumberStatus(t *testing.T) {
	f := setup(t, 50*time.Millisecond, "")
	f.do(t, http.MethodPost, "/numbers", map[string]string{"id": "79001112233"})

	rr := f.do(t, http.MethodGet, "/numbers/79001112233/status", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[map[string]any](t, rr)
	assert.Equal(t, "initializing", resp["status"])

	rr = f.do(t, http.MethodGet, "/numbers/unknown/status", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNumberQR_NotAvailableYet(t *testing.T) {
	f := setup(t, 50*time.Millisecond, "")
	f.do(t, http.MethodPost, "/numbers", map[string]string{"id": "79001112233"})

	rr := f.do(t, http.MethodGet, "/numbers/79001112233/qr", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodGet, "/numbers/unknown/qr", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestNumberQR_Available(t *testing.T) {
	f := setup(t, 2*time.Second, "")

	go func() {
		for f.client("79001112233") == nil {
			time.Sleep(5 * time.Millisecond)
		}
		f.client("79001112233").events <- messaging.QREvent{Code: "pairing-challenge"}
	}()

	f.do(t, http.MethodPost, "/numbers", map[string]string{"id": "79001112233"})

	rr := f.do(t, http.MethodGet, "/numbers/79001112233/qr", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[qrResponse](t, rr)
	assert.Equal(t, "79001112233", resp.ID)
	assert.Contains(t, resp.QR, "data:image/png;base64,")
}

func TestDeleteNumber(t *testing.T) {
	f := setup(t, 50*time.Millisecond, "")
	f.do(t, http.MethodPost, "/numbers", map[string]string{"id": "79001112233"})

	rr := f.do(t, http.MethodDelete, "/numbers/79001112233", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[deleteResponse](t, rr)
	assert.True(t, resp.Disconnected)
	assert.True(t, resp.Removed)

	rr = f.do(t, http.MethodGet, "/numbers/79001112233/status", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.do(t, http.MethodDelete, "/numbers/79001112233", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestClearNumbers(t *testing.T) {
	f := setup(t, 50*time.Millisecond, "")
	f.do(t, http.MethodPost, "/numbers", map[string]string{"id": "79001112233"})
	f.do(t, http.MethodPost, "/numbers", map[string]string{"id": "79004445566"})

	rr := f.do(t, http.MethodPost, "/numbers/clear", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decode[map[string]any](t, rr)
	assert.Equal(t, float64(2), resp["cleared"])

	rr = f.do(t, http.MethodGet, "/numbers", nil)
	assert.JSONEq(t, "[]", rr.Body.String())
}

func TestAuth_Enforced(t *testing.T) {
	f := setup(t, 50*time.Millisecond, "apisecret")

	rr := f.do(t, http.MethodGet, "/numbers", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	token, err := auth.GenerateToken("ops", []byte("apisecret"), time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/numbers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID_Echoed(t *testing.T) {
	f := setup(t, 50*time.Millisecond, "")

	rr := f.do(t, http.MethodGet, "/numbers", nil)
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/numbers", nil)
	req.Header.Set("X-Request-Id", "fixed-id")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "fixed-id", rec.Header().Get("X-Request-Id"))
}
