package httpapi

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owulveryck/symbion-kernel/internal/agentregistry"
	"github.com/owulveryck/symbion-kernel/internal/appctx"
	"github.com/owulveryck/symbion-kernel/internal/bridge"
	"github.com/owulveryck/symbion-kernel/internal/bus"
	"github.com/owulveryck/symbion-kernel/internal/config"
	"github.com/owulveryck/symbion-kernel/internal/contracts"
	"github.com/owulveryck/symbion-kernel/internal/health"
	"github.com/owulveryck/symbion-kernel/internal/supervisor"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(t *testing.T, apiKey string) *appctx.Context {
	t.Helper()
	logger := silentLogger()

	cfg := &config.Config{
		APIKey:        apiKey,
		BusTopicPrefix: "symbion",
		Hosts: map[string]config.HostConf{
			"desk-01": {MAC: "AA:BB:CC:DD:EE:FF", Hint: "127.255.255.255"},
		},
	}

	fakeBus := bus.NewFakeClient()
	catalog, err := contracts.LoadFromDir(t.TempDir(), logger)
	require.NoError(t, err)

	registry := agentregistry.New(t.TempDir()+"/agents.json", logger, nil)
	dispatcher := agentregistry.NewDispatcher(fakeBus, registry, cfg.BusTopicPrefix, logger, nil)
	sup := supervisor.NewManager(t.TempDir(), "localhost", "1883", logger, nil)
	br := bridge.New(fakeBus, 50*time.Millisecond, 0, logger, nil)
	tracker := health.NewTracker(fakeBus, catalog, registry, sup, br, logger)

	return &appctx.Context{
		Config:     cfg,
		Logger:     logger,
		Bus:        fakeBus,
		Catalog:    catalog,
		Registry:   registry,
		Dispatcher: dispatcher,
		Supervisor: sup,
		Bridge:     br,
		Health:     tracker,
	}
}

func TestHealthLivenessNeedsNoAuth(t *testing.T) {
	app := newTestApp(t, "secret")
	router := NewRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthenticatedRouteRejectsMissingKey(t *testing.T) {
	app := newTestApp(t, "secret")
	router := NewRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/system/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticatedRouteFailsClosedOnEmptySecret(t *testing.T) {
	app := newTestApp(t, "")
	router := NewRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/system/health", nil)
	req.Header.Set("x-api-key", "")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticatedRouteAcceptsValidKey(t *testing.T) {
	app := newTestApp(t, "secret")
	router := NewRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/system/health", nil)
	req.Header.Set("x-api-key", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetUnknownAgentReturnsNotFound(t *testing.T) {
	app := newTestApp(t, "secret")
	router := NewRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/agents/ghost", nil)
	req.Header.Set("x-api-key", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWakeUnknownHostReturnsNotFound(t *testing.T) {
	app := newTestApp(t, "secret")
	router := NewRouter(app)

	req := httptest.NewRequest(http.MethodPost, "/agents/ghost/wake", nil)
	req.Header.Set("x-api-key", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListPluginsAndContractsAreEmptyByDefault(t *testing.T) {
	app := newTestApp(t, "secret")
	router := NewRouter(app)

	for _, path := range []string{"/plugins", "/contracts", "/agents"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("x-api-key", "secret")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equalf(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestPluginActionOnUnknownPluginReturnsNotFound(t *testing.T) {
	app := newTestApp(t, "secret")
	router := NewRouter(app)

	req := httptest.NewRequest(http.MethodPost, "/plugins/ghost/start", nil)
	req.Header.Set("x-api-key", "secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
