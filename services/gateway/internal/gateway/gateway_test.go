package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goiam/pkg/config"
	pkgRegistry "github.com/goiam/pkg/registry"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway() (*Gateway, *pkgRegistry.MemoryRegistry) {
	reg := pkgRegistry.NewMemoryRegistry()
	return NewGateway(reg, &config.Config{}), reg
}

func registerBackend(t *testing.T, reg *pkgRegistry.MemoryRegistry, name, basePath, addr string) {
	t.Helper()
	svc := pkgRegistry.NewServiceBuilder(name, "v1.0.0").
		WithAddress(addr).
		WithBasePath(basePath).
		Build()
	require.NoError(t, reg.Register(svc))
}

func TestSyncRoutesFromRegistry(t *testing.T) {
	gw, reg := newTestGateway()
	registerBackend(t, reg, "core", "core", "127.0.0.1:18082")
	registerBackend(t, reg, "auth", "auth", "127.0.0.1:18081")

	require.NoError(t, gw.SyncRoutes())

	routes := gw.GetRoutes()
	require.Len(t, routes, 2)
	assert.Equal(t, "core", routes["/api/v1/core"].ServiceName)
	assert.True(t, routes["/api/v1/core"].StripPrefix)
	assert.Equal(t, "auth", routes["/api/v1/auth"].ServiceName)
}

func TestServiceEventsUpdateRoutes(t *testing.T) {
	gw, reg := newTestGateway()
	require.NoError(t, gw.WatchServices())
	defer gw.StopWatch()

	registerBackend(t, reg, "core", "core", "127.0.0.1:18082")
	assert.Eventually(t, func() bool {
		_, ok := gw.GetRoutes()["/api/v1/core"]
		return ok
	}, time.Second, 10*time.Millisecond)

	svc := pkgRegistry.NewServiceBuilder("core", "v1.0.0").Build()
	require.NoError(t, reg.Deregister(svc))
	assert.Eventually(t, func() bool {
		return len(gw.GetRoutes()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestProxyStripsGatewayPrefix(t *testing.T) {
	var gotPath, gotForwardedFor string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotForwardedFor = r.Header.Get("X-Forwarded-For")
		_ = json.NewEncoder(w).Encode(map[string]string{"from": "backend"})
	}))
	defer backend.Close()

	gw, reg := newTestGateway()
	addr := strings.TrimPrefix(backend.URL, "http://")
	registerBackend(t, reg, "core", "core", addr)
	require.NoError(t, gw.SyncRoutes())

	app := fiber.New()
	app.All("/api/*", gw.GetHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/core/users/1", nil), 2000)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/users/1", gotPath)
	assert.NotEmpty(t, gotForwardedFor)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "backend")
}

func TestProxyUnknownRoute(t *testing.T) {
	gw, _ := newTestGateway()

	app := fiber.New()
	app.All("/api/*", gw.GetHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/nowhere/x", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProxyMethodNotAllowed(t *testing.T) {
	gw, _ := newTestGateway()
	gw.RegisterRoute(&ServiceRoute{
		ServiceName: "core",
		PathPrefix:  "/api/v1/core",
		Methods:     []string{"GET"},
	})

	app := fiber.New()
	app.All("/api/*", gw.GetHandler())

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/core/users", nil))
	require.NoError(t, err)
	assert.Equal(t, 405, resp.StatusCode)
}

func TestProxyServiceUnavailable(t *testing.T) {
	gw, _ := newTestGateway()
	// 路由存在但注册中心没有对应服务
	gw.RegisterRoute(&ServiceRoute{
		ServiceName: "ghost",
		PathPrefix:  "/api/v1/ghost",
		Methods:     pkgRegistry.DefaultMethods,
	})

	app := fiber.New()
	app.All("/api/*", gw.GetHandler())

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/ghost/x", nil))
	require.NoError(t, err)
	assert.Equal(t, 503, resp.StatusCode)
}

func TestCircuitBreakerTransitions(t *testing.T) {
	cb := NewCircuitBreaker(3, 50*time.Millisecond)

	assert.True(t, cb.Allow())
	assert.Equal(t, "closed", cb.State())

	for i := 0; i < 3; i++ {
		cb.Failure()
	}
	assert.Equal(t, "open", cb.State())
	assert.False(t, cb.Allow())

	// 超时后进入半开，成功则闭合
	time.Sleep(60 * time.Millisecond)
	assert.True(t, cb.Allow())
	assert.Equal(t, "half-open", cb.State())

	cb.Success()
	assert.Equal(t, "closed", cb.State())
	assert.True(t, cb.Allow())
}
