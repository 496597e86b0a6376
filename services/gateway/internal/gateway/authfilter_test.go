package gateway

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goiam/pkg/auth"
	"github.com/goiam/pkg/config"
	"github.com/goiam/pkg/metrics"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFilterConfig() *config.AuthConfig {
	return &config.AuthConfig{
		Enabled:     true,
		Whitelist:   []string{"/health", "/api/v1/auth/**"},
		AdminPaths:  []string{"/api/v1/admin/**"},
		AdminRoles:  []string{"admin", "system"},
		TokenHeader: "Authorization",
		TokenPrefix: "Bearer ",
		TokenParam:  "token",
	}
}

func newFilterCodec() *auth.TokenCodec {
	return auth.NewTokenCodec(&config.JWTConfig{
		Secret: "gateway-test-secret",
		Issuer: "goiam-test",
	})
}

func issueToken(t *testing.T, codec *auth.TokenCodec, roles []string, ttl time.Duration) string {
	t.Helper()
	token, err := codec.Issue(auth.Claims{
		Username: "zhangsan",
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "1001",
		},
	}, ttl)
	require.NoError(t, err)
	return token
}

func TestDecideWhitelist(t *testing.T) {
	f := NewAuthFilter(newFilterConfig(), newFilterCodec(), metrics.NewAuthCounters())

	d := f.Decide(&authRequest{Path: "/api/v1/auth/login", Method: "POST"})
	assert.True(t, d.Forward)
	assert.Equal(t, "whitelist", d.Stage)
	assert.Nil(t, d.Claims)
}

func TestDecideDisabled(t *testing.T) {
	cfg := newFilterConfig()
	cfg.Enabled = false
	f := NewAuthFilter(cfg, newFilterCodec(), metrics.NewAuthCounters())

	d := f.Decide(&authRequest{Path: "/api/v1/users", Method: "GET"})
	assert.True(t, d.Forward)
	assert.Equal(t, "disabled", d.Stage)
}

func TestDecideMissingToken(t *testing.T) {
	f := NewAuthFilter(newFilterConfig(), newFilterCodec(), metrics.NewAuthCounters())

	d := f.Decide(&authRequest{Path: "/api/v1/users", Method: "GET"})
	assert.False(t, d.Forward)
	assert.Equal(t, 401, d.Code)
	assert.Equal(t, "extract", d.Stage)
}

func TestDecideExpiredToken(t *testing.T) {
	codec := newFilterCodec()
	f := NewAuthFilter(newFilterConfig(), codec, metrics.NewAuthCounters())
	token := issueToken(t, codec, []string{"user"}, -time.Minute)

	d := f.Decide(&authRequest{Path: "/api/v1/users", Method: "GET", Token: token})
	assert.False(t, d.Forward)
	assert.Equal(t, 401, d.Code)
	assert.Equal(t, "verify", d.Stage)
	assert.Contains(t, d.Message, "过期")
}

func TestDecideBadSignature(t *testing.T) {
	other := auth.NewTokenCodec(&config.JWTConfig{Secret: "another-secret", Issuer: "goiam-test"})
	f := NewAuthFilter(newFilterConfig(), newFilterCodec(), metrics.NewAuthCounters())
	token := issueToken(t, other, []string{"user"}, time.Hour)

	d := f.Decide(&authRequest{Path: "/api/v1/users", Method: "GET", Token: token})
	assert.False(t, d.Forward)
	assert.Equal(t, "verify", d.Stage)
	assert.Contains(t, d.Message, "签名")
}

func TestDecideAdminPath(t *testing.T) {
	codec := newFilterCodec()
	f := NewAuthFilter(newFilterConfig(), codec, metrics.NewAuthCounters())

	userToken := issueToken(t, codec, []string{"user"}, time.Hour)
	d := f.Decide(&authRequest{Path: "/api/v1/admin/settings", Method: "GET", Token: userToken})
	assert.False(t, d.Forward)
	assert.Equal(t, 403, d.Code)
	assert.Equal(t, "admin_role", d.Stage)

	// 角色匹配忽略大小写
	adminToken := issueToken(t, codec, []string{"Admin"}, time.Hour)
	d = f.Decide(&authRequest{Path: "/api/v1/admin/settings", Method: "GET", Token: adminToken})
	assert.True(t, d.Forward)
	assert.Equal(t, "inject", d.Stage)
	require.NotNil(t, d.Claims)
	assert.Equal(t, "1001", d.Claims.Subject)
}

func TestDecideNormalPath(t *testing.T) {
	codec := newFilterCodec()
	f := NewAuthFilter(newFilterConfig(), codec, metrics.NewAuthCounters())
	token := issueToken(t, codec, []string{"user"}, time.Hour)

	d := f.Decide(&authRequest{Path: "/api/v1/users", Method: "GET", Token: token})
	assert.True(t, d.Forward)
	assert.Equal(t, "inject", d.Stage)
}

func newFilterApp(f *AuthFilter) (*fiber.App, *map[string]string) {
	captured := make(map[string]string)
	app := fiber.New()
	app.Use(f.Middleware())
	app.All("/*", func(c *fiber.Ctx) error {
		for _, h := range []string{HeaderUserID, HeaderUsername, HeaderRoles, HeaderGatewayTime, HeaderRequestPath, HeaderMethod} {
			captured[h] = c.Get(h)
		}
		return c.SendString("ok")
	})
	return app, &captured
}

func TestMiddlewareInjectsHeaders(t *testing.T) {
	codec := newFilterCodec()
	counters := metrics.NewAuthCounters()
	f := NewAuthFilter(newFilterConfig(), codec, counters)
	app, captured := newFilterApp(f)

	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, codec, []string{"user", "dev"}, time.Hour))

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	headers := *captured
	assert.Equal(t, "1001", headers[HeaderUserID])
	assert.Equal(t, "zhangsan", headers[HeaderUsername])
	assert.Equal(t, "user,dev", headers[HeaderRoles])
	assert.Equal(t, "/api/v1/users", headers[HeaderRequestPath])
	assert.Equal(t, "GET", headers[HeaderMethod])
	assert.NotEmpty(t, headers[HeaderGatewayTime])
	assert.Equal(t, int64(1), counters.Snapshot().AuthSuccess)
}

func TestMiddlewareRejectsAndCounts(t *testing.T) {
	counters := metrics.NewAuthCounters()
	f := NewAuthFilter(newFilterConfig(), newFilterCodec(), counters)
	app, _ := newFilterApp(f)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/users", nil))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, int64(1), counters.Snapshot().AuthFailure)
}

func TestMiddlewareWhitelistSkipsInjection(t *testing.T) {
	counters := metrics.NewAuthCounters()
	f := NewAuthFilter(newFilterConfig(), newFilterCodec(), counters)
	app, captured := newFilterApp(f)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	headers := *captured
	assert.Empty(t, headers[HeaderUserID])
	assert.Zero(t, counters.Snapshot().AuthSuccess)
}

func TestMiddlewareTokenFromQueryParam(t *testing.T) {
	codec := newFilterCodec()
	f := NewAuthFilter(newFilterConfig(), codec, metrics.NewAuthCounters())
	app, captured := newFilterApp(f)

	req := httptest.NewRequest("GET", "/api/v1/users?token="+issueToken(t, codec, []string{"user"}, time.Hour), nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "1001", (*captured)[HeaderUserID])
}
