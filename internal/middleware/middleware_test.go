package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanflow/api/internal/auth"
	"github.com/cleanflow/api/internal/model"
)

const secret = "middleware-secret"

type fakeVerifier struct{}

func (fakeVerifier) Validate(token string) (*auth.Claims, error) {
	if token == "idp-admin" {
		return &auth.Claims{UserID: "idp-1", Roles: []string{"admin"}}, nil
	}
	return nil, errors.New("unknown token")
}

func (fakeVerifier) Close() error { return nil }

// whoami echoes the actor resolved by the middleware chain
func whoami(c *fiber.Ctx) error {
	return c.SendString(GetUserID(c) + "/" + GetRole(c))
}

func call(t *testing.T, app *fiber.App, path string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func bearer(t *testing.T, userID, role string) map[string]string {
	t.Helper()
	token, err := auth.SignLegacyToken(secret, userID, role)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestAuthenticateLegacy(t *testing.T) {
	app := fiber.New()
	app.Get("/me", NewLegacyAuthMiddleware(secret).Authenticate(), whoami)

	status, body := call(t, app, "/me", bearer(t, "u-1", model.RoleAdmin))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u-1/admin", body)

	// roles outside the known set act as cleaners
	status, body = call(t, app, "/me", bearer(t, "u-2", "root"))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u-2/cleaner", body)

	status, _ = call(t, app, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = call(t, app, "/me", map[string]string{"Authorization": "Token abc"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthenticateWithFallback(t *testing.T) {
	app := fiber.New()
	app.Get("/me", NewAuthMiddlewareWithFallback(fakeVerifier{}, secret).Authenticate(), whoami)

	status, body := call(t, app, "/me", map[string]string{"Authorization": "Bearer idp-admin"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "idp-1/admin", body)

	status, body = call(t, app, "/me", bearer(t, "u-3", model.RoleCleaner))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "u-3/cleaner", body)

	jwksOnly := fiber.New()
	jwksOnly.Get("/me", NewAuthMiddleware(fakeVerifier{}).Authenticate(), whoami)
	status, _ = call(t, jwksOnly, "/me", bearer(t, "u-3", model.RoleCleaner))
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestGatewayAuthAndRequireRole(t *testing.T) {
	app := fiber.New()
	app.Get("/admin", GatewayAuthMiddleware(), RequireRole(model.RoleAdmin), whoami)

	status, _ := call(t, app, "/admin", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = call(t, app, "/admin", map[string]string{"X-User-Id": "gw-1"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := call(t, app, "/admin", map[string]string{"X-User-Id": "gw-1", "X-User-Role": "admin"})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "gw-1/admin", body)
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	rl := NewRateLimiter(rdb)

	app := fiber.New()
	app.Get("/limited", GatewayAuthMiddleware(), rl.MutationLimit(2), whoami)
	app.Get("/open", GatewayAuthMiddleware(), rl.EventLimit(0), whoami)

	alice := map[string]string{"X-User-Id": "alice"}
	bob := map[string]string{"X-User-Id": "bob"}

	for i := 0; i < 2; i++ {
		status, _ := call(t, app, "/limited", alice)
		assert.Equal(t, http.StatusOK, status)
	}
	status, _ := call(t, app, "/limited", alice)
	assert.Equal(t, http.StatusTooManyRequests, status)

	// limits are per actor
	status, _ = call(t, app, "/limited", bob)
	assert.Equal(t, http.StatusOK, status)

	ttl := mr.TTL("ratelimit:mutation:alice")
	assert.True(t, ttl > 0, "window must expire")

	for i := 0; i < 5; i++ {
		status, _ = call(t, app, "/open", alice)
		assert.Equal(t, http.StatusOK, status)
	}
}
