package middleware

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/ledger-market/backend/internal/models"
	"github.com/ledger-market/backend/internal/rbac"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withActor(actor models.Actor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(CtxActor, actor)
		return c.Next()
	}
}

func ok(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }

func status(t *testing.T, app *fiber.App, path string) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil), -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestRequestIDIsEchoed(t *testing.T) {
	app := fiber.New()
	app.Use(RequestIDMiddleware())
	app.Get("/", ok)

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, "abc", resp.Header.Get("X-Request-ID"))

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	_, err = uuid.Parse(resp.Header.Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestRequirePermission(t *testing.T) {
	buyer := models.Actor{AccountID: uuid.New(), Role: models.RoleBuyer}
	seller := models.Actor{AccountID: uuid.New(), Role: models.RoleSeller}

	app := fiber.New()
	app.Get("/buyer/ship", withActor(buyer), RequirePermission(rbac.PermShipOrder), ok)
	app.Get("/seller/ship", withActor(seller), RequirePermission(rbac.PermShipOrder), ok)
	app.Get("/seller/admin", withActor(seller), AdminMiddleware(), ok)

	assert.Equal(t, fiber.StatusForbidden, status(t, app, "/buyer/ship"))
	assert.Equal(t, fiber.StatusOK, status(t, app, "/seller/ship"))
	assert.Equal(t, fiber.StatusForbidden, status(t, app, "/seller/admin"))
}

func TestRateLimitWithoutRedisPassesThrough(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimitMiddleware(nil, 1, time.Minute))
	app.Get("/", ok)

	for i := 0; i < 3; i++ {
		assert.Equal(t, fiber.StatusOK, status(t, app, "/"))
	}
}

func TestRateLimitWithRedis(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })

	actor := models.Actor{AccountID: uuid.New(), Role: models.RoleBuyer}
	path := "/limited-" + actor.AccountID.String()
	t.Cleanup(func() { rdb.Del(context.Background(), "rl:"+path+":"+actor.AccountID.String()) })

	app := fiber.New()
	app.Use(withActor(actor), RateLimitMiddleware(rdb, 2, time.Minute))
	app.Get(path, ok)

	assert.Equal(t, fiber.StatusOK, status(t, app, path))
	assert.Equal(t, fiber.StatusOK, status(t, app, path))
	assert.Equal(t, fiber.StatusTooManyRequests, status(t, app, path))
}
