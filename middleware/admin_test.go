package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminApp() *fiber.App {
	app := fiber.New()
	admin := app.Group("/admin", AdminContextMiddleware())
	admin.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user_id": c.Locals("user_id")})
	})
	return app
}

func TestAdminContextMiddleware(t *testing.T) {
	app := adminApp()

	t.Run("Failure - Missing X-User-ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/ping", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Failure - Authenticated but not admin", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/ping", nil)
		req.Header.Set("X-User-ID", "user-1")
		req.Header.Set("X-User-Roles", "viewer,finance")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("Failure - Empty roles header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/ping", nil)
		req.Header.Set("X-User-ID", "user-1")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("Success - Admin role passes through", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/admin/ping", nil)
		req.Header.Set("X-User-ID", "user-1")
		req.Header.Set("X-User-Roles", "viewer, admin")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
