// middleware/admin.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AdminContextMiddleware extracts the admin identity and roles forwarded by
// the Gateway. Admin routes require an authenticated caller (X-User-ID) and
// the "admin" role; admin auth itself lives in the external auth service.
func AdminContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-ID")
		rolesStr := c.Get("X-User-Roles")

		if userID == "" {
			log.Printf("❌ [ADMIN_CTX] X-User-ID missing on admin route: %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID — request must come through gateway with auth context",
			})
		}

		var roles []string
		isAdmin := false
		for _, r := range strings.Split(rolesStr, ",") {
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			roles = append(roles, r)
			if r == "admin" {
				isAdmin = true
			}
		}

		if !isAdmin {
			log.Printf("🚫 [ADMIN_CTX] user %s lacks admin role on %s", userID, c.Path())
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "admin role required",
			})
		}

		c.Locals("user_id", userID)
		c.Locals("user_roles", roles)

		return c.Next()
	}
}
