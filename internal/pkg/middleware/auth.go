package middleware

import (
	"github.com/gofiber/fiber/v2"

	icuser "github.com/ManuelReschke/AutoMarkt/internal/pkg/usercontext"
)

// RequireAdminAPI ensures an authenticated admin and answers JSON otherwise.
// It must run after APIKeyAuthMiddleware.
func RequireAdminAPI(c *fiber.Ctx) error {
	loggedIn, _ := c.Locals(icuser.KeyFromProtected).(bool)
	if !loggedIn {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	if isAdmin, ok := c.Locals(icuser.KeyIsAdmin).(bool); !ok || !isAdmin {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "forbidden",
			"message": "admin access required",
		})
	}
	return c.Next()
}
