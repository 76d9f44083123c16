package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cleanflow/api/pkg/response"
)

// GatewayAuthMiddleware reads the actor from X-User-* headers set by the
// gateway's forward-auth step
func GatewayAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Get("X-User-Id")
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity headers")
		}
		setActor(c, userID, c.Get("X-User-Role"))
		return c.Next()
	}
}
