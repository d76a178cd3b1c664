package auth

import (
	"github.com/gofiber/fiber/v2"
)

// UserIDKey is the fiber locals key the middleware stores the caller id under.
const UserIDKey = "user_id"

// Middleware guards REST routes with the same bearer check the websocket
// handshake uses.
func Middleware(v Validator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := ParseBearerToken(c.Get("Authorization"))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization"})
		}
		uid, err := v.Validate(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}
		c.Locals(UserIDKey, uid)
		return c.Next()
	}
}
