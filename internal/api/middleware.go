package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"steward/internal/actor"
	"steward/internal/auth"
)

const actorLocal = "actor"

// RequireActor validates the bearer token and stores the resolved
// actor on the request.
func RequireActor(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return UnauthorizedError("Invalid auth header format")
		}

		claims, err := auth.ParseToken(parts[1], secret)
		if err != nil {
			return UnauthorizedError("Invalid or expired token")
		}

		c.Locals(actorLocal, claims.Identity())
		return c.Next()
	}
}

// GetActor extracts the authenticated actor, nil when absent.
func GetActor(c *fiber.Ctx) *actor.Identity {
	id, _ := c.Locals(actorLocal).(*actor.Identity)
	return id
}
