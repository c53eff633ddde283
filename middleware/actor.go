package middleware

import (
	"strings"

	"freight-billing-backend/config"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	ActorHeader = "X-Actor"
	actorCookie = "actor"
	actorLocal  = "actor"
)

// ActorRoute requires an acting user on the request, from the X-Actor header or the actor cookie.
func ActorRoute() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor := strings.TrimSpace(c.Get(ActorHeader))
		if actor == "" {
			actor = strings.TrimSpace(c.Cookies(actorCookie))
		}
		if actor == "" {
			config.Logger.Debug("Request without actor rejected",
				zap.String("path", c.Path()),
				zap.String("method", c.Method()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Unauthorized",
				"error":   "Actor required",
			})
		}
		c.Locals(actorLocal, actor)
		return c.Next()
	}
}

// Actor returns the actor stored by ActorRoute, or "".
func Actor(c *fiber.Ctx) string {
	actor, _ := c.Locals(actorLocal).(string)
	return actor
}
