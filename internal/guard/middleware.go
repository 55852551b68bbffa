package guard

import (
	"github.com/gofiber/fiber/v2"

	"github.com/emandor/medai_service/internal/session"
	"github.com/emandor/medai_service/internal/telemetry"
)

type PresenceResolver interface {
	Resolve(c session.CookieReader) session.Presence
}

// Middleware applies routes to every request. API callers without a session
// get 401 instead of the sign-in redirect.
func Middleware(routes Routes, resolver PresenceResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := c.Path()
		d := routes.Decide(p, string(c.Request().URI().QueryString()), resolver.Resolve(c))
		telemetry.ObserveGuard(d.Action.String())
		if d.Action == Pass {
			return c.Next()
		}
		if IsAPI(p) {
			if d.Category == CategoryProtected {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
			}
			return c.Next()
		}
		return c.Redirect(d.Location, fiber.StatusFound)
	}
}
