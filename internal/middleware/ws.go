package middleware

import (
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// WSUpgrade only lets websocket handshakes through. When origins is not
// empty a browser Origin header must match one of them; requests without
// an Origin (non-browser clients) are allowed.
func WSUpgrade(origins []string) fiber.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")] = true
	}
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		origin := strings.ToLower(c.Get(fiber.HeaderOrigin))
		if origin != "" && len(allowed) > 0 && !allowed[origin] {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "origin not allowed"})
		}
		return c.Next()
	}
}
