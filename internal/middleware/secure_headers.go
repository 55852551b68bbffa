package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/helmet/v2"

	"github.com/emandor/medai_service/internal/config"
)

// SecureHeaders applies helmet with a CSP built from the configured
// frontends. HSTS is only sent when cookies are marked secure, which is
// how production is told apart from local http.
func SecureHeaders(cfg *config.Config) fiber.Handler {
	connect := append([]string{"'self'"}, cfg.CORSOrigins...)
	connect = append(connect, "wss:")

	hc := helmet.Config{
		ContentSecurityPolicy: strings.Join([]string{
			"default-src 'self'",
			"script-src 'self'",
			"style-src 'self' 'unsafe-inline'",
			"img-src 'self' data: blob:",
			"connect-src " + strings.Join(connect, " "),
			"object-src 'none'",
			"frame-ancestors 'none'",
		}, "; "),
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "same-site",
		PermissionPolicy:          "camera=(), microphone=(), geolocation=()",
	}
	if cfg.CookieSecure {
		hc.HSTSMaxAge = 31536000
	}
	return helmet.New(hc)
}
