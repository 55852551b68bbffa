package middleware

import (
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog"

	"github.com/emandor/medai_service/internal/config"
	"github.com/emandor/medai_service/internal/telemetry"
)

// quietPaths are polled by health checks and scrapers and stay out of the log.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// RequestLog writes one line per request. 5xx log at error, 4xx at warn.
func RequestLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		took := time.Since(start)

		code := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			} else {
				code = fiber.StatusInternalServerError
			}
		}
		telemetry.ObserveHTTP(c.Method(), c.Route().Path, code, took)

		if quietPaths[c.Path()] {
			return err
		}
		log := telemetry.For(ReqID(c), UserID(c))
		ev := log.WithLevel(levelFor(code))
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", code).
			Dur("took", took).
			Str("ip", c.IP()).
			Str("ua", c.Get(fiber.HeaderUserAgent)).
			Msg("http_request")
		return err
	}
}

func levelFor(code int) zerolog.Level {
	switch {
	case code >= 500:
		return zerolog.ErrorLevel
	case code >= 400:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// Recover turns a handler panic into a logged 500.
func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			log := telemetry.For(ReqID(c), UserID(c))
			log.Error().
				Interface("panic", r).
				Str("path", c.Path()).
				Bytes("stack", debug.Stack()).
				Msg("panic_recovered")
			err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}()
		return c.Next()
	}
}

// CORS allows the configured frontends to call the API with cookies.
func CORS(cfg *config.Config) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.CORSOrigins, ","),
		AllowMethods:     strings.Join([]string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete, fiber.MethodOptions}, ","),
		AllowHeaders:     "Origin, Content-Type, Accept, X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: true,
		MaxAge:           int((12 * time.Hour).Seconds()),
	})
}
