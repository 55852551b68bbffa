package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	ReqIDKey    = "reqID"
	ReqIDHeader = "X-Request-ID"

	maxReqIDLen = 64
)

// RequestID propagates a caller supplied X-Request-ID when it looks sane
// and mints a UUID otherwise. The id is echoed on the response.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(ReqIDHeader)
		if !validReqID(rid) {
			rid = uuid.NewString()
		}
		c.Set(ReqIDHeader, rid)
		c.Locals(ReqIDKey, rid)
		return c.Next()
	}
}

// validReqID accepts short tokens of letters, digits and - _ . : only, so a
// client cannot inject whitespace or control bytes into log lines.
func validReqID(s string) bool {
	if s == "" || len(s) > maxReqIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.', ch == ':':
		default:
			return false
		}
	}
	return true
}

// ReqID returns the id assigned by the RequestID middleware, or "".
func ReqID(c *fiber.Ctx) string {
	rid, _ := c.Locals(ReqIDKey).(string)
	return rid
}
