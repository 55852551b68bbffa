package middleware

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/medai_service/internal/account"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/session"
	"github.com/emandor/medai_service/internal/telemetry"
)

const (
	UserIDKey = "userID"
	TierKey   = "tier"
	UserKey   = "user"
)

// Authenticator resolves the session cookie to a user and its tier.
type Authenticator interface {
	Authenticate(ctx context.Context, c session.CookieReader) (*model.User, account.Tier, error)
}

// AuthSession requires a live session and stores the caller in Locals.
func AuthSession(a Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, tier, err := a.Authenticate(c.UserContext(), c)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) && !errors.Is(err, session.ErrRevoked) &&
				!errors.Is(err, account.ErrUserNotFound) {
				log := telemetry.For(ReqID(c), 0)
				log.Error().Err(err).Msg("session_lookup_failed")
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
		}
		c.Locals(UserIDKey, u.ID)
		c.Locals(TierKey, tier)
		c.Locals(UserKey, u)
		return c.Next()
	}
}

func UserID(c *fiber.Ctx) int64 {
	uid, ok := c.Locals(UserIDKey).(int64)
	if !ok {
		return 0
	}
	return uid
}

func Tier(c *fiber.Ctx) account.Tier {
	t, _ := c.Locals(TierKey).(account.Tier)
	return t
}

func User(c *fiber.Ctx) *model.User {
	u, _ := c.Locals(UserKey).(*model.User)
	return u
}
