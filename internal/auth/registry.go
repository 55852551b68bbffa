// Package auth owns sign-in flows and implements middleware.Authenticator.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/emandor/medai_service/internal/account"
	"github.com/emandor/medai_service/internal/config"
	"github.com/emandor/medai_service/internal/mail"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/session"
)

type Registry struct {
	cfg      *config.Config
	users    *account.Repo
	resolver *session.Resolver
	sessions *session.Manager
	resets   ResetTokens
	mailer   mail.Mailer
	oauth    *oauth2.Config
	now      func() time.Time
}

func NewRegistry(cfg *config.Config, users *account.Repo, resolver *session.Resolver,
	sessions *session.Manager, resets ResetTokens, mailer mail.Mailer) *Registry {
	return &Registry{
		cfg: cfg, users: users, resolver: resolver, sessions: sessions,
		resets: resets, mailer: mailer, now: time.Now,
		oauth: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

// CookieName is the name new session cookies are written under.
func (r *Registry) CookieName() string {
	if r.cfg.CookieSecure {
		return r.cfg.SecureCookieName()
	}
	return r.cfg.SessionCookieName
}

// Authenticate maps the session cookie to a user. The demo token is mapped
// to the demo account, creating it on first use.
func (r *Registry) Authenticate(ctx context.Context, c session.CookieReader) (*model.User, account.Tier, error) {
	id, err := r.resolver.Identify(c)
	if err != nil {
		return nil, account.TierFree, err
	}
	if id.Demo {
		u, err := r.users.EnsureDemo(ctx, r.cfg.DemoEmail)
		if err != nil {
			return nil, account.TierFree, err
		}
		return u, account.TierDemo, nil
	}
	uid, err := r.sessions.Lookup(ctx, id)
	if err != nil {
		return nil, account.TierFree, err
	}
	u, err := r.users.ByID(ctx, uid)
	if err != nil {
		return nil, account.TierFree, err
	}
	return u, account.TierOf(u, r.now(), r.cfg.DemoEmail), nil
}

func (r *Registry) setSessionCookie(c *fiber.Ctx, value string, maxAge time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     r.CookieName(),
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		Secure:   r.cfg.CookieSecure,
		SameSite: "Lax",
		MaxAge:   int(maxAge.Seconds()),
	})
}

func (r *Registry) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     r.CookieName(),
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Secure:   r.cfg.CookieSecure,
		SameSite: "Lax",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// startSession opens a stored session for u and writes its cookie.
func (r *Registry) startSession(c *fiber.Ctx, u *model.User) error {
	tok, err := r.sessions.Start(c.UserContext(), u.ID, c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		return err
	}
	r.setSessionCookie(c, tok, r.sessions.TTL())
	return nil
}

func isAuthFailure(err error) bool {
	return errors.Is(err, account.ErrUserNotFound) || errors.Is(err, errBadCredentials)
}
