package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"

	"github.com/emandor/medai_service/internal/guard"
	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/session"
	"github.com/emandor/medai_service/internal/telemetry"
)

const (
	stateCookie    = "oauth_state"
	callbackCookie = "oauth_callback"
	userinfoURL    = "https://www.googleapis.com/oauth2/v3/userinfo"
)

func (r *Registry) GoogleLogin(c *fiber.Ctx) error {
	log := telemetry.For(middleware.ReqID(c), 0)
	log.Info().Msg("google_login_redirect")

	state := session.RandomHex(16)
	c.Cookie(&fiber.Cookie{Name: stateCookie, Value: state, Path: "/", HTTPOnly: true, Secure: r.cfg.CookieSecure, SameSite: "Lax", MaxAge: 600})
	if cb := c.Query(guard.CallbackParam); isLocalPath(cb) {
		c.Cookie(&fiber.Cookie{Name: callbackCookie, Value: cb, Path: "/", HTTPOnly: true, Secure: r.cfg.CookieSecure, SameSite: "Lax", MaxAge: 600})
	}
	return c.Redirect(r.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

func (r *Registry) GoogleCallback(c *fiber.Ctx) error {
	log := telemetry.For(middleware.ReqID(c), 0)
	state := c.Cookies(stateCookie)
	if state == "" || state != c.Query("state") {
		log.Warn().Msg("oauth_state_mismatch")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad state"})
	}
	ctx := c.UserContext()
	tok, err := r.oauth.Exchange(ctx, c.Query("code"))
	if err != nil {
		log.Error().Err(err).Msg("oauth_exchange_failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "exchange failed"})
	}

	ui, err := r.fetchGoogleUserinfo(ctx, tok)
	if err != nil {
		log.Error().Err(err).Msg("oauth_userinfo_failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "userinfo failed"})
	}
	if !ui.EmailVerified || !domainAllowed(ui.Email, r.cfg.OAuthAllowedDomains) {
		log.Warn().Str("email", ui.Email).Msg("oauth_email_rejected")
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "email not allowed"})
	}

	u, err := r.users.UpsertOAuth(ctx, "google", ui.Email, ui.Name)
	if err != nil {
		log.Error().Err(err).Msg("oauth_upsert_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	if err := r.startSession(c, u); err != nil {
		log.Error().Err(err).Int64("user_id", u.ID).Msg("session_start_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	log.Info().Int64("user_id", u.ID).Str("email", u.Email).Msg("oauth_signed_in")

	redir := guard.DashboardPath
	if cb := c.Cookies(callbackCookie); isLocalPath(cb) {
		redir = cb
	}
	c.ClearCookie(stateCookie, callbackCookie)
	return c.Redirect(redir, http.StatusFound)
}

type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (r *Registry) fetchGoogleUserinfo(ctx context.Context, tok *oauth2.Token) (*googleUserInfo, error) {
	resp, err := r.oauth.Client(ctx, tok).Get(userinfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}
	var ui googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&ui); err != nil {
		return nil, err
	}
	return &ui, nil
}

func domainAllowed(email string, domains []string) bool {
	if len(domains) == 0 {
		return true
	}
	email = strings.ToLower(email)
	for _, d := range domains {
		if strings.HasSuffix(email, "@"+strings.ToLower(strings.TrimSpace(d))) {
			return true
		}
	}
	return false
}

// isLocalPath rejects absolute and protocol-relative URLs so the callback
// cannot become an open redirect.
func isLocalPath(p string) bool {
	return strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "//") && !strings.Contains(p, `\`)
}
