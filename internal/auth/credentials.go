package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/emandor/medai_service/internal/account"
	"github.com/emandor/medai_service/internal/mail"
	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/session"
	"github.com/emandor/medai_service/internal/telemetry"
)

const (
	minPasswordLen = 8
	resetTokenTTL  = time.Hour
)

var errBadCredentials = errors.New("invalid email or password")

type credentialsReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (q credentialsReq) validate() error {
	if !strings.Contains(q.Email, "@") {
		return errors.New("a valid email is required")
	}
	if len(q.Password) < minPasswordLen {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

func (r *Registry) Signup(c *fiber.Ctx) error {
	log := telemetry.For(middleware.ReqID(c), 0)
	var in credentialsReq
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := in.validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if strings.EqualFold(account.NormalizeEmail(in.Email), r.cfg.DemoEmail) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": account.ErrEmailTaken.Error()})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("password_hash_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	u, err := r.users.Create(c.UserContext(), in.Email, strings.TrimSpace(in.Name), string(hash))
	if errors.Is(err, account.ErrEmailTaken) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		log.Error().Err(err).Msg("signup_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	if err := r.startSession(c, u); err != nil {
		log.Error().Err(err).Int64("user_id", u.ID).Msg("session_start_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	log.Info().Int64("user_id", u.ID).Msg("user_signed_up")
	return c.Status(fiber.StatusCreated).JSON(u)
}

func (r *Registry) Signin(c *fiber.Ctx) error {
	log := telemetry.For(middleware.ReqID(c), 0)
	var in credentialsReq
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	u, err := r.users.ByEmail(c.UserContext(), in.Email)
	if err == nil {
		if u.PasswordHash == nil ||
			bcrypt.CompareHashAndPassword([]byte(*u.PasswordHash), []byte(in.Password)) != nil {
			err = errBadCredentials
		}
	}
	if isAuthFailure(err) {
		log.Warn().Str("email", account.NormalizeEmail(in.Email)).Msg("signin_rejected")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": errBadCredentials.Error()})
	}
	if err != nil {
		log.Error().Err(err).Msg("signin_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	if err := r.startSession(c, u); err != nil {
		log.Error().Err(err).Int64("user_id", u.ID).Msg("session_start_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	log.Info().Int64("user_id", u.ID).Msg("user_signed_in")
	return c.JSON(u)
}

// Demo signs the caller into the shared demo account with the reserved token.
func (r *Registry) Demo(c *fiber.Ctx) error {
	u, err := r.users.EnsureDemo(c.UserContext(), r.cfg.DemoEmail)
	if err != nil {
		log := telemetry.For(middleware.ReqID(c), 0)
		log.Error().Err(err).Msg("demo_account_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	r.setSessionCookie(c, r.cfg.DemoSessionToken, r.sessions.TTL())
	return c.JSON(fiber.Map{"user": u, "tier": account.TierDemo})
}

func (r *Registry) Signout(c *fiber.Ctx) error {
	id, err := r.resolver.Identify(c)
	if err == nil {
		if err := r.sessions.End(c.UserContext(), id); err != nil {
			log := telemetry.For(middleware.ReqID(c), id.UserID)
			log.Error().Err(err).Msg("session_end_failed")
		}
	}
	r.clearSessionCookie(c)
	return c.SendStatus(fiber.StatusNoContent)
}

func (r *Registry) Me(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"user":  middleware.User(c),
		"tier":  middleware.Tier(c),
		"usage": "/api/usage",
	})
}

// ForgotPassword always answers 202 so callers cannot learn which emails exist.
func (r *Registry) ForgotPassword(c *fiber.Ctx) error {
	log := telemetry.For(middleware.ReqID(c), 0)
	var in struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}

	u, err := r.users.ByEmail(c.UserContext(), in.Email)
	if err != nil {
		if !errors.Is(err, account.ErrUserNotFound) {
			log.Error().Err(err).Msg("password_forgot_lookup_failed")
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
	if strings.EqualFold(u.Email, r.cfg.DemoEmail) {
		return c.SendStatus(fiber.StatusAccepted)
	}

	token := session.RandomHex(32)
	if err := r.resets.Put(c.UserContext(), token, u.ID, resetTokenTTL); err != nil {
		log.Error().Err(err).Int64("user_id", u.ID).Msg("reset_token_store_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	link := strings.TrimRight(r.cfg.BaseURL, "/") + "/reset-password?token=" + url.QueryEscape(token)
	msg := mail.Message{
		To:      u.Email,
		Subject: "Reset your password",
		Body:    "Use this link within one hour to choose a new password:\n\n" + link + "\n",
	}
	// the request should not wait on the mail server
	go func(uid int64) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.mailer.Send(ctx, msg); err != nil {
			log.Error().Err(err).Int64("user_id", uid).Msg("reset_mail_failed")
		}
	}(u.ID)
	return c.SendStatus(fiber.StatusAccepted)
}

func (r *Registry) ResetPassword(c *fiber.Ctx) error {
	log := telemetry.For(middleware.ReqID(c), 0)
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&in); err != nil || in.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if len(in.Password) < minPasswordLen {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "password must be at least 8 characters"})
	}

	uid, err := r.resets.Take(c.UserContext(), in.Token)
	if errors.Is(err, ErrResetTokenInvalid) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		log.Error().Err(err).Msg("reset_token_lookup_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error().Err(err).Msg("password_hash_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	if err := r.users.SetPassword(c.UserContext(), uid, string(hash)); err != nil {
		log.Error().Err(err).Int64("user_id", uid).Msg("password_reset_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	log.Info().Int64("user_id", uid).Msg("password_reset")
	return c.SendStatus(fiber.StatusNoContent)
}
