// Package social holds follows and the direct message inbox. Both push
// realtime events to the other party.
package social

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/medai_service/internal/account"
	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/telemetry"
	"github.com/emandor/medai_service/internal/ws"
)

const maxMessageRunes = 2000

type Notifier interface {
	NotifyUser(userID int64, ev ws.Event, data any)
}

type UserLookup interface {
	ByID(ctx context.Context, id int64) (*model.User, error)
}

type Handler struct {
	repo   *Repo
	users  UserLookup
	notify Notifier
}

func NewHandler(repo *Repo, users UserLookup, notify Notifier) *Handler {
	return &Handler{repo: repo, users: users, notify: notify}
}

func (h *Handler) fail(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, account.ErrUserNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	log := telemetry.For(middleware.ReqID(c), middleware.UserID(c))
	log.Error().Err(err).Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func (h *Handler) target(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("userId"), 10, 64)
	if err != nil || id <= 0 {
		return 0, account.ErrUserNotFound
	}
	if _, err := h.users.ByID(c.UserContext(), id); err != nil {
		return 0, err
	}
	return id, nil
}

func (h *Handler) ToggleFollow(c *fiber.Ctx) error {
	uid := middleware.UserID(c)
	target, err := h.target(c)
	if err != nil {
		return h.fail(c, err, "follow_target_failed")
	}
	if target == uid {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot follow yourself"})
	}
	followed, err := h.repo.ToggleFollow(c.UserContext(), uid, target)
	if err != nil {
		return h.fail(c, err, "follow_toggle_failed")
	}
	if followed {
		h.notify.NotifyUser(target, ws.EventUserFollowed, fiber.Map{"byUserId": uid})
	}
	stats, err := h.repo.Stats(c.UserContext(), uid, target)
	if err != nil {
		return h.fail(c, err, "follow_stats_failed")
	}
	return c.JSON(stats)
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	target, err := h.target(c)
	if err != nil {
		return h.fail(c, err, "follow_target_failed")
	}
	stats, err := h.repo.Stats(c.UserContext(), middleware.UserID(c), target)
	if err != nil {
		return h.fail(c, err, "follow_stats_failed")
	}
	return c.JSON(stats)
}

func (h *Handler) Send(c *fiber.Ctx) error {
	var in struct {
		RecipientID int64  `json:"recipientId"`
		Body        string `json:"body"`
	}
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	body := strings.TrimSpace(in.Body)
	if body == "" || utf8.RuneCountInString(body) > maxMessageRunes {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "body is required (max 2000 chars)"})
	}
	uid := middleware.UserID(c)
	if in.RecipientID == uid {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot message yourself"})
	}
	if _, err := h.users.ByID(c.UserContext(), in.RecipientID); err != nil {
		return h.fail(c, err, "message_recipient_failed")
	}

	m := &model.Message{SenderID: uid, RecipientID: in.RecipientID, Body: body}
	if err := h.repo.SendMessage(c.UserContext(), m); err != nil {
		return h.fail(c, err, "message_send_failed")
	}
	h.notify.NotifyUser(m.RecipientID, ws.EventMessageReceived, m)
	return c.Status(fiber.StatusCreated).JSON(m)
}

func (h *Handler) Inbox(c *fiber.Ctx) error {
	msgs, err := h.repo.Inbox(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err, "inbox_failed")
	}
	return c.JSON(msgs)
}
