package study

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/medai_service/internal/img"
	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/quota"
	"github.com/emandor/medai_service/internal/telemetry"
	"github.com/emandor/medai_service/internal/ws"
)

const (
	maxTitleLen   = 200
	maxSearchHits = 50
	coverMaxW     = 800
)

// Notifier delivers realtime events to a user's open sessions and to
// everyone following a card set's room.
type Notifier interface {
	NotifyUser(userID int64, ev ws.Event, data any)
	Broadcast(room string, ev ws.Event, data any) int
}

type Handler struct {
	repo       *Repo
	policy     *quota.Policy
	notify     Notifier
	storageDir string
}

func NewHandler(repo *Repo, policy *quota.Policy, notify Notifier, storageDir string) *Handler {
	return &Handler{repo: repo, policy: policy, notify: notify, storageDir: storageDir}
}

type cardReq struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

func (q cardReq) card() (model.Card, error) {
	front, back := strings.TrimSpace(q.Front), strings.TrimSpace(q.Back)
	if front == "" || back == "" {
		return model.Card{}, errors.New("card front and back are required")
	}
	return model.Card{Front: front, Back: back}, nil
}

type createSetReq struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"isPublic"`
	Cards       []cardReq `json:"cards"`
}

func validTitle(t string) bool {
	return t != "" && len(t) <= maxTitleLen
}

func (h *Handler) fail(c *fiber.Ctx, err error, msg string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	}
	log := telemetry.For(middleware.ReqID(c), middleware.UserID(c))
	log.Error().Err(err).Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func (h *Handler) Create(c *fiber.Ctx) error {
	var in createSetReq
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	in.Title = strings.TrimSpace(in.Title)
	if !validTitle(in.Title) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required (max 200 chars)"})
	}
	set := &model.CardSet{
		UserID:      middleware.UserID(c),
		Title:       in.Title,
		Description: strings.TrimSpace(in.Description),
		IsPublic:    in.IsPublic,
	}
	for _, cr := range in.Cards {
		card, err := cr.card()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		set.Cards = append(set.Cards, card)
	}
	if err := h.repo.CreateSet(c.UserContext(), set); err != nil {
		return h.fail(c, err, "cardset_create_failed")
	}
	return c.Status(fiber.StatusCreated).JSON(set)
}

func (h *Handler) List(c *fiber.Ctx) error {
	sets, err := h.repo.ListByOwner(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err, "cardset_list_failed")
	}
	return c.JSON(sets)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	set, err := h.repo.Visible(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "cardset_get_failed")
	}
	if set.Cards, err = h.repo.Cards(c.UserContext(), set.ID); err != nil {
		return h.fail(c, err, "cardset_cards_failed")
	}
	return c.JSON(set)
}

func (h *Handler) Update(c *fiber.Ctx) error {
	var p SetPatch
	if err := c.BodyParser(&p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if !validTitle(t) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required (max 200 chars)"})
		}
		p.Title = &t
	}
	set, err := h.repo.Owned(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "cardset_get_failed")
	}
	if err := h.repo.UpdateSet(c.UserContext(), set, p); err != nil {
		return h.fail(c, err, "cardset_update_failed")
	}
	return c.JSON(set)
}

func (h *Handler) Delete(c *fiber.Ctx) error {
	set, err := h.repo.Owned(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "cardset_get_failed")
	}
	if err := h.repo.DeleteSet(c.UserContext(), set.ID); err != nil {
		return h.fail(c, err, "cardset_delete_failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) AddCards(c *fiber.Ctx) error {
	var in struct {
		Cards []cardReq `json:"cards"`
	}
	if err := c.BodyParser(&in); err != nil || len(in.Cards) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cards are required"})
	}
	cards := make([]model.Card, 0, len(in.Cards))
	for _, cr := range in.Cards {
		card, err := cr.card()
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		cards = append(cards, card)
	}
	uid := middleware.UserID(c)
	set, err := h.repo.Owned(c.UserContext(), uid, c.Params("id"))
	if err != nil {
		return h.fail(c, err, "cardset_get_failed")
	}
	if err := h.repo.AppendCards(c.UserContext(), uid, set.ID, cards); err != nil {
		return h.fail(c, err, "cards_append_failed")
	}
	return c.Status(fiber.StatusCreated).JSON(cards)
}

func (h *Handler) UpdateCard(c *fiber.Ctx) error {
	var in cardReq
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	card, err := in.card()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	cardID, err := strconv.ParseInt(c.Params("cardId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid card id"})
	}
	set, err := h.repo.Owned(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "cardset_get_failed")
	}
	if err := h.repo.UpdateCard(c.UserContext(), set.ID, cardID, card.Front, card.Back); err != nil {
		return h.fail(c, err, "card_update_failed")
	}
	card.ID, card.CardSetID = cardID, set.ID
	return c.JSON(card)
}

func (h *Handler) DeleteCard(c *fiber.Ctx) error {
	cardID, err := strconv.ParseInt(c.Params("cardId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid card id"})
	}
	set, err := h.repo.Owned(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "cardset_get_failed")
	}
	if err := h.repo.DeleteCard(c.UserContext(), set.ID, cardID); err != nil {
		return h.fail(c, err, "card_delete_failed")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Study starts a study session. Each session costs one cardSets unit; the
// unit is given back when the cards cannot be loaded.
func (h *Handler) Study(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sub := quota.SubjectOf(c)
	log := telemetry.For(middleware.ReqID(c), sub.UserID)

	set, err := h.repo.Visible(ctx, sub.UserID, c.Params("id"))
	if err != nil {
		return h.fail(c, err, "cardset_get_failed")
	}

	usage, err := h.policy.Consume(ctx, sub, quota.CardSets)
	if errors.Is(err, quota.ErrQuotaExceeded) {
		return quota.LimitExceeded(c, usage)
	}
	if err != nil {
		return h.fail(c, err, "quota_consume_failed")
	}

	cards, err := h.repo.Cards(ctx, set.ID)
	var studied time.Time
	if err == nil {
		studied, err = h.repo.MarkStudied(ctx, set.ID)
	}
	if err != nil {
		if rerr := h.policy.Release(ctx, sub, quota.CardSets, usage); rerr != nil {
			log.Error().Err(rerr).Msg("quota_release_failed")
		}
		return h.fail(c, err, "study_session_failed")
	}
	set.Cards, set.LastStudiedAt = cards, &studied

	ev := fiber.Map{"cardSetId": set.PublicID, "lastStudiedAt": studied}
	if set.UserID != sub.UserID {
		h.notify.NotifyUser(set.UserID, ws.EventCardSetStudied, ev)
	}
	h.notify.Broadcast(ws.CardSetRoom(set.PublicID), ws.EventCardSetStudied, ev)
	log.Info().Str("cardset", set.PublicID).Int("cards", len(cards)).Msg("study_session_started")
	return c.JSON(fiber.Map{"cardSet": set, "usage": usage})
}

func (h *Handler) ToggleLike(c *fiber.Ctx) error {
	uid := middleware.UserID(c)
	set, err := h.repo.Visible(c.UserContext(), uid, c.Params("id"))
	if err != nil {
		return h.fail(c, err, "cardset_get_failed")
	}
	liked, count, err := h.repo.ToggleLike(c.UserContext(), uid, set.ID)
	if err != nil {
		return h.fail(c, err, "like_toggle_failed")
	}
	if liked && set.UserID != uid {
		h.notify.NotifyUser(set.UserID, ws.EventCardSetLiked, fiber.Map{
			"cardSetId": set.PublicID, "byUserId": uid, "likes": count,
		})
	}
	h.notify.Broadcast(ws.CardSetRoom(set.PublicID), ws.EventCardSetLiked, fiber.Map{
		"cardSetId": set.PublicID, "likes": count,
	})
	return c.JSON(fiber.Map{"liked": liked, "likes": count})
}

func (h *Handler) Search(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return c.JSON([]model.CardSet{})
	}
	sets, err := h.repo.SearchPublic(c.UserContext(), q, maxSearchHits*4)
	if err != nil {
		return h.fail(c, err, "search_failed")
	}
	ranked := Rank(sets, q)
	if len(ranked) > maxSearchHits {
		ranked = ranked[:maxSearchHits]
	}
	return c.JSON(ranked)
}

// UploadCover stores a resized cover image; the upload is validated by
// middleware.FileUploadValidator.
func (h *Handler) UploadCover(c *fiber.Ctx) error {
	set, err := h.repo.Owned(c.UserContext(), middleware.UserID(c), c.Params("id"))
	if err != nil {
		return h.fail(c, err, "cardset_get_failed")
	}
	fh, err := c.FormFile("cover")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cover required"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot open file"})
	}
	defer f.Close()

	saved, err := img.SaveCover(f, filepath.Join(h.storageDir, "covers"), set.PublicID, coverMaxW)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unreadable image"})
	}
	public := "/storage/covers/" + filepath.Base(saved.Path)
	if err := h.repo.SetCover(c.UserContext(), set.ID, public); err != nil {
		return h.fail(c, err, "cover_save_failed")
	}
	return c.JSON(fiber.Map{"coverPath": public, "width": saved.Width, "height": saved.Height})
}
