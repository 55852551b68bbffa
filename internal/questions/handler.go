package questions

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/providers"
	"github.com/emandor/medai_service/internal/quota"
	"github.com/emandor/medai_service/internal/study"
	"github.com/emandor/medai_service/internal/telemetry"
)

const (
	defaultCount = 5
	maxCount     = 20
)

type Handler struct {
	svc    *Service
	policy *quota.Policy
	sets   *study.Repo
}

func NewHandler(svc *Service, policy *quota.Policy, sets *study.Repo) *Handler {
	return &Handler{svc: svc, policy: policy, sets: sets}
}

type generateReq struct {
	Topic     string `json:"topic"`
	Text      string `json:"text"`
	Count     int    `json:"count"`
	CardSetID string `json:"cardSetId"`
}

// Generate costs one aiQuestions unit, returned when generation or saving fails.
func (h *Handler) Generate(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sub := quota.SubjectOf(c)
	log := telemetry.For(middleware.ReqID(c), sub.UserID)

	var in generateReq
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	in.Topic, in.Text = strings.TrimSpace(in.Topic), strings.TrimSpace(in.Text)
	if in.Topic == "" && in.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "topic or text is required"})
	}
	switch {
	case in.Count <= 0:
		in.Count = defaultCount
	case in.Count > maxCount:
		in.Count = maxCount
	}

	var set *model.CardSet
	if in.CardSetID != "" {
		var err error
		if set, err = h.sets.Owned(ctx, sub.UserID, in.CardSetID); err != nil {
			if errors.Is(err, study.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
			}
			if errors.Is(err, study.ErrForbidden) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
			}
			log.Error().Err(err).Msg("cardset_get_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
	}

	usage, err := h.policy.Consume(ctx, sub, quota.AIQuestions)
	if errors.Is(err, quota.ErrQuotaExceeded) {
		return quota.LimitExceeded(c, usage)
	}
	if err != nil {
		log.Error().Err(err).Msg("quota_consume_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	release := func() {
		if err := h.policy.Release(ctx, sub, quota.AIQuestions, usage); err != nil {
			log.Error().Err(err).Msg("quota_release_failed")
		}
	}

	res, err := h.svc.Generate(ctx, Request{Topic: in.Topic, Text: in.Text, Count: in.Count})
	if err != nil {
		release()
		log.Error().Err(err).Msg("question_generation_failed")
		status := fiber.StatusBadGateway
		if errors.Is(err, providers.ErrNoProviders) {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{"error": ErrGenerationFailed.Error()})
	}

	out := fiber.Map{"questions": res.Questions, "source": res.Source, "usage": usage}
	if set != nil {
		cards := ToCards(res.Questions)
		if err := h.sets.AppendCards(ctx, sub.UserID, set.ID, cards); err != nil {
			release()
			log.Error().Err(err).Str("cardset", set.PublicID).Msg("question_cards_save_failed")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
		}
		out["cards"] = cards
	}
	return c.JSON(out)
}

// ToCards renders each question as a flashcard: options on the front,
// answer and explanation on the back.
func ToCards(qs []providers.Question) []model.Card {
	cards := make([]model.Card, 0, len(qs))
	for _, q := range qs {
		var front strings.Builder
		front.WriteString(q.Question)
		for i, o := range q.Options {
			front.WriteString("\n")
			front.WriteByte(byte('A' + i))
			front.WriteString(". ")
			front.WriteString(o)
		}
		back := q.Answer
		if q.Explanation != "" {
			back += "\n\n" + q.Explanation
		}
		cards = append(cards, model.Card{Front: front.String(), Back: back})
	}
	return cards
}
