package cloze

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/medai_service/internal/docs"
	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/telemetry"
	"github.com/emandor/medai_service/internal/textutil"
)

const (
	defaultAutoBlanks = 10
	maxAutoBlanks     = 50
	// clozes.source_text is a TEXT column
	maxSourceBytes = 16000
)

type Handler struct {
	repo *Repo
	docs *docs.Repo
}

func NewHandler(repo *Repo, docs *docs.Repo) *Handler {
	return &Handler{repo: repo, docs: docs}
}

type view struct {
	ID         int64     `json:"id"`
	DocID      *int64    `json:"docId,omitempty"`
	SourceText string    `json:"sourceText"`
	MaskedText string    `json:"maskedText"`
	Answers    []string  `json:"answers"`
	CreatedAt  time.Time `json:"createdAt"`
}

func toView(c model.Cloze) (view, error) {
	v := view{ID: c.ID, DocID: c.DocID, SourceText: c.SourceText, MaskedText: c.MaskedText,
		Answers: []string{}, CreatedAt: c.CreatedAt}
	if err := json.Unmarshal([]byte(c.Answers), &v.Answers); err != nil {
		v.Answers = []string{}
		return v, fmt.Errorf("decode answers of cloze %d: %w", c.ID, err)
	}
	return v, nil
}

// render shows cz; a row with unreadable answers is still shown, without them.
func (h *Handler) render(c *fiber.Ctx, cz model.Cloze) view {
	v, err := toView(cz)
	if err != nil {
		log := telemetry.For(middleware.ReqID(c), middleware.UserID(c))
		log.Warn().Err(err).Int64("cloze_id", cz.ID).Msg("cloze_answers_corrupt")
	}
	return v
}

func (h *Handler) fail(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, docs.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	log := telemetry.For(middleware.ReqID(c), middleware.UserID(c))
	log.Error().Err(err).Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

// Create masks the {{answer}} markers of the posted text. A docId, when
// given, must name one of the caller's documents.
func (h *Handler) Create(c *fiber.Ctx) error {
	var in struct {
		DocID *int64 `json:"docId"`
		Text  string `json:"text"`
	}
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	text := strings.TrimSpace(in.Text)
	if text == "" || len(text) > maxSourceBytes {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "text is required (max 16000 bytes)"})
	}
	parsed, err := Parse(text)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	uid := middleware.UserID(c)
	if in.DocID != nil {
		if _, err := h.docs.Get(c.UserContext(), uid, *in.DocID); err != nil {
			return h.fail(c, err, "doc_get_failed")
		}
	}
	cz := model.Cloze{UserID: uid, DocID: in.DocID, SourceText: text, MaskedText: parsed.Masked}
	if err := h.repo.Create(c.UserContext(), &cz, parsed.Answers); err != nil {
		return h.fail(c, err, "cloze_create_failed")
	}
	return c.Status(fiber.StatusCreated).JSON(h.render(c, cz))
}

// Auto blanks a stored document.
func (h *Handler) Auto(c *fiber.Ctx) error {
	var in struct {
		DocID int64 `json:"docId"`
		Max   int   `json:"max"`
	}
	if err := c.BodyParser(&in); err != nil || in.DocID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "docId is required"})
	}
	if in.Max <= 0 {
		in.Max = defaultAutoBlanks
	}
	if in.Max > maxAutoBlanks {
		in.Max = maxAutoBlanks
	}

	uid := middleware.UserID(c)
	doc, err := h.docs.Get(c.UserContext(), uid, in.DocID)
	if err != nil {
		return h.fail(c, err, "doc_get_failed")
	}
	source := textutil.Truncate(doc.BodyText, maxSourceBytes)
	parsed, err := Auto(source, in.Max)
	if err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "no words worth blanking"})
	}

	cz := model.Cloze{UserID: uid, DocID: &doc.ID, SourceText: source, MaskedText: parsed.Masked}
	if err := h.repo.Create(c.UserContext(), &cz, parsed.Answers); err != nil {
		return h.fail(c, err, "cloze_create_failed")
	}
	return c.Status(fiber.StatusCreated).JSON(h.render(c, cz))
}

func (h *Handler) List(c *fiber.Ctx) error {
	list, err := h.repo.List(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err, "cloze_list_failed")
	}
	out := make([]view, 0, len(list))
	for _, cz := range list {
		out = append(out, h.render(c, cz))
	}
	return c.JSON(out)
}
