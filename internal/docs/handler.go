// Package docs turns uploaded PDFs and photographed notes into stored text
// documents. Each upload costs one pdfs unit.
package docs

import (
	"context"
	"errors"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/emandor/medai_service/internal/img"
	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/model"
	"github.com/emandor/medai_service/internal/ocr"
	"github.com/emandor/medai_service/internal/quota"
	"github.com/emandor/medai_service/internal/telemetry"
	"github.com/emandor/medai_service/internal/textutil"
	"github.com/emandor/medai_service/internal/ws"
)

const maxTitleLen = 255

type Notifier interface {
	NotifyUser(userID int64, ev ws.Event, data any)
}

// OCR transcribes a prepared image.
type OCR interface {
	Read(ctx context.Context, img []byte, mime string) (ocr.Result, error)
}

type Options struct {
	MaxPages     int
	OCRMaxW      int
	OCRQuality   int
	OCRGrayscale bool
}

type Handler struct {
	repo   *Repo
	policy *quota.Policy
	ocr    OCR
	notify Notifier
	opts   Options
}

func NewHandler(repo *Repo, policy *quota.Policy, reader OCR, notify Notifier, opts Options) *Handler {
	return &Handler{repo: repo, policy: policy, ocr: reader, notify: notify, opts: opts}
}

func (h *Handler) fail(c *fiber.Ctx, err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	log := telemetry.For(middleware.ReqID(c), middleware.UserID(c))
	log.Error().Err(err).Msg(msg)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

func titleFor(c *fiber.Ctx, filename string) string {
	t := strings.TrimSpace(c.FormValue("title"))
	if t == "" {
		t = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	t = strings.TrimSpace(textutil.Truncate(t, maxTitleLen))
	if t == "" {
		t = "Untitled"
	}
	return t
}

// release gives the unit back after a failed upload.
func (h *Handler) release(ctx context.Context, sub quota.Subject, usage quota.Result, log zerolog.Logger) {
	if err := h.policy.Release(ctx, sub, quota.PDFs, usage); err != nil {
		log.Error().Err(err).Msg("quota_release_failed")
	}
}

// UploadPDF expects a multipart "file" already checked by
// middleware.FileUploadValidator.
func (h *Handler) UploadPDF(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sub := quota.SubjectOf(c)
	log := telemetry.For(middleware.ReqID(c), sub.UserID)

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file required"})
	}

	usage, err := h.policy.Consume(ctx, sub, quota.PDFs)
	if errors.Is(err, quota.ErrQuotaExceeded) {
		return quota.LimitExceeded(c, usage)
	}
	if err != nil {
		return h.fail(c, err, "quota_consume_failed")
	}

	f, err := fh.Open()
	if err != nil {
		h.release(ctx, sub, usage, log)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cannot open file"})
	}
	defer f.Close()

	ex, err := ExtractPDF(ctx, f, fh.Size, h.opts.MaxPages)
	if err != nil {
		h.release(ctx, sub, usage, log)
		log.Warn().Err(err).Str("file", fh.Filename).Int("pages", ex.Pages).Msg("pdf_extract_failed")
		switch {
		case errors.Is(err, ErrTooManyPages):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"error": "document exceeds " + strconv.Itoa(h.opts.MaxPages) + " pages",
			})
		case errors.Is(err, ErrNoText):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "no text found; try the image upload"})
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return c.Status(fiber.StatusRequestTimeout).JSON(fiber.Map{"error": "extraction cancelled"})
		default:
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unreadable pdf"})
		}
	}

	doc := &model.Doc{
		UserID:    sub.UserID,
		Title:     titleFor(c, fh.Filename),
		Source:    model.DocSourcePDF,
		PageCount: ex.Pages,
		BodyText:  ex.Text,
	}
	return h.store(c, sub, doc, usage, log)
}

// UploadImage transcribes a photo of notes through the vision model.
func (h *Handler) UploadImage(c *fiber.Ctx) error {
	ctx := c.UserContext()
	sub := quota.SubjectOf(c)
	log := telemetry.For(middleware.ReqID(c), sub.UserID)

	fh, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file required"})
	}

	usage, err := h.policy.Consume(ctx, sub, quota.PDFs)
	if errors.Is(err, quota.ErrQuotaExceeded) {
		return quota.LimitExceeded(c, usage)
	}
	if err != nil {
		return h.fail(c, err, "quota_consume_failed")
	}

	prepared, err := openAndPrepare(fh, h.opts)
	if err != nil {
		h.release(ctx, sub, usage, log)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "unreadable image"})
	}

	res, err := h.ocr.Read(ctx, prepared.Bytes, prepared.MIME)
	text := strings.TrimSpace(res.Text)
	if err != nil || text == "" {
		h.release(ctx, sub, usage, log)
		if errors.Is(err, ocr.ErrNotConfigured) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "ocr is not configured"})
		}
		log.Warn().Err(err).Str("file", fh.Filename).Msg("ocr_failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "could not read the image"})
	}

	doc := &model.Doc{
		UserID:    sub.UserID,
		Title:     titleFor(c, fh.Filename),
		Source:    model.DocSourceImage,
		PageCount: 1,
		BodyText:  text,
	}
	return h.store(c, sub, doc, usage, log)
}

func openAndPrepare(fh *multipart.FileHeader, o Options) (img.Prepared, error) {
	f, err := fh.Open()
	if err != nil {
		return img.Prepared{}, err
	}
	defer f.Close()
	return img.PrepareForOCR(f, o.OCRMaxW, o.OCRQuality, o.OCRGrayscale)
}

func (h *Handler) store(c *fiber.Ctx, sub quota.Subject, doc *model.Doc, usage quota.Result, log zerolog.Logger) error {
	ctx := c.UserContext()
	if err := h.repo.Create(ctx, doc); err != nil {
		h.release(ctx, sub, usage, log)
		return h.fail(c, err, "doc_store_failed")
	}
	h.notify.NotifyUser(sub.UserID, ws.EventDocReady, fiber.Map{"docId": doc.ID, "title": doc.Title})
	log.Info().Int64("doc_id", doc.ID).Str("source", string(doc.Source)).Int("pages", doc.PageCount).
		Int("chars", len(doc.BodyText)).Msg("doc_stored")
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"doc": doc, "usage": usage})
}

func (h *Handler) List(c *fiber.Ctx) error {
	docs, err := h.repo.List(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return h.fail(c, err, "doc_list_failed")
	}
	return c.JSON(docs)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid document id"})
	}
	doc, err := h.repo.Get(c.UserContext(), middleware.UserID(c), id)
	if err != nil {
		return h.fail(c, err, "doc_get_failed")
	}
	return c.JSON(doc)
}
