package quota

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/medai_service/internal/middleware"
	"github.com/emandor/medai_service/internal/telemetry"
)

type Handler struct {
	policy *Policy
}

func NewHandler(p *Policy) *Handler { return &Handler{policy: p} }

type featureReq struct {
	Feature string `json:"feature"`
}

// SubjectOf builds the caller from what AuthSession stored in Locals.
func SubjectOf(c *fiber.Ctx) Subject {
	return Subject{UserID: middleware.UserID(c), Tier: middleware.Tier(c)}
}

// LimitExceeded writes the 429 body shared by every metered endpoint.
func LimitExceeded(c *fiber.Ctx, r Result) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":        "Daily limit reached",
		"details":      r.Message,
		"currentUsage": r.CurrentUsage,
		"limit":        r.Limit,
		"remaining":    r.Remaining,
	})
}

func (h *Handler) parse(c *fiber.Ctx) (Feature, error) {
	var in featureReq
	if err := c.BodyParser(&in); err != nil {
		return "", err
	}
	return ParseFeature(in.Feature)
}

func (h *Handler) Check(c *fiber.Ctx) error {
	f, err := h.parse(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid feature"})
	}
	// resolved from the user row so a grant or expiry applies mid-session
	res, err := h.policy.CheckUser(c.UserContext(), middleware.UserID(c), f)
	if err != nil {
		log := telemetry.For(middleware.ReqID(c), middleware.UserID(c))
		log.Error().Err(err).Str("feature", string(f)).Msg("usage_check_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.JSON(res)
}

// Record consumes one unit of the feature for the caller.
func (h *Handler) Record(c *fiber.Ctx) error {
	f, err := h.parse(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid feature"})
	}
	res, err := h.policy.Consume(c.UserContext(), SubjectOf(c), f)
	if errors.Is(err, ErrQuotaExceeded) {
		return LimitExceeded(c, res)
	}
	if err != nil {
		log := telemetry.For(middleware.ReqID(c), middleware.UserID(c))
		log.Error().Err(err).Str("feature", string(f)).Msg("usage_record_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.JSON(res)
}

func (h *Handler) Summary(c *fiber.Ctx) error {
	sum, err := h.policy.Summary(c.UserContext(), SubjectOf(c))
	if err != nil {
		log := telemetry.For(middleware.ReqID(c), middleware.UserID(c))
		log.Error().Err(err).Msg("usage_summary_failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	return c.JSON(fiber.Map{"tier": middleware.Tier(c), "usage": sum})
}
