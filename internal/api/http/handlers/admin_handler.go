package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/tutor-bot/internal/api/dto"
	"github.com/spec-kit/tutor-bot/internal/catalog"
	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/internal/service"
	apperrors "github.com/spec-kit/tutor-bot/pkg/util/errorutil"
)

// ModelPolicy resolves the completion model of a tier.
type ModelPolicy interface {
	ModelFor(tier domain.Tier) string
}

// AdminHandler lets operators inspect users and record tiers paid out of band.
type AdminHandler struct {
	quota   *service.QuotaService
	catalog *catalog.Store
	models  ModelPolicy
}

// NewAdminHandler constructs handler.
func NewAdminHandler(quota *service.QuotaService, catalog *catalog.Store, models ModelPolicy) *AdminHandler {
	return &AdminHandler{quota: quota, catalog: catalog, models: models}
}

// GetUser handles GET /admin/users/:id.
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	resp, err := h.status(c, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": resp})
}

// UpdateTier handles PUT /admin/users/:id/tier.
func (h *AdminHandler) UpdateTier(c *fiber.Ctx) error {
	var req dto.TierUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		return apperrors.NewValidationError("tier must be one of free, pro, elite", map[string]any{"tier": req.Tier})
	}

	id := c.Params("id")
	if err := h.quota.SetTier(c.UserContext(), id, tier); err != nil {
		return err
	}
	resp, err := h.status(c, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": resp})
}

func (h *AdminHandler) status(c *fiber.Ctx, id string) (*dto.UserStatusResponse, error) {
	ctx := c.UserContext()
	user, err := h.quota.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	categories := append(h.catalog.Current().Categories(), domain.CategoryGeneral)
	report, err := h.quota.Status(ctx, id, categories)
	if err != nil {
		return nil, err
	}

	resp := &dto.UserStatusResponse{
		UserID:       user.ID,
		Username:     user.Username,
		Tier:         string(report.Tier),
		Model:        h.models.ModelFor(report.Tier),
		PeriodAnchor: user.PeriodAnchor,
		CreatedAt:    user.CreatedAt,
	}
	if !report.ResetsAt.IsZero() {
		resetsAt := report.ResetsAt
		resp.ResetsAt = &resetsAt
	}
	for _, line := range report.Categories {
		resp.Usage = append(resp.Usage, dto.CategoryUsageResponse{
			Category: string(line.Category),
			Used:     line.Used,
			Limit:    line.Limit,
		})
	}
	return resp, nil
}
