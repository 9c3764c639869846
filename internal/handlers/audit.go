package handlers

import (
	"github.com/MWest2020/openregister/internal/services"
	"github.com/MWest2020/openregister/internal/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AuditHandler handles audit trail routes
type AuditHandler struct {
	DB *gorm.DB
}

// statisticsInput carries the optional filters for the statistics endpoint.
type statisticsInput struct {
	Register string                        `json:"register"`
	Schema   string                        `json:"schema"`
	Exclude  []services.ExcludeCombination `json:"exclude"`
}

// GetStatistics handles POST /api/audit-trails/statistics. The filters ride
// in the body so exclusion pairs keep their structure.
func (h *AuditHandler) GetStatistics(c *fiber.Ctx) error {
	var input statisticsInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "getStatistics")
		}
	}
	stats := services.GetStatistics(h.DB, input.Register, input.Schema, input.Exclude)
	return c.Status(fiber.StatusOK).JSON(stats)
}

// GetActionChartData handles GET /api/audit-trails/chart
func (h *AuditHandler) GetActionChartData(c *fiber.Ctx) error {
	days := queryInt(c, "_days", 30)
	chart := services.GetActionChartData(h.DB, days)
	return c.Status(fiber.StatusOK).JSON(chart)
}

// GetDetailedStatistics handles GET /api/audit-trails/statistics/detailed
func (h *AuditHandler) GetDetailedStatistics(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(services.GetDetailedStatistics(h.DB))
}

// GetActionDistribution handles GET /api/audit-trails/distribution
func (h *AuditHandler) GetActionDistribution(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"distribution": services.GetActionDistribution(h.DB),
	})
}

// GetMostActiveObjects handles GET /api/audit-trails/most-active
func (h *AuditHandler) GetMostActiveObjects(c *fiber.Ctx) error {
	limit := queryInt(c, "_limit", 10)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"results": services.GetMostActiveObjects(h.DB, limit),
	})
}

// ClearLogs handles DELETE /api/audit-trails/expired
func (h *AuditHandler) ClearLogs(c *fiber.Ctx) error {
	cleared, err := services.ClearLogs(h.DB)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "clearLogs")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"cleared": cleared})
}
