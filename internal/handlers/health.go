package handlers

import (
	"github.com/MWest2020/openregister/internal/config"
	"github.com/MWest2020/openregister/internal/services"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// HealthHandler handles health routes
type HealthHandler struct {
	DB     *gorm.DB
	Config *config.Config
}

// GetHealth handles GET /api/health
func (h *HealthHandler) GetHealth(c *fiber.Ctx) error {
	result := services.HealthCheck(h.Config, h.DB)
	status := fiber.StatusOK
	if result.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(result)
}
