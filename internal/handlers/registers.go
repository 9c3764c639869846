package handlers

import (
	"encoding/json"

	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/services"
	"github.com/MWest2020/openregister/internal/types"
	"github.com/MWest2020/openregister/internal/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RegistersHandler handles register routes
type RegistersHandler struct {
	DB *gorm.DB
}

// registerInput is the write payload for register create and update requests.
type registerInput struct {
	Title        string                 `json:"title"`
	Slug         string                 `json:"slug"`
	Description  string                 `json:"description"`
	Schemas      types.FlexList[string] `json:"schemas"`
	Owner        string                 `json:"owner"`
	Organisation string                 `json:"organisation"`
}

// ListRegisters handles GET /api/registers
func (h *RegistersHandler) ListRegisters(c *fiber.Ctx) error {
	limit := queryInt(c, "_limit", 30)
	offset := queryInt(c, "_offset", 0)

	registers, err := services.FindAllRegisters(h.DB, limit, offset)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "listRegisters")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"results": registers,
		"total":   len(registers),
		"limit":   limit,
		"offset":  offset,
	})
}

// GetRegister handles GET /api/registers/:id
func (h *RegistersHandler) GetRegister(c *fiber.Ctx) error {
	register, err := services.FindRegister(h.DB, c.Params("id"))
	if err != nil {
		return utils.DomainErrorResponse(c, err, "getRegister")
	}
	return c.Status(fiber.StatusOK).JSON(register)
}

// CreateRegister handles POST /api/registers
func (h *RegistersHandler) CreateRegister(c *fiber.Ctx) error {
	var input registerInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "createRegister")
	}
	if input.Title == "" {
		return utils.ErrorResponse(c, "title is required", fiber.StatusBadRequest, "createRegister")
	}

	register := &models.Register{
		Title:        input.Title,
		Slug:         input.Slug,
		Description:  input.Description,
		Owner:        input.Owner,
		Organisation: input.Organisation,
	}
	if input.Schemas != nil {
		raw, _ := json.Marshal(input.Schemas.Slice())
		register.Schemas = datatypes.JSON(raw)
	}

	if err := services.CreateRegister(h.DB, register); err != nil {
		return utils.DomainErrorResponse(c, err, "createRegister")
	}
	return c.Status(fiber.StatusCreated).JSON(register)
}

// UpdateRegister handles PUT /api/registers/:id
func (h *RegistersHandler) UpdateRegister(c *fiber.Ctx) error {
	register, err := services.FindRegister(h.DB, c.Params("id"))
	if err != nil {
		return utils.DomainErrorResponse(c, err, "updateRegister")
	}

	var input registerInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "updateRegister")
	}

	if input.Title != "" {
		register.Title = input.Title
	}
	if input.Slug != "" {
		register.Slug = input.Slug
	}
	if input.Description != "" {
		register.Description = input.Description
	}
	if input.Owner != "" {
		register.Owner = input.Owner
	}
	if input.Organisation != "" {
		register.Organisation = input.Organisation
	}
	if input.Schemas != nil {
		raw, _ := json.Marshal(input.Schemas.Slice())
		register.Schemas = datatypes.JSON(raw)
	}

	if err := services.UpdateRegister(h.DB, register); err != nil {
		return utils.DomainErrorResponse(c, err, "updateRegister")
	}
	return c.Status(fiber.StatusOK).JSON(register)
}

// DeleteRegister handles DELETE /api/registers/:id
func (h *RegistersHandler) DeleteRegister(c *fiber.Ctx) error {
	if err := services.DeleteRegister(h.DB, c.Params("id")); err != nil {
		return utils.DomainErrorResponse(c, err, "deleteRegister")
	}
	return c.SendStatus(fiber.StatusNoContent)
}
