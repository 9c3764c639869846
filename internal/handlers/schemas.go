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

// SchemasHandler handles schema routes
type SchemasHandler struct {
	DB *gorm.DB
}

// schemaInput is the write payload for schema create and update requests.
type schemaInput struct {
	Title          string                           `json:"title"`
	Slug           string                           `json:"slug"`
	Description    string                           `json:"description"`
	Required       types.FlexList[string]           `json:"required"`
	Properties     map[string]models.SchemaProperty `json:"properties"`
	HardValidation *bool                            `json:"hardValidation"`
	MaxDepth       int                              `json:"maxDepth"`
	Owner          string                           `json:"owner"`
	Organisation   string                           `json:"organisation"`
	Authorization  map[string]interface{}           `json:"authorization"`
}

// ListSchemas handles GET /api/schemas
func (h *SchemasHandler) ListSchemas(c *fiber.Ctx) error {
	limit := queryInt(c, "_limit", 30)
	offset := queryInt(c, "_offset", 0)

	schemas, err := services.FindAllSchemas(h.DB, limit, offset)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "listSchemas")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"results": schemas,
		"total":   len(schemas),
		"limit":   limit,
		"offset":  offset,
	})
}

// GetSchema handles GET /api/schemas/:id
func (h *SchemasHandler) GetSchema(c *fiber.Ctx) error {
	schema, err := services.FindSchema(h.DB, c.Params("id"))
	if err != nil {
		return utils.DomainErrorResponse(c, err, "getSchema")
	}
	return c.Status(fiber.StatusOK).JSON(schema)
}

// CreateSchema handles POST /api/schemas
func (h *SchemasHandler) CreateSchema(c *fiber.Ctx) error {
	var input schemaInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "createSchema")
	}
	if input.Title == "" {
		return utils.ErrorResponse(c, "title is required", fiber.StatusBadRequest, "createSchema")
	}

	schema := &models.Schema{
		Title:        input.Title,
		Slug:         input.Slug,
		Description:  input.Description,
		MaxDepth:     input.MaxDepth,
		Owner:        input.Owner,
		Organisation: input.Organisation,
	}
	if input.HardValidation != nil {
		schema.HardValidation = *input.HardValidation
	}
	applySchemaJSON(schema, &input)

	if err := services.CreateSchema(h.DB, schema); err != nil {
		return utils.DomainErrorResponse(c, err, "createSchema")
	}
	return c.Status(fiber.StatusCreated).JSON(schema)
}

// UpdateSchema handles PUT /api/schemas/:id
func (h *SchemasHandler) UpdateSchema(c *fiber.Ctx) error {
	schema, err := services.FindSchema(h.DB, c.Params("id"))
	if err != nil {
		return utils.DomainErrorResponse(c, err, "updateSchema")
	}

	var input schemaInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "updateSchema")
	}

	if input.Title != "" {
		schema.Title = input.Title
	}
	if input.Slug != "" {
		schema.Slug = input.Slug
	}
	if input.Description != "" {
		schema.Description = input.Description
	}
	if input.MaxDepth > 0 {
		schema.MaxDepth = input.MaxDepth
	}
	if input.Owner != "" {
		schema.Owner = input.Owner
	}
	if input.Organisation != "" {
		schema.Organisation = input.Organisation
	}
	if input.HardValidation != nil {
		schema.HardValidation = *input.HardValidation
	}
	applySchemaJSON(schema, &input)

	if err := services.UpdateSchema(h.DB, schema); err != nil {
		return utils.DomainErrorResponse(c, err, "updateSchema")
	}
	return c.Status(fiber.StatusOK).JSON(schema)
}

// DeleteSchema handles DELETE /api/schemas/:id
func (h *SchemasHandler) DeleteSchema(c *fiber.Ctx) error {
	if err := services.DeleteSchema(h.DB, c.Params("id")); err != nil {
		return utils.DomainErrorResponse(c, err, "deleteSchema")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func applySchemaJSON(schema *models.Schema, input *schemaInput) {
	if input.Required != nil {
		raw, _ := json.Marshal(input.Required.Slice())
		schema.Required = datatypes.JSON(raw)
	}
	if input.Properties != nil {
		raw, _ := json.Marshal(input.Properties)
		schema.Properties = datatypes.JSON(raw)
	}
	if input.Authorization != nil {
		raw, _ := json.Marshal(input.Authorization)
		schema.Authorization = datatypes.JSON(raw)
	}
}
