package handlers

import (
	"time"

	"github.com/MWest2020/openregister/internal/config"
	"github.com/MWest2020/openregister/internal/middleware"
	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/services"
	"github.com/MWest2020/openregister/internal/types"
	"github.com/MWest2020/openregister/internal/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ObjectsHandler handles object routes
type ObjectsHandler struct {
	DB     *gorm.DB
	Events *services.Dispatcher
	Config *config.Config
}

// objectInput is the write payload for create and update requests.
type objectInput struct {
	Register     string                 `json:"register"`
	Schema       string                 `json:"schema"`
	Document     map[string]interface{} `json:"document"`
	Relations    map[string]interface{} `json:"relations"`
	URI          string                 `json:"uri"`
	Owner        string                 `json:"owner"`
	Organisation string                 `json:"organisation"`
	Application  string                 `json:"application"`
	Published    *time.Time             `json:"published"`
	Depublished  *time.Time             `json:"depublished"`
}

// ListObjects handles GET /api/objects
func (h *ObjectsHandler) ListObjects(c *fiber.Ctx) error {
	query := parseObjectQuery(c)

	objects, err := services.FindAllObjects(h.DB, query)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "listObjects")
	}
	total, err := services.CountAllObjects(h.DB, query)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "listObjects")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"results": renderObjects(objects),
		"total":   total,
		"limit":   query.Limit,
		"offset":  query.Offset,
	})
}

// GetObject handles GET /api/objects/:id
func (h *ObjectsHandler) GetObject(c *fiber.Ctx) error {
	object, err := services.FindObject(h.DB, c.Params("id"))
	if err != nil {
		return utils.DomainErrorResponse(c, err, "getObject")
	}
	return c.Status(fiber.StatusOK).JSON(renderObject(object))
}

// CreateObject handles POST /api/objects
func (h *ObjectsHandler) CreateObject(c *fiber.Ctx) error {
	var input objectInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "createObject")
	}

	object := &models.Object{
		Register:     input.Register,
		Schema:       input.Schema,
		Document:     datatypes.JSONMap(input.Document),
		Relations:    datatypes.JSONMap(input.Relations),
		URI:          input.URI,
		Owner:        input.Owner,
		Organisation: input.Organisation,
		Application:  input.Application,
		Published:    input.Published,
		Depublished:  input.Depublished,
	}

	session := middleware.SessionFromContext(c)
	if err := services.SaveObject(h.DB, h.Events, h.Config, object, session); err != nil {
		return utils.DomainErrorResponse(c, err, "createObject")
	}
	return c.Status(fiber.StatusCreated).JSON(renderObject(object))
}

// UpdateObject handles PUT /api/objects/:id
func (h *ObjectsHandler) UpdateObject(c *fiber.Ctx) error {
	object, err := services.FindObject(h.DB, c.Params("id"))
	if err != nil {
		return utils.DomainErrorResponse(c, err, "updateObject")
	}

	var input objectInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "updateObject")
	}

	if input.Document != nil {
		object.Document = datatypes.JSONMap(input.Document)
	}
	if input.Relations != nil {
		object.Relations = datatypes.JSONMap(input.Relations)
	}
	if input.Register != "" {
		object.Register = input.Register
	}
	if input.Schema != "" {
		object.Schema = input.Schema
	}
	if input.URI != "" {
		object.URI = input.URI
	}
	if input.Owner != "" {
		object.Owner = input.Owner
	}
	if input.Organisation != "" {
		object.Organisation = input.Organisation
	}
	if input.Application != "" {
		object.Application = input.Application
	}
	if input.Published != nil {
		object.Published = input.Published
	}
	if input.Depublished != nil {
		object.Depublished = input.Depublished
	}

	session := middleware.SessionFromContext(c)
	if err := services.SaveObject(h.DB, h.Events, h.Config, object, session); err != nil {
		return utils.DomainErrorResponse(c, err, "updateObject")
	}
	return c.Status(fiber.StatusOK).JSON(renderObject(object))
}

// DeleteObject handles DELETE /api/objects/:id. The default is a soft
// delete with a retention-driven purge date; _hard=true removes the row.
func (h *ObjectsHandler) DeleteObject(c *fiber.Ctx) error {
	session := middleware.SessionFromContext(c)

	if c.QueryBool("_hard", false) {
		object, err := services.FindObject(h.DB, c.Params("id"))
		if err != nil {
			return utils.DomainErrorResponse(c, err, "deleteObject")
		}
		if err := services.DeleteObject(h.DB, h.Events, object, session); err != nil {
			return utils.DomainErrorResponse(c, err, "deleteObject")
		}
		return c.SendStatus(fiber.StatusNoContent)
	}

	retention := h.Config.ObjectRetentionDays
	object, err := services.MarkObjectDeleted(h.DB, h.Events, c.Params("id"), session, c.Query("reason"), retention)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "deleteObject")
	}
	return c.Status(fiber.StatusOK).JSON(renderObject(object))
}

// lockInput is the lock request payload.
type lockInput struct {
	Process  string           `json:"process"`
	Duration types.FlexUint64 `json:"duration"`
}

// LockObject handles POST /api/objects/:id/lock
func (h *ObjectsHandler) LockObject(c *fiber.Ctx) error {
	var input lockInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "lockObject")
		}
	}

	duration := time.Duration(input.Duration.Uint64()) * time.Second
	session := middleware.SessionFromContext(c)
	object, err := services.LockObject(h.DB, h.Events, c.Params("id"), session, input.Process, duration)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "lockObject")
	}
	return c.Status(fiber.StatusOK).JSON(renderObject(object))
}

// UnlockObject handles POST /api/objects/:id/unlock
func (h *ObjectsHandler) UnlockObject(c *fiber.Ctx) error {
	session := middleware.SessionFromContext(c)
	object, err := services.UnlockObject(h.DB, h.Events, c.Params("id"), session)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "unlockObject")
	}
	return c.Status(fiber.StatusOK).JSON(renderObject(object))
}

// revertInput is the revert request payload.
type revertInput struct {
	Until            string `json:"until"`
	OverwriteVersion bool   `json:"overwriteVersion"`
}

// RevertObject handles POST /api/objects/:id/revert
func (h *ObjectsHandler) RevertObject(c *fiber.Ctx) error {
	var input revertInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "revertObject")
		}
	}

	clone, err := services.RevertObject(h.DB, c.Params("id"), input.Until, input.OverwriteVersion)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "revertObject")
	}

	session := middleware.SessionFromContext(c)
	if err := services.RestoreObject(h.DB, h.Events, clone, input.Until, session); err != nil {
		return utils.DomainErrorResponse(c, err, "revertObject")
	}
	return c.Status(fiber.StatusOK).JSON(renderObject(clone))
}

// GetObjectAuditTrails handles GET /api/objects/:id/audit-trails
func (h *ObjectsHandler) GetObjectAuditTrails(c *fiber.Ctx) error {
	object, err := services.FindObject(h.DB, c.Params("id"))
	if err != nil {
		return utils.DomainErrorResponse(c, err, "getObjectAuditTrails")
	}

	entries, err := services.FindByObjectUntil(h.DB, object.ID, object.UUID, c.Query("until"))
	if err != nil {
		return utils.DomainErrorResponse(c, err, "getObjectAuditTrails")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"results": entries,
		"total":   len(entries),
	})
}

// facetsInput is the facet request payload: a base query plus the facet
// configuration per field.
type facetsInput struct {
	Metadata       map[string]interface{}           `json:"metadata"`
	Document       map[string]interface{}           `json:"document"`
	Search         string                           `json:"search"`
	IncludeDeleted bool                             `json:"includeDeleted"`
	Published      bool                             `json:"published"`
	Facets         map[string]services.FacetRequest `json:"facets"`
}

// GetFacets handles POST /api/objects/facets
func (h *ObjectsHandler) GetFacets(c *fiber.Ctx) error {
	var input facetsInput
	if err := c.BodyParser(&input); err != nil {
		return utils.ErrorResponse(c, "invalid request body", fiber.StatusBadRequest, "getFacets")
	}

	query := &services.ObjectQuery{
		Metadata:       input.Metadata,
		Document:       input.Document,
		Search:         input.Search,
		IncludeDeleted: input.IncludeDeleted,
		Published:      input.Published,
	}
	facets, err := services.GetFacets(h.DB, query, input.Facets)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "getFacets")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"facets": facets})
}

// GetFacetableFields handles GET /api/objects/facetable
func (h *ObjectsHandler) GetFacetableFields(c *fiber.Ctx) error {
	query := parseObjectQuery(c)
	sampleSize := queryInt(c, "_sample", 100)

	fields, err := services.GetFacetableFields(h.DB, query, sampleSize)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "getFacetableFields")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"fields": fields})
}

// FindByRelation handles GET /api/objects/relations/:value
func (h *ObjectsHandler) FindByRelation(c *fiber.Ctx) error {
	value := c.Params("value")
	partial := c.QueryBool("_partial", false)

	objects, err := services.FindByRelationURI(h.DB, value, partial)
	if err != nil {
		return utils.DomainErrorResponse(c, err, "findByRelation")
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"results": renderObjects(objects),
		"total":   len(objects),
	})
}
