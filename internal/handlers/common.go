package handlers

import (
	"strconv"
	"strings"

	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/services"
	"github.com/gofiber/fiber/v2"
)

// Reserved query parameter names that never become field filters.
var reservedParams = map[string]struct{}{
	"_search":         {},
	"_sort":           {},
	"_order":          {},
	"_limit":          {},
	"_offset":         {},
	"_includeDeleted": {},
	"_published":      {},
	"_uses":           {},
	"_ids":            {},
}

// parseObjectQuery builds the abstract query from request parameters.
// Parameters prefixed with @self. address metadata columns; every other
// parameter is a dot-separated path into the document. Repeated parameters
// become one-of groups.
func parseObjectQuery(c *fiber.Ctx) *services.ObjectQuery {
	query := &services.ObjectQuery{
		Metadata: map[string]interface{}{},
		Document: map[string]interface{}{},
	}

	query.Limit = queryInt(c, "_limit", 30)
	query.Offset = queryInt(c, "_offset", 0)
	query.Search = c.Query("_search")
	query.Uses = c.Query("_uses")
	query.IncludeDeleted = c.QueryBool("_includeDeleted", false)
	query.Published = c.QueryBool("_published", false)

	if ids := c.Query("_ids"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				query.Ids = append(query.Ids, id)
			}
		}
	}

	if sortParam := c.Query("_sort"); sortParam != "" {
		order := c.Query("_order", "asc")
		for _, field := range strings.Split(sortParam, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			direction := order
			if idx := strings.Index(field, ":"); idx >= 0 {
				direction = field[idx+1:]
				field = field[:idx]
			}
			field = strings.TrimPrefix(field, "@self.")
			query.Sort = append(query.Sort, services.SortField{Field: field, Direction: direction})
		}
	}

	filters := map[string][]string{}
	args := c.Context().QueryArgs()
	for key, value := range args.All() {
		name := string(key)
		if _, reserved := reservedParams[name]; reserved {
			continue
		}
		filters[name] = append(filters[name], string(value))
	}

	for name, values := range filters {
		var filterValue interface{}
		if len(values) == 1 {
			filterValue = values[0]
		} else {
			filterValue = values
		}
		if metaName, ok := strings.CutPrefix(name, "@self."); ok {
			query.Metadata[metaName] = filterValue
			continue
		}
		query.Document[name] = filterValue
	}

	return query
}

func queryInt(c *fiber.Ctx, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// renderObject synthesizes the reserved presentation keys on top of the
// stored document: id mirrors the object UUID, @self carries the metadata.
func renderObject(object *models.Object) map[string]interface{} {
	out := make(map[string]interface{}, len(object.Document)+2)
	for key, value := range object.Document {
		out[key] = value
	}
	out[models.ReservedIDKey] = object.UUID
	out[models.ReservedSelfKey] = map[string]interface{}{
		"id":            object.ID,
		"uuid":          object.UUID,
		"uri":           object.URI,
		"version":       object.Version,
		"register":      object.Register,
		"schema":        object.Schema,
		"schemaVersion": object.SchemaVersion,
		"relations":     object.Relations,
		"locked":        object.Locked,
		"deleted":       object.Deleted,
		"published":     object.Published,
		"depublished":   object.Depublished,
		"owner":         object.Owner,
		"organisation":  object.Organisation,
		"application":   object.Application,
		"size":          object.Size,
		"created":       object.CreatedAt,
		"updated":       object.UpdatedAt,
	}
	return out
}

func renderObjects(objects []models.Object) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(objects))
	for i := range objects {
		out = append(out, renderObject(&objects[i]))
	}
	return out
}
