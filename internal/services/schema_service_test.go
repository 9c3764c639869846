package services

import (
	"errors"
	"testing"

	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/types"
)

// TestCreateSchemaDefaults tests slug, version and depth defaulting
func TestCreateSchemaDefaults(t *testing.T) {
	db := setupTestDB(t)

	schema := &models.Schema{Title: "Publication Record"}
	if err := CreateSchema(db, schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}
	if schema.Slug != "publication-record" {
		t.Errorf("Expected derived slug, got %s", schema.Slug)
	}
	if schema.MaxDepth != 2 {
		t.Errorf("Expected default max depth 2, got %d", schema.MaxDepth)
	}
}

// TestSchemaSoftDelete tests listing exclusion after soft delete
func TestSchemaSoftDelete(t *testing.T) {
	db := setupTestDB(t)
	schema := &models.Schema{Title: "Short Lived"}
	if err := CreateSchema(db, schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	if err := DeleteSchema(db, "short-lived"); err != nil {
		t.Fatalf("Failed to delete schema: %v", err)
	}

	schemas, err := FindAllSchemas(db, 0, 0)
	if err != nil {
		t.Fatalf("Failed to list schemas: %v", err)
	}
	if len(schemas) != 0 {
		t.Errorf("Expected no live schemas, got %d", len(schemas))
	}

	if _, err := FindSchema(db, "no-such-schema"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
