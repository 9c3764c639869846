package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FindSchema resolves a schema by numeric id, UUID or slug.
func FindSchema(db *gorm.DB, identifier string) (*models.Schema, error) {
	var schema models.Schema
	tx := db
	if n, err := strconv.ParseUint(identifier, 10, 64); err == nil {
		tx = tx.Where("id = ?", n)
	} else {
		tx = tx.Where("uuid = ? OR slug = ?", identifier, identifier)
	}
	if err := tx.First(&schema).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("schema %q: %w", identifier, types.ErrNotFound)
		}
		return nil, types.NewStorageError("find schema", err)
	}
	return &schema, nil
}

// FindAllSchemas lists schemas, excluding soft-deleted ones.
func FindAllSchemas(db *gorm.DB, limit, offset int) ([]models.Schema, error) {
	tx := db.Where("deleted IS NULL").Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	var schemas []models.Schema
	if err := tx.Find(&schemas).Error; err != nil {
		return nil, types.NewStorageError("find schemas", err)
	}
	return schemas, nil
}

// CreateSchema persists a new schema, deriving the slug from the title
// when absent.
func CreateSchema(db *gorm.DB, schema *models.Schema) error {
	if schema.UUID == "" {
		schema.UUID = uuid.NewString()
	}
	if schema.Slug == "" {
		schema.Slug = Slugify(schema.Title)
	}
	if schema.Version == "" {
		schema.Version = models.DefaultVersion
	}
	if schema.MaxDepth <= 0 {
		schema.MaxDepth = 2
	}
	if err := db.Create(schema).Error; err != nil {
		return types.NewStorageError("create schema", err)
	}
	return nil
}

// UpdateSchema persists a changed schema and bumps the patch version.
// Objects keep the schema-version snapshot they were created under.
func UpdateSchema(db *gorm.DB, schema *models.Schema) error {
	if schema.Slug == "" {
		schema.Slug = Slugify(schema.Title)
	}
	schema.Version = models.BumpPatch(schema.Version)
	if err := db.Save(schema).Error; err != nil {
		return types.NewStorageError("update schema", err)
	}
	return nil
}

// DeleteSchema soft-deletes a schema.
func DeleteSchema(db *gorm.DB, identifier string) error {
	schema, err := FindSchema(db, identifier)
	if err != nil {
		return err
	}
	now := time.Now()
	if err := db.Model(schema).Update("deleted", now).Error; err != nil {
		return types.NewStorageError("delete schema", err)
	}
	return nil
}
