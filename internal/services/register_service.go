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

// FindRegister resolves a register by numeric id, UUID or slug.
func FindRegister(db *gorm.DB, identifier string) (*models.Register, error) {
	var register models.Register
	tx := db
	if n, err := strconv.ParseUint(identifier, 10, 64); err == nil {
		tx = tx.Where("id = ?", n)
	} else {
		tx = tx.Where("uuid = ? OR slug = ?", identifier, identifier)
	}
	if err := tx.First(&register).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("register %q: %w", identifier, types.ErrNotFound)
		}
		return nil, types.NewStorageError("find register", err)
	}
	return &register, nil
}

// FindAllRegisters lists registers, excluding soft-deleted ones.
func FindAllRegisters(db *gorm.DB, limit, offset int) ([]models.Register, error) {
	tx := db.Where("deleted IS NULL").Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}
	var registers []models.Register
	if err := tx.Find(&registers).Error; err != nil {
		return nil, types.NewStorageError("find registers", err)
	}
	return registers, nil
}

// CreateRegister persists a new register, deriving the slug from the title
// when absent.
func CreateRegister(db *gorm.DB, register *models.Register) error {
	if register.UUID == "" {
		register.UUID = uuid.NewString()
	}
	if register.Slug == "" {
		register.Slug = Slugify(register.Title)
	}
	if register.Version == "" {
		register.Version = models.DefaultVersion
	}
	if err := db.Create(register).Error; err != nil {
		return types.NewStorageError("create register", err)
	}
	return nil
}

// UpdateRegister persists a changed register and bumps the patch version.
func UpdateRegister(db *gorm.DB, register *models.Register) error {
	if register.Slug == "" {
		register.Slug = Slugify(register.Title)
	}
	register.Version = models.BumpPatch(register.Version)
	if err := db.Save(register).Error; err != nil {
		return types.NewStorageError("update register", err)
	}
	return nil
}

// DeleteRegister soft-deletes a register. A register still referenced by
// any non-deleted object cannot be deleted.
func DeleteRegister(db *gorm.DB, identifier string) error {
	register, err := FindRegister(db, identifier)
	if err != nil {
		return err
	}

	var live int64
	err = db.Model(&models.Object{}).
		Where("deleted IS NULL").
		Where("register_id = ? OR register_id = ?", strconv.FormatUint(register.ID, 10), register.Slug).
		Count(&live).Error
	if err != nil {
		return types.NewStorageError("count register objects", err)
	}
	if live > 0 {
		return fmt.Errorf("%w: register %s still holds %d objects", types.ErrConflict, register.Slug, live)
	}

	now := time.Now()
	if err := db.Model(register).Update("deleted", now).Error; err != nil {
		return types.NewStorageError("delete register", err)
	}
	return nil
}
