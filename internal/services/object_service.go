package services

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MWest2020/openregister/internal/config"
	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FindObject resolves an identifier that may be a numeric id, a UUID or a
// URI. Numeric identifiers try the id column first and fall through to
// UUID/URI equality on a miss.
func FindObject(db *gorm.DB, identifier string) (*models.Object, error) {
	if n, err := strconv.ParseUint(identifier, 10, 64); err == nil {
		var objects []models.Object
		if err := db.Where("id = ?", n).Find(&objects).Error; err != nil {
			return nil, types.NewStorageError("find object", err)
		}
		if len(objects) == 1 {
			return &objects[0], nil
		}
	}

	var objects []models.Object
	if err := db.Where("uuid = ? OR uri = ?", identifier, identifier).Find(&objects).Error; err != nil {
		return nil, types.NewStorageError("find object", err)
	}
	switch len(objects) {
	case 0:
		return nil, fmt.Errorf("object %q: %w", identifier, types.ErrNotFound)
	case 1:
		return &objects[0], nil
	default:
		return nil, fmt.Errorf("object %q: %w", identifier, types.ErrAmbiguous)
	}
}

// FindAllObjects returns a page of objects matching the translated query.
// Soft-deleted rows are excluded unless the query says otherwise.
func FindAllObjects(db *gorm.DB, query *ObjectQuery) ([]models.Object, error) {
	tx := query.Apply(db.Model(&models.Object{}))
	tx = query.ApplySort(db, tx)
	tx = query.ApplyPagination(tx)

	var objects []models.Object
	if err := tx.Find(&objects).Error; err != nil {
		return nil, types.NewStorageError("find objects", err)
	}
	return objects, nil
}

// CountAllObjects returns the scalar count under the same filter semantics
// as FindAllObjects, ignoring pagination.
func CountAllObjects(db *gorm.DB, query *ObjectQuery) (int64, error) {
	var count int64
	tx := query.Apply(db.Model(&models.Object{}))
	if err := tx.Count(&count).Error; err != nil {
		return 0, types.NewStorageError("count objects", err)
	}
	return count, nil
}

// InsertObject persists a new object and emits the created event. The
// document is stripped of reserved presentation keys first.
func InsertObject(db *gorm.DB, events *Dispatcher, object *models.Object, session *types.Session) error {
	if object.UUID == "" {
		object.UUID = uuid.NewString()
	}
	if object.Version == "" {
		object.Version = models.DefaultVersion
	}
	object.StripReservedKeys()
	object.ComputeSize()

	if err := db.Create(object).Error; err != nil {
		return types.NewStorageError("insert object", err)
	}

	events.Dispatch(ObjectCreated{Object: object, Session: session.OrSystem()})
	return nil
}

// UpdateObject loads the prior row, persists the new state and emits the
// updated event carrying both. Mutation is gated by the advisory lock: a
// non-expired lock held by a different actor rejects the write.
func UpdateObject(db *gorm.DB, events *Dispatcher, object *models.Object, session *types.Session) error {
	session = session.OrSystem()

	var prior models.Object
	if err := db.First(&prior, object.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("object %d: %w", object.ID, types.ErrNotFound)
		}
		return types.NewStorageError("load prior object", err)
	}

	if prior.IsLocked() && prior.Locked.UserID != session.UserID {
		return fmt.Errorf("%w: held by %s", types.ErrLocked, prior.Locked.UserID)
	}

	object.UUID = prior.UUID // immutable once generated
	object.StripReservedKeys()
	object.ComputeSize()
	if object.Version == prior.Version {
		object.Version = models.BumpPatch(prior.Version)
	}

	if err := db.Save(object).Error; err != nil {
		return types.NewStorageError("update object", err)
	}

	events.Dispatch(ObjectUpdated{Old: &prior, New: object, Session: session})
	return nil
}

// DeleteObject removes the row entirely and emits the deleted event. Soft
// deletion is MarkObjectDeleted; this is the hard path. The advisory lock
// gates it the same way it gates updates.
func DeleteObject(db *gorm.DB, events *Dispatcher, object *models.Object, session *types.Session) error {
	session = session.OrSystem()

	var prior models.Object
	if err := db.First(&prior, object.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("object %d: %w", object.ID, types.ErrNotFound)
		}
		return types.NewStorageError("load prior object", err)
	}
	if prior.IsLocked() && prior.Locked.UserID != session.UserID {
		return fmt.Errorf("%w: held by %s", types.ErrLocked, prior.Locked.UserID)
	}

	if err := db.Delete(&models.Object{}, object.ID).Error; err != nil {
		return types.NewStorageError("delete object", err)
	}
	events.Dispatch(ObjectDeleted{Object: object, Session: session})
	return nil
}

// MarkObjectDeleted sets the soft-delete record with a retention-driven
// purge date and persists through the update path.
func MarkObjectDeleted(db *gorm.DB, events *Dispatcher, identifier string, session *types.Session, reason string, retentionDays int) (*models.Object, error) {
	object, err := FindObject(db, identifier)
	if err != nil {
		return nil, err
	}
	if object.IsDeleted() {
		return object, nil
	}

	updated := object.Clone()
	updated.MarkDeleted(session, reason, retentionDays)
	if err := UpdateObject(db, events, updated, session); err != nil {
		return nil, err
	}
	return updated, nil
}

// LockObject attaches or extends the advisory lock on an object.
func LockObject(db *gorm.DB, events *Dispatcher, identifier string, session *types.Session, process string, duration time.Duration) (*models.Object, error) {
	object, err := FindObject(db, identifier)
	if err != nil {
		return nil, err
	}
	if err := object.Lock(session, process, duration); err != nil {
		return nil, err
	}
	if err := db.Model(object).Update("locked", object.Locked).Error; err != nil {
		return nil, types.NewStorageError("lock object", err)
	}
	events.Dispatch(ObjectLocked{Object: object, Session: session.OrSystem()})
	return object, nil
}

// UnlockObject clears the advisory lock on an object.
func UnlockObject(db *gorm.DB, events *Dispatcher, identifier string, session *types.Session) (*models.Object, error) {
	object, err := FindObject(db, identifier)
	if err != nil {
		return nil, err
	}
	if err := object.Unlock(session); err != nil {
		return nil, err
	}
	if err := db.Model(object).Update("locked", nil).Error; err != nil {
		return nil, types.NewStorageError("unlock object", err)
	}
	events.Dispatch(ObjectUnlocked{Object: object, Session: session.OrSystem()})
	return object, nil
}

// FindByRelationURI returns objects whose relation map contains the value.
// An exact match looks for the JSON-quoted value; a partial match is a
// plain substring search over the serialized map.
func FindByRelationURI(db *gorm.DB, value string, partialMatch bool) ([]models.Object, error) {
	pattern := `%"` + value + `"%`
	if partialMatch {
		pattern = "%" + value + "%"
	}

	var objects []models.Object
	err := db.Where("deleted IS NULL").
		Where(serializedColumn(db, "relations")+" LIKE ?", pattern).
		Find(&objects).Error
	if err != nil {
		return nil, types.NewStorageError("find by relation", err)
	}
	return objects, nil
}

// FindMultipleObjects batch-resolves a mixed id/UUID/URI list, OR-combined.
func FindMultipleObjects(db *gorm.DB, ids []string) ([]models.Object, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var objects []models.Object
	if err := db.Where(identifierConditions(db, ids)).Find(&objects).Error; err != nil {
		return nil, types.NewStorageError("find multiple objects", err)
	}
	return objects, nil
}

// SaveObject is the guarded write path: it validates the document against
// the object's schema, then inserts or updates. A schema with hard
// validation enabled blocks the write on failure; otherwise the result is
// advisory and the write proceeds.
func SaveObject(db *gorm.DB, events *Dispatcher, cfg *config.Config, object *models.Object, session *types.Session) error {
	object.StripReservedKeys()

	if object.Schema != "" {
		schema, err := FindSchema(db, object.Schema)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return err
		}
		if schema != nil {
			if object.SchemaVersion == "" {
				object.SchemaVersion = schema.Version
			}
			result := ValidateObjectDocument(db, cfg, map[string]interface{}(object.Document), schema)
			if !result.Valid && schema.HardValidation {
				return &types.ValidationError{Errors: result.Errors}
			}
		}
	}

	if object.ID == 0 {
		return InsertObject(db, events, object, session)
	}
	return UpdateObject(db, events, object, session)
}
