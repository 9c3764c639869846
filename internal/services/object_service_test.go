package services

import (
	"errors"
	"testing"
	"time"

	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/types"
	"gorm.io/datatypes"
)

// TestInsertObjectDefaults tests UUID and version defaulting on insert
func TestInsertObjectDefaults(t *testing.T) {
	db := setupTestDB(t)
	events := NewDispatcher()

	obj := &models.Object{
		Register: "r",
		Schema:   "s",
		Document: datatypes.JSONMap{"id": "should-go", "status": "draft"},
	}
	if err := InsertObject(db, events, obj, testSession("alice")); err != nil {
		t.Fatalf("Failed to insert: %v", err)
	}

	if obj.UUID == "" {
		t.Error("Expected a generated UUID")
	}
	if obj.Version != models.DefaultVersion {
		t.Errorf("Expected default version, got %s", obj.Version)
	}
	if _, present := obj.Document["id"]; present {
		t.Error("Expected reserved id key to be stripped")
	}
	if obj.Size == 0 {
		t.Error("Expected document size to be recorded")
	}
}

// TestFindObject tests identifier resolution across id, uuid and uri
func TestFindObject(t *testing.T) {
	db := setupTestDB(t)
	obj := seedObject(t, db, "r", "s", map[string]interface{}{"status": "draft"})
	db.Model(obj).Update("uri", "https://example.org/objects/abc")

	byID, err := FindObject(db, "1")
	if err != nil {
		t.Fatalf("Failed to find by id: %v", err)
	}
	if byID.ID != obj.ID {
		t.Errorf("Expected id %d, got %d", obj.ID, byID.ID)
	}

	byUUID, err := FindObject(db, obj.UUID)
	if err != nil {
		t.Fatalf("Failed to find by uuid: %v", err)
	}
	if byUUID.ID != obj.ID {
		t.Errorf("Expected id %d, got %d", obj.ID, byUUID.ID)
	}

	byURI, err := FindObject(db, "https://example.org/objects/abc")
	if err != nil {
		t.Fatalf("Failed to find by uri: %v", err)
	}
	if byURI.ID != obj.ID {
		t.Errorf("Expected id %d, got %d", obj.ID, byURI.ID)
	}

	if _, err := FindObject(db, "missing"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

// TestFindObjectNumericFallthrough tests that a numeric identifier with no
// matching row falls through to uuid/uri matching
func TestFindObjectNumericFallthrough(t *testing.T) {
	db := setupTestDB(t)
	obj := seedObject(t, db, "r", "s", map[string]interface{}{})
	db.Model(obj).Update("uri", "424242")

	found, err := FindObject(db, "424242")
	if err != nil {
		t.Fatalf("Expected fallthrough to uri, got %v", err)
	}
	if found.ID != obj.ID {
		t.Errorf("Expected id %d, got %d", obj.ID, found.ID)
	}
}

// TestFindObjectAmbiguous tests that multi-row matches are rejected
func TestFindObjectAmbiguous(t *testing.T) {
	db := setupTestDB(t)
	a := seedObject(t, db, "r", "s", map[string]interface{}{})
	b := seedObject(t, db, "r", "s", map[string]interface{}{})
	db.Model(a).Update("uri", "shared-uri")
	db.Model(b).Update("uri", "shared-uri")

	if _, err := FindObject(db, "shared-uri"); !errors.Is(err, types.ErrAmbiguous) {
		t.Errorf("Expected ErrAmbiguous, got %v", err)
	}
}

// TestUpdateObjectBumpsVersion tests the automatic patch bump on writes that
// leave the version untouched
func TestUpdateObjectBumpsVersion(t *testing.T) {
	db := setupTestDB(t)
	events := NewDispatcher()
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "draft"})

	obj, err := FindObject(db, "1")
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	obj.Document["status"] = "active"
	if err := UpdateObject(db, events, obj, testSession("alice")); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if obj.Version != "0.0.2" {
		t.Errorf("Expected version 0.0.2, got %s", obj.Version)
	}

	// A caller-supplied version is kept as-is
	obj.Version = "2.0.0"
	if err := UpdateObject(db, events, obj, testSession("alice")); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if obj.Version != "2.0.0" {
		t.Errorf("Expected caller version to win, got %s", obj.Version)
	}
}

// TestUpdateObjectLockGate tests that a live foreign lock blocks writes
func TestUpdateObjectLockGate(t *testing.T) {
	db := setupTestDB(t)
	events := NewDispatcher()
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "draft"})

	if _, err := LockObject(db, events, "1", testSession("alice"), "edit", time.Hour); err != nil {
		t.Fatalf("Failed to lock: %v", err)
	}

	obj, err := FindObject(db, "1")
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}
	obj.Document["status"] = "active"

	if err := UpdateObject(db, events, obj, testSession("bob")); !errors.Is(err, types.ErrLocked) {
		t.Errorf("Expected ErrLocked for foreign writer, got %v", err)
	}
	if err := UpdateObject(db, events, obj, testSession("alice")); err != nil {
		t.Errorf("Expected holder write to pass, got %v", err)
	}
}

// TestDeleteObjectLockGate tests that a live foreign lock blocks hard
// deletion just like it blocks updates
func TestDeleteObjectLockGate(t *testing.T) {
	db := setupTestDB(t)
	events := NewDispatcher()
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "draft"})

	if _, err := LockObject(db, events, "1", testSession("alice"), "edit", time.Hour); err != nil {
		t.Fatalf("Failed to lock: %v", err)
	}

	obj, err := FindObject(db, "1")
	if err != nil {
		t.Fatalf("Failed to find: %v", err)
	}

	if err := DeleteObject(db, events, obj, testSession("bob")); !errors.Is(err, types.ErrLocked) {
		t.Errorf("Expected ErrLocked for foreign deleter, got %v", err)
	}
	if _, err := FindObject(db, "1"); err != nil {
		t.Fatalf("Expected object to survive the blocked delete, got %v", err)
	}

	if err := DeleteObject(db, events, obj, testSession("alice")); err != nil {
		t.Errorf("Expected holder delete to pass, got %v", err)
	}
	if _, err := FindObject(db, "1"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected object gone after holder delete, got %v", err)
	}
}

// TestLockUnlockRoundTrip tests lock persistence through the service layer
func TestLockUnlockRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	events := NewDispatcher()
	seedObject(t, db, "r", "s", map[string]interface{}{})

	locked, err := LockObject(db, events, "1", testSession("alice"), "import", 30*time.Minute)
	if err != nil {
		t.Fatalf("Failed to lock: %v", err)
	}
	if !locked.IsLocked() {
		t.Fatal("Expected object to be locked")
	}

	reloaded, err := FindObject(db, "1")
	if err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if !reloaded.IsLocked() || reloaded.Locked.UserID != "alice" {
		t.Error("Expected persisted lock held by alice")
	}

	if _, err := LockObject(db, events, "1", testSession("bob"), "", time.Hour); !errors.Is(err, types.ErrLocked) {
		t.Errorf("Expected ErrLocked for second actor, got %v", err)
	}
	if _, err := UnlockObject(db, events, "1", testSession("bob")); !errors.Is(err, types.ErrLocked) {
		t.Errorf("Expected ErrLocked for non-holder unlock, got %v", err)
	}

	if _, err := UnlockObject(db, events, "1", testSession("alice")); err != nil {
		t.Fatalf("Failed to unlock: %v", err)
	}
	reloaded, err = FindObject(db, "1")
	if err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if reloaded.IsLocked() {
		t.Error("Expected lock to be cleared after unlock")
	}
}

// TestMarkObjectDeleted tests the soft-delete path and its idempotence
func TestMarkObjectDeleted(t *testing.T) {
	db := setupTestDB(t)
	events := NewDispatcher()
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "live"})

	deleted, err := MarkObjectDeleted(db, events, "1", testSession("alice"), "obsolete", 30)
	if err != nil {
		t.Fatalf("Failed to soft delete: %v", err)
	}
	if !deleted.IsDeleted() {
		t.Fatal("Expected deletion record")
	}
	if deleted.Deleted.DeletedBy != "alice" || deleted.Deleted.Reason != "obsolete" {
		t.Errorf("Expected deletion metadata, got %+v", deleted.Deleted)
	}
	if deleted.Deleted.PurgeDate == nil || !deleted.Deleted.PurgeDate.After(time.Now()) {
		t.Error("Expected a future purge date")
	}

	// Hidden from default listings, row still present
	count, err := CountAllObjects(db, &ObjectQuery{})
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected soft-deleted object hidden, got %d", count)
	}

	// Deleting again is a no-op
	again, err := MarkObjectDeleted(db, events, "1", testSession("bob"), "again", 30)
	if err != nil {
		t.Fatalf("Expected repeat delete to succeed, got %v", err)
	}
	if again.Deleted.DeletedBy != "alice" {
		t.Errorf("Expected original deletion record to survive, got %s", again.Deleted.DeletedBy)
	}
}

// TestFindByRelationURI tests exact and partial relation lookups
func TestFindByRelationURI(t *testing.T) {
	db := setupTestDB(t)
	linked := seedObject(t, db, "r", "s", map[string]interface{}{})
	db.Model(linked).Update("relations", datatypes.JSONMap{
		"author": "https://example.org/persons/7",
	})
	seedObject(t, db, "r", "s", map[string]interface{}{})

	exact, err := FindByRelationURI(db, "https://example.org/persons/7", false)
	if err != nil {
		t.Fatalf("Failed exact lookup: %v", err)
	}
	if len(exact) != 1 || exact[0].ID != linked.ID {
		t.Errorf("Expected 1 exact hit, got %d", len(exact))
	}

	// The exact form requires the whole JSON string value
	exact, err = FindByRelationURI(db, "persons/7", false)
	if err != nil {
		t.Fatalf("Failed exact lookup: %v", err)
	}
	if len(exact) != 0 {
		t.Errorf("Expected no exact hit for a fragment, got %d", len(exact))
	}

	partial, err := FindByRelationURI(db, "persons/7", true)
	if err != nil {
		t.Fatalf("Failed partial lookup: %v", err)
	}
	if len(partial) != 1 {
		t.Errorf("Expected 1 partial hit, got %d", len(partial))
	}
}

// TestSaveObjectHardValidation tests that hard validation blocks bad writes
func TestSaveObjectHardValidation(t *testing.T) {
	db := setupTestDB(t)
	events := NewDispatcher()

	schema := &models.Schema{
		Title:          "Publication",
		HardValidation: true,
		Required:       mustJSON(t, []string{"title"}),
		Properties: mustJSON(t, map[string]models.SchemaProperty{
			"title": {Type: "string"},
		}),
	}
	if err := CreateSchema(db, schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	bad := &models.Object{
		Register: "r",
		Schema:   "publication",
		Document: datatypes.JSONMap{"other": "value"},
	}
	err := SaveObject(db, events, nil, bad, testSession("alice"))
	var validation *types.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}

	good := &models.Object{
		Register: "r",
		Schema:   "publication",
		Document: datatypes.JSONMap{"title": "Annual report"},
	}
	if err := SaveObject(db, events, nil, good, testSession("alice")); err != nil {
		t.Fatalf("Expected valid document to save, got %v", err)
	}
	if good.SchemaVersion != schema.Version {
		t.Errorf("Expected schema version snapshot %s, got %s", schema.Version, good.SchemaVersion)
	}
}

// TestSaveObjectSoftValidation tests that advisory validation lets the
// write proceed
func TestSaveObjectSoftValidation(t *testing.T) {
	db := setupTestDB(t)
	events := NewDispatcher()

	schema := &models.Schema{
		Title:    "Memo",
		Required: mustJSON(t, []string{"title"}),
		Properties: mustJSON(t, map[string]models.SchemaProperty{
			"title": {Type: "string"},
		}),
	}
	if err := CreateSchema(db, schema); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	obj := &models.Object{
		Register: "r",
		Schema:   "memo",
		Document: datatypes.JSONMap{"other": "value"},
	}
	if err := SaveObject(db, events, nil, obj, testSession("alice")); err != nil {
		t.Fatalf("Expected soft validation to pass the write, got %v", err)
	}
	if obj.ID == 0 {
		t.Error("Expected the object to be persisted")
	}
}
