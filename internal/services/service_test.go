package services

import (
	"encoding/json"
	"testing"

	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/types"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}

	// Auto-migrate models
	err = db.AutoMigrate(
		&models.Register{},
		&models.Schema{},
		&models.Object{},
		&models.AuditTrail{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	return db
}

// seedObject persists an object row directly, bypassing the service layer.
func seedObject(t *testing.T, db *gorm.DB, register, schema string, document map[string]interface{}) *models.Object {
	obj := &models.Object{
		UUID:     uuid.NewString(),
		Version:  models.DefaultVersion,
		Register: register,
		Schema:   schema,
		Document: datatypes.JSONMap(document),
	}
	obj.ComputeSize()
	if err := db.Create(obj).Error; err != nil {
		t.Fatalf("Failed to seed object: %v", err)
	}
	return obj
}

func testSession(userID string) *types.Session {
	return &types.Session{UserID: userID, UserName: userID, IPAddress: "127.0.0.1"}
}

// mustJSON marshals helper structures for schema rows.
func mustJSON(t *testing.T, v interface{}) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	return datatypes.JSON(raw)
}
