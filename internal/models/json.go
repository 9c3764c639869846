package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// jsonColumnType resolves the JSON column type for each database driver.
// MSSQL has no 'json' data type, so it falls back to NVARCHAR.
func jsonColumnType(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	case "sqlserver", "mssql":
		return "NVARCHAR(MAX)"
	case "sqlite":
		return "JSON"
	}
	return "TEXT"
}

// ObjectLock is the advisory lock record stored as a JSON column on an
// object row. A nil *ObjectLock persists as SQL NULL so that lock presence
// can be tested with plain IS NULL predicates.
type ObjectLock struct {
	UserID     string    `json:"userId"`
	UserName   string    `json:"userName,omitempty"`
	Process    string    `json:"process,omitempty"`
	Created    time.Time `json:"created"`
	Duration   int64     `json:"duration"`
	Expiration time.Time `json:"expiration"`
}

// Value implements driver.Valuer.
func (l ObjectLock) Value() (driver.Value, error) {
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *ObjectLock) Scan(value interface{}) error {
	return scanJSON(value, l)
}

// GormDBDataType implements the gorm migrator column-type hook.
func (ObjectLock) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumnType(db)
}

// ObjectDeletion is the soft-delete record stored as a JSON column on an
// object row. Rows are only purged by an external retention job.
type ObjectDeletion struct {
	Deleted       time.Time  `json:"deleted"`
	DeletedBy     string     `json:"deletedBy"`
	Reason        string     `json:"reason,omitempty"`
	RetentionDays int        `json:"retentionDays"`
	PurgeDate     *time.Time `json:"purgeDate,omitempty"`
}

// Value implements driver.Valuer.
func (d ObjectDeletion) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *ObjectDeletion) Scan(value interface{}) error {
	return scanJSON(value, d)
}

// GormDBDataType implements the gorm migrator column-type hook.
func (ObjectDeletion) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumnType(db)
}

func scanJSON(value interface{}, dest interface{}) error {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported JSON column source type %T", value)
	}
}
