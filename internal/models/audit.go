package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit actions.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionRead   = "read"
)

// AuditTrail is an immutable record of one mutation's field-level diff.
// Entries are only ever created and expiry-deleted, never updated; the
// ordered sequence per object forms its replayable history.
type AuditTrail struct {
	ID         uint64            `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID       string            `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	ObjectID   uint64            `gorm:"index;not null" json:"objectId"`
	ObjectUUID string            `gorm:"type:char(36);index" json:"objectUuid"`
	Register   string            `gorm:"column:register_id;size:255;index" json:"register"`
	Schema     string            `gorm:"column:schema_id;size:255;index" json:"schema"`
	Action     string            `gorm:"size:32;index;not null" json:"action"`
	Changed    datatypes.JSONMap `gorm:"type:json" json:"changed"`
	UserID     string            `gorm:"size:255;index" json:"userId"`
	UserName   string            `gorm:"size:255" json:"userName"`
	Session    string            `gorm:"size:255" json:"session"`
	Request    string            `gorm:"size:255" json:"request"`
	IPAddress  string            `gorm:"size:64" json:"ipAddress"`
	Version    string            `gorm:"size:255" json:"version"`
	Size       int64             `json:"size"`
	CreatedAt  time.Time         `gorm:"index" json:"created"`
	Expires    *time.Time        `gorm:"index" json:"expires,omitempty"`
}

// TableName overrides the table name for AuditTrail.
func (AuditTrail) TableName() string {
	return "audit_trails"
}
