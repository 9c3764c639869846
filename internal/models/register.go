package models

import (
	"time"

	"gorm.io/datatypes"
)

// Register is a named collection of objects sharing a life-cycle and
// ownership domain.
type Register struct {
	ID           uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID         string         `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	Slug         string         `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Title        string         `gorm:"size:255;not null" json:"title"`
	Description  string         `gorm:"type:text" json:"description"`
	Version      string         `gorm:"size:255;not null;default:'0.0.1'" json:"version"`
	Schemas      datatypes.JSON `gorm:"type:json" json:"schemas"`
	Owner        string         `gorm:"size:255;index" json:"owner"`
	Organisation string         `gorm:"size:255;index" json:"organisation"`
	Deleted      *time.Time     `json:"deleted,omitempty"`
	CreatedAt    time.Time      `json:"created"`
	UpdatedAt    time.Time      `json:"updated"`
}

// TableName overrides the table name for Register.
func (Register) TableName() string {
	return "registers"
}
