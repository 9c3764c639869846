package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// SchemaProperty is a single declared property of a schema.
type SchemaProperty struct {
	Type       string                    `json:"type"`
	Format     string                    `json:"format,omitempty"`
	Ref        string                    `json:"$ref,omitempty"`
	Items      *SchemaProperty           `json:"items,omitempty"`
	Properties map[string]SchemaProperty `json:"properties,omitempty"`
	Cascade    bool                      `json:"cascade,omitempty"`
	InversedBy string                    `json:"inversedBy,omitempty"`
}

// Schema declares the shape objects in a register must conform to.
type Schema struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID           string         `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	Slug           string         `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Title          string         `gorm:"size:255;not null" json:"title"`
	Description    string         `gorm:"type:text" json:"description"`
	Version        string         `gorm:"size:255;not null;default:'0.0.1'" json:"version"`
	Required       datatypes.JSON `gorm:"type:json" json:"required"`
	Properties     datatypes.JSON `gorm:"type:json" json:"properties"`
	HardValidation bool           `gorm:"not null;default:false" json:"hardValidation"`
	MaxDepth       int            `gorm:"not null;default:2" json:"maxDepth"`
	Owner          string         `gorm:"size:255;index" json:"owner"`
	Organisation   string         `gorm:"size:255;index" json:"organisation"`
	Authorization  datatypes.JSON `gorm:"type:json" json:"authorization"`
	Deleted        *time.Time     `json:"deleted,omitempty"`
	CreatedAt      time.Time      `json:"created"`
	UpdatedAt      time.Time      `json:"updated"`
}

// TableName overrides the table name for Schema.
func (Schema) TableName() string {
	return "schemas"
}

// RequiredFields decodes the required-field list.
func (s *Schema) RequiredFields() []string {
	var required []string
	if len(s.Required) > 0 {
		_ = json.Unmarshal(s.Required, &required)
	}
	return required
}

// PropertyDefinitions decodes the property map. An empty or malformed map
// decodes to nil, which validation treats as "no declared properties".
func (s *Schema) PropertyDefinitions() map[string]SchemaProperty {
	var props map[string]SchemaProperty
	if len(s.Properties) > 0 {
		_ = json.Unmarshal(s.Properties, &props)
	}
	return props
}
