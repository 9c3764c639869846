package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MWest2020/openregister/internal/types"
	"gorm.io/datatypes"
)

// Reserved document keys. These are presentation fields synthesized on
// read; they must never be persisted inside the document itself.
const (
	ReservedSelfKey = "@self"
	ReservedIDKey   = "id"
)

// DefaultLockDuration is the advisory lock lifetime when the caller does
// not supply one.
const DefaultLockDuration = 3600 * time.Second

// Object is a schema-validated document stored in a register.
type Object struct {
	ID            uint64             `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          string             `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	URI           string             `gorm:"size:255;index" json:"uri"`
	Version       string             `gorm:"size:255;not null;default:'0.0.1'" json:"version"`
	Register      string             `gorm:"column:register_id;size:255;index;not null" json:"register"`
	Schema        string             `gorm:"column:schema_id;size:255;index;not null" json:"schema"`
	SchemaVersion string             `gorm:"size:255" json:"schemaVersion"`
	Document      datatypes.JSONMap  `gorm:"type:json" json:"document"`
	Relations     datatypes.JSONMap  `gorm:"type:json" json:"relations"`
	Locked        *ObjectLock        `gorm:"type:json" json:"locked,omitempty"`
	Deleted       *ObjectDeletion    `gorm:"type:json" json:"deleted,omitempty"`
	Published     *time.Time         `json:"published,omitempty"`
	Depublished   *time.Time         `json:"depublished,omitempty"`
	Owner         string             `gorm:"size:255;index" json:"owner"`
	Organisation  string             `gorm:"size:255;index" json:"organisation"`
	Application   string             `gorm:"size:255;index" json:"application"`
	Size          int64              `json:"size"`
	CreatedAt     time.Time          `json:"created"`
	UpdatedAt     time.Time          `json:"updated"`
}

// TableName overrides the table name for Object.
func (Object) TableName() string {
	return "objects"
}

// StripReservedKeys removes the computed presentation keys from the
// document before persistence.
func (o *Object) StripReservedKeys() {
	if o.Document == nil {
		return
	}
	delete(o.Document, ReservedSelfKey)
	delete(o.Document, ReservedIDKey)
}

// ComputeSize records the byte size of the serialized document.
func (o *Object) ComputeSize() {
	raw, err := json.Marshal(o.Document)
	if err != nil {
		o.Size = 0
		return
	}
	o.Size = int64(len(raw))
}

// IsDeleted reports whether the object carries a soft-delete marker.
func (o *Object) IsDeleted() bool {
	return o.Deleted != nil
}

// IsLocked reports whether a non-expired lock record is present.
// Expiration is evaluated lazily; there is no background sweep.
func (o *Object) IsLocked() bool {
	return o.Locked != nil && time.Now().Before(o.Locked.Expiration)
}

// Lock attaches or extends an advisory lock. Re-locking by the current
// holder extends the expiration but keeps the original creation time. A
// lock held by another actor that has not yet expired rejects the attempt.
func (o *Object) Lock(session *types.Session, process string, duration time.Duration) error {
	session = session.OrSystem()
	if duration <= 0 {
		duration = DefaultLockDuration
	}
	now := time.Now()

	if o.Locked != nil && now.Before(o.Locked.Expiration) {
		if o.Locked.UserID != session.UserID {
			return fmt.Errorf("%w: held by %s", types.ErrLocked, o.Locked.UserID)
		}
		o.Locked.Duration = int64(duration.Seconds())
		o.Locked.Expiration = now.Add(duration)
		if process != "" {
			o.Locked.Process = process
		}
		return nil
	}

	o.Locked = &ObjectLock{
		UserID:     session.UserID,
		UserName:   session.UserName,
		Process:    process,
		Created:    now,
		Duration:   int64(duration.Seconds()),
		Expiration: now.Add(duration),
	}
	return nil
}

// Unlock clears the lock. Unlocking an unlocked object succeeds; unlocking
// a lock held by a different, non-expired actor is rejected.
func (o *Object) Unlock(session *types.Session) error {
	if o.Locked == nil {
		return nil
	}
	session = session.OrSystem()
	if time.Now().Before(o.Locked.Expiration) && o.Locked.UserID != session.UserID {
		return fmt.Errorf("%w: held by %s", types.ErrLocked, o.Locked.UserID)
	}
	o.Locked = nil
	return nil
}

// MarkDeleted sets the soft-delete record with a retention-driven purge
// date. The row itself is only removed by an external purge job.
func (o *Object) MarkDeleted(session *types.Session, reason string, retentionDays int) {
	session = session.OrSystem()
	now := time.Now()
	purge := now.AddDate(0, 0, retentionDays)
	o.Deleted = &ObjectDeletion{
		Deleted:       now,
		DeletedBy:     session.UserID,
		Reason:        reason,
		RetentionDays: retentionDays,
		PurgeDate:     &purge,
	}
}

// Serialize produces the flat field map that the audit log diffs. Document
// keys sit at the top level and shadow same-named metadata fields, matching
// how diffs and reverts address fields.
func (o *Object) Serialize() map[string]interface{} {
	out := map[string]interface{}{
		"uri":           o.URI,
		"version":       o.Version,
		"register":      o.Register,
		"schema":        o.Schema,
		"schemaVersion": o.SchemaVersion,
		"owner":         o.Owner,
		"organisation":  o.Organisation,
		"application":   o.Application,
	}
	if o.Published != nil {
		out["published"] = o.Published.Format(time.RFC3339)
	}
	if o.Depublished != nil {
		out["depublished"] = o.Depublished.Format(time.RFC3339)
	}
	for key, value := range o.Document {
		out[key] = value
	}
	return out
}

// Clone returns a deep copy of the object, detached from any gorm state.
func (o *Object) Clone() *Object {
	clone := *o
	clone.Document = cloneJSONMap(o.Document)
	clone.Relations = cloneJSONMap(o.Relations)
	if o.Locked != nil {
		locked := *o.Locked
		clone.Locked = &locked
	}
	if o.Deleted != nil {
		deleted := *o.Deleted
		clone.Deleted = &deleted
	}
	return &clone
}

// objectFieldSetters maps serialized metadata field names to explicit
// setters so that reversion never depends on runtime introspection.
var objectFieldSetters = map[string]func(*Object, interface{}){
	"uri":           func(o *Object, v interface{}) { o.URI = asString(v) },
	"version":       func(o *Object, v interface{}) { o.Version = asString(v) },
	"register":      func(o *Object, v interface{}) { o.Register = asString(v) },
	"schema":        func(o *Object, v interface{}) { o.Schema = asString(v) },
	"schemaVersion": func(o *Object, v interface{}) { o.SchemaVersion = asString(v) },
	"owner":         func(o *Object, v interface{}) { o.Owner = asString(v) },
	"organisation":  func(o *Object, v interface{}) { o.Organisation = asString(v) },
	"application":   func(o *Object, v interface{}) { o.Application = asString(v) },
	"published":     func(o *Object, v interface{}) { o.Published = asTime(v) },
	"depublished":   func(o *Object, v interface{}) { o.Depublished = asTime(v) },
}

// SetField writes a serialized field back onto the object. Document keys
// take priority over metadata names, mirroring Serialize. A nil value
// removes the document key. Unknown metadata is a silent no-op; id and uuid
// are immutable by design of the setter table.
func (o *Object) SetField(name string, value interface{}) {
	if _, isDoc := o.Document[name]; isDoc {
		o.setDocumentField(name, value)
		return
	}
	if setter, ok := objectFieldSetters[name]; ok {
		setter(o, value)
		return
	}
	o.setDocumentField(name, value)
}

func (o *Object) setDocumentField(name string, value interface{}) {
	if o.Document == nil {
		o.Document = datatypes.JSONMap{}
	}
	if value == nil {
		delete(o.Document, name)
		return
	}
	o.Document[name] = value
}

func cloneJSONMap(in datatypes.JSONMap) datatypes.JSONMap {
	if in == nil {
		return nil
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return datatypes.JSONMap{}
	}
	out := datatypes.JSONMap{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return datatypes.JSONMap{}
	}
	return out
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asTime(v interface{}) *time.Time {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
