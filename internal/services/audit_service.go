package services

import (
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"time"

	"github.com/MWest2020/openregister/internal/config"
	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/types"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// CreateAuditTrail computes the field-level diff between two object states
// and stores it as an immutable entry. A missing side corrects the action:
// no new state means delete, no old state means create. The actor falls
// back to the System identity; missing authentication is never an error.
func CreateAuditTrail(db *gorm.DB, cfg *config.Config, old, new *models.Object, action string, session *types.Session) (*models.AuditTrail, error) {
	session = session.OrSystem()

	if new == nil && action == models.ActionUpdate {
		action = models.ActionDelete
	}
	if old == nil && action == models.ActionUpdate {
		action = models.ActionCreate
	}

	subject := new
	if subject == nil {
		subject = old
	}
	if subject == nil {
		return nil, fmt.Errorf("audit trail requires at least one object state")
	}

	changed := computeDiff(old, new, action)

	retention := 30
	if cfg != nil && cfg.AuditRetentionDays > 0 {
		retention = cfg.AuditRetentionDays
	}
	now := time.Now()
	expires := now.AddDate(0, 0, retention)

	raw, _ := json.Marshal(changed)

	entry := &models.AuditTrail{
		UUID:       uuid.NewString(),
		ObjectID:   subject.ID,
		ObjectUUID: subject.UUID,
		Register:   subject.Register,
		Schema:     subject.Schema,
		Action:     action,
		Changed:    changed,
		UserID:     session.UserID,
		UserName:   session.UserName,
		Session:    session.SessionID,
		Request:    session.RequestID,
		IPAddress:  session.IPAddress,
		Version:    subject.Version,
		Size:       int64(len(raw)),
		CreatedAt:  now,
		Expires:    &expires,
	}

	if err := db.Create(entry).Error; err != nil {
		return nil, types.NewStorageError("create audit trail", err)
	}
	return entry, nil
}

// computeDiff records {old, new} for every differing field. Delete and
// read actions carry no diff: one side is empty by definition, so there is
// nothing to scan. Update additionally records removed fields as new:null.
func computeDiff(old, new *models.Object, action string) datatypes.JSONMap {
	changed := datatypes.JSONMap{}
	if action == models.ActionDelete || action == models.ActionRead {
		return changed
	}

	var oldMap, newMap map[string]interface{}
	if old != nil {
		oldMap = old.Serialize()
	}
	if new != nil {
		newMap = new.Serialize()
	}

	for key, newValue := range newMap {
		oldValue, existed := oldMap[key]
		if !existed {
			changed[key] = map[string]interface{}{"old": nil, "new": newValue}
			continue
		}
		if !jsonEqual(oldValue, newValue) {
			changed[key] = map[string]interface{}{"old": oldValue, "new": newValue}
		}
	}

	if action == models.ActionUpdate {
		for key, oldValue := range oldMap {
			if _, present := newMap[key]; !present {
				changed[key] = map[string]interface{}{"old": oldValue, "new": nil}
			}
		}
	}

	return changed
}

// jsonEqual compares two dynamically-typed values by their canonical JSON
// form, so 1 and 1.0 read back from different drivers still match.
func jsonEqual(a, b interface{}) bool {
	ra, errA := json.Marshal(a)
	rb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return string(ra) == string(rb)
}

// FindByObjectUntil returns the most-recent-first audit entries for an
// object, constrained by until:
//   - empty: every entry
//   - RFC3339 timestamp: entries created at or after that point
//   - dotted triple: entries labeled with that semantic version
//   - anything else: the entry with that id/uuid plus everything after it
func FindByObjectUntil(db *gorm.DB, objectID uint64, objectUUID string, until string) ([]models.AuditTrail, error) {
	base := db.Model(&models.AuditTrail{}).
		Where("object_id = ? OR object_uuid = ?", objectID, objectUUID).
		Order("created_at DESC").Order("id DESC")

	var entries []models.AuditTrail

	switch {
	case until == "":
		// every entry

	case semverPattern.MatchString(until):
		base = base.Where("version = ?", until)

	default:
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			base = base.Where("created_at >= ?", t)
			break
		}

		anchor, err := findAuditEntry(db, until)
		if err != nil {
			return nil, err
		}
		if anchor == nil {
			return []models.AuditTrail{}, nil
		}
		base = base.Where("id = ? OR created_at > ?", anchor.ID, anchor.CreatedAt)
	}

	if err := base.Find(&entries).Error; err != nil {
		return nil, types.NewStorageError("find audit trails", err)
	}
	return entries, nil
}

func findAuditEntry(db *gorm.DB, identifier string) (*models.AuditTrail, error) {
	var entries []models.AuditTrail
	tx := db.Limit(1)
	if n, err := strconv.ParseUint(identifier, 10, 64); err == nil {
		tx = tx.Where("id = ?", n)
	} else {
		tx = tx.Where("uuid = ?", identifier)
	}
	if err := tx.Find(&entries).Error; err != nil {
		return nil, types.NewStorageError("find audit entry", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// RevertObject reconstructs a prior object state by applying each entry's
// diff in reverse. Entries are iterated most-recent-first and later loop
// writes overwrite earlier ones, so the earliest recorded old value in the
// window wins for a field that changed more than once. Creation entries
// are never unwound: their diffs record nil for every field, and there is
// no state before the object existed to land on. The returned clone is not
// persisted; RestoreObject does that.
func RevertObject(db *gorm.DB, identifier string, until string, overwriteVersion bool) (*models.Object, error) {
	object, err := FindObject(db, identifier)
	if err != nil {
		return nil, err
	}

	entries, err := FindByObjectUntil(db, object.ID, object.UUID, until)
	if err != nil {
		return nil, err
	}
	if until != "" && len(entries) == 0 {
		return nil, fmt.Errorf("no audit entries cover reversion point %q: %w", until, types.ErrNotFound)
	}

	clone := object.Clone()
	for _, entry := range entries {
		if entry.Action == models.ActionCreate {
			continue
		}
		for field, rawChange := range entry.Changed {
			change, ok := rawChange.(map[string]interface{})
			if !ok {
				continue
			}
			clone.SetField(field, change["old"])
		}
	}

	if !overwriteVersion {
		clone.Version = models.BumpPatch(clone.Version)
	}
	return clone, nil
}

// RestoreObject persists a revert clone and emits the reverted event
// instead of a generic update.
func RestoreObject(db *gorm.DB, events *Dispatcher, clone *models.Object, until string, session *types.Session) error {
	session = session.OrSystem()

	var prior models.Object
	if err := db.First(&prior, clone.ID).Error; err != nil {
		return types.NewStorageError("load prior object", err)
	}
	if prior.IsLocked() && prior.Locked.UserID != session.UserID {
		return fmt.Errorf("%w: held by %s", types.ErrLocked, prior.Locked.UserID)
	}

	clone.StripReservedKeys()
	clone.ComputeSize()
	if err := db.Save(clone).Error; err != nil {
		return types.NewStorageError("restore object", err)
	}

	events.Dispatch(ObjectReverted{Old: &prior, New: clone, Until: until, Session: session})
	return nil
}

// RegisterAuditSubscriber wires the audit log onto the dispatcher. The
// store never calls the log directly: diff-and-write happens in reaction
// to lifecycle events, preserving at-least-once, decoupled-failure
// semantics. Failed writes are logged, never surfaced to the mutation.
func RegisterAuditSubscriber(events *Dispatcher, db *gorm.DB, cfg *config.Config) {
	record := func(old, new *models.Object, action string, session *types.Session) {
		if _, err := CreateAuditTrail(db, cfg, old, new, action, session); err != nil {
			log.Printf("audit trail write failed: %v", err)
		}
	}

	events.Subscribe(EventObjectCreated, func(e Event) {
		ev := e.(ObjectCreated)
		record(nil, ev.Object, models.ActionCreate, ev.Session)
	})
	events.Subscribe(EventObjectUpdated, func(e Event) {
		ev := e.(ObjectUpdated)
		record(ev.Old, ev.New, models.ActionUpdate, ev.Session)
	})
	events.Subscribe(EventObjectDeleted, func(e Event) {
		ev := e.(ObjectDeleted)
		record(ev.Object, nil, models.ActionDelete, ev.Session)
	})
	events.Subscribe(EventObjectReverted, func(e Event) {
		ev := e.(ObjectReverted)
		record(ev.Old, ev.New, models.ActionUpdate, ev.Session)
	})
}

// AuditStatistics is the rollup shape returned by GetStatistics.
type AuditStatistics struct {
	Total int64 `json:"total"`
	Size  int64 `json:"size"`
}

// ExcludeCombination omits entries matching a register/schema pair.
type ExcludeCombination struct {
	Register string `json:"register"`
	Schema   string `json:"schema"`
}

// GetStatistics aggregates entry count and byte size with optional
// register/schema filters and an exclusion list. Storage failures degrade
// to a zeroed result so dashboards never break.
func GetStatistics(db *gorm.DB, registerID, schemaID string, exclude []ExcludeCombination) AuditStatistics {
	tx := db.Model(&models.AuditTrail{})
	if registerID != "" {
		tx = tx.Where("register_id = ?", registerID)
	}
	if schemaID != "" {
		tx = tx.Where("schema_id = ?", schemaID)
	}
	for _, combo := range exclude {
		conditions := ""
		args := []interface{}{}
		if combo.Register != "" {
			conditions = "register_id IS NULL OR register_id <> ?"
			args = append(args, combo.Register)
		}
		if combo.Schema != "" {
			if conditions != "" {
				conditions += " OR "
			}
			conditions += "schema_id IS NULL OR schema_id <> ?"
			args = append(args, combo.Schema)
		}
		if conditions != "" {
			tx = tx.Where("("+conditions+")", args...)
		}
	}

	var result struct {
		Total int64
		Size  int64
	}
	err := tx.Select("COUNT(*) AS total, COALESCE(SUM(size), 0) AS size").Scan(&result).Error
	if err != nil {
		log.Printf("audit statistics query failed: %v", err)
		return AuditStatistics{}
	}
	return AuditStatistics{Total: result.Total, Size: result.Size}
}

// ActionChartData holds per-day entry counts grouped by action.
type ActionChartData struct {
	Labels []string           `json:"labels"`
	Series map[string][]int64 `json:"series"`
}

// GetActionChartData groups entries of the trailing window by day and
// action. Failures return a well-formed empty shape.
func GetActionChartData(db *gorm.DB, days int) ActionChartData {
	if days <= 0 {
		days = 30
	}
	from := time.Now().AddDate(0, 0, -days)

	var rows []struct {
		Bucket  string
		Action  string
		Entries int64
	}
	dayExpr := dateBucketExpr(db, "created_at", "day")
	err := db.Model(&models.AuditTrail{}).
		Select(dayExpr+" AS bucket, action, COUNT(*) AS entries").
		Where("created_at >= ?", from).
		Group(dayExpr).Group("action").
		Order("bucket ASC").
		Scan(&rows).Error
	if err != nil {
		log.Printf("audit chart query failed: %v", err)
		return ActionChartData{Labels: []string{}, Series: map[string][]int64{}}
	}

	labelIndex := map[string]int{}
	labels := []string{}
	for _, row := range rows {
		if _, seen := labelIndex[row.Bucket]; !seen {
			labelIndex[row.Bucket] = len(labels)
			labels = append(labels, row.Bucket)
		}
	}

	series := map[string][]int64{}
	for _, action := range []string{models.ActionCreate, models.ActionUpdate, models.ActionDelete, models.ActionRead} {
		series[action] = make([]int64, len(labels))
	}
	for _, row := range rows {
		if _, known := series[row.Action]; !known {
			series[row.Action] = make([]int64, len(labels))
		}
		series[row.Action][labelIndex[row.Bucket]] = row.Entries
	}

	return ActionChartData{Labels: labels, Series: series}
}

// DetailedStatistics is the dashboard rollup shape.
type DetailedStatistics struct {
	Total           int64 `json:"total"`
	Last24Hours     int64 `json:"last24Hours"`
	Last7Days       int64 `json:"last7Days"`
	Last30Days      int64 `json:"last30Days"`
	DistinctObjects int64 `json:"distinctObjects"`
	TotalSize       int64 `json:"totalSize"`
}

// GetDetailedStatistics reports entry totals over fixed windows. Failures
// return the zeroed shape.
func GetDetailedStatistics(db *gorm.DB) DetailedStatistics {
	now := time.Now()
	stats := DetailedStatistics{}

	count := func(tx *gorm.DB) int64 {
		var n int64
		if err := tx.Count(&n).Error; err != nil {
			log.Printf("audit detailed statistics query failed: %v", err)
			return 0
		}
		return n
	}

	stats.Total = count(db.Model(&models.AuditTrail{}))
	stats.Last24Hours = count(db.Model(&models.AuditTrail{}).Where("created_at >= ?", now.Add(-24*time.Hour)))
	stats.Last7Days = count(db.Model(&models.AuditTrail{}).Where("created_at >= ?", now.AddDate(0, 0, -7)))
	stats.Last30Days = count(db.Model(&models.AuditTrail{}).Where("created_at >= ?", now.AddDate(0, 0, -30)))

	var distinct int64
	if err := db.Model(&models.AuditTrail{}).Distinct("object_id").Count(&distinct).Error; err != nil {
		log.Printf("audit detailed statistics query failed: %v", err)
	} else {
		stats.DistinctObjects = distinct
	}

	var size struct{ Size int64 }
	if err := db.Model(&models.AuditTrail{}).Select("COALESCE(SUM(size), 0) AS size").Scan(&size).Error; err != nil {
		log.Printf("audit detailed statistics query failed: %v", err)
	} else {
		stats.TotalSize = size.Size
	}

	return stats
}

// ActionShare is one slice of the action distribution.
type ActionShare struct {
	Action     string  `json:"action"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

// GetActionDistribution reports entry counts per action with percentages.
// Failures return an empty slice.
func GetActionDistribution(db *gorm.DB) []ActionShare {
	var rows []struct {
		Action  string
		Entries int64
	}
	err := db.Model(&models.AuditTrail{}).
		Select("action, COUNT(*) AS entries").
		Group("action").
		Order("entries DESC").
		Scan(&rows).Error
	if err != nil {
		log.Printf("audit action distribution query failed: %v", err)
		return []ActionShare{}
	}

	var total int64
	for _, row := range rows {
		total += row.Entries
	}

	shares := make([]ActionShare, 0, len(rows))
	for _, row := range rows {
		share := ActionShare{Action: row.Action, Count: row.Entries}
		if total > 0 {
			share.Percentage = float64(row.Entries) / float64(total) * 100
		}
		shares = append(shares, share)
	}
	return shares
}

// ActiveObject is one row of the most-active ranking.
type ActiveObject struct {
	ObjectID   uint64 `json:"objectId"`
	ObjectUUID string `json:"objectUuid"`
	Count      int64  `json:"count"`
}

// GetMostActiveObjects ranks objects by audit entry count. Failures return
// an empty slice.
func GetMostActiveObjects(db *gorm.DB, limit int) []ActiveObject {
	if limit <= 0 {
		limit = 10
	}
	var rows []struct {
		ObjectID   uint64
		ObjectUUID string
		Entries    int64
	}
	err := db.Model(&models.AuditTrail{}).
		Select("object_id, object_uuid, COUNT(*) AS entries").
		Group("object_id").Group("object_uuid").
		Order("entries DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		log.Printf("audit most-active query failed: %v", err)
		return []ActiveObject{}
	}

	active := make([]ActiveObject, 0, len(rows))
	for _, row := range rows {
		active = append(active, ActiveObject{ObjectID: row.ObjectID, ObjectUUID: row.ObjectUUID, Count: row.Entries})
	}
	return active
}

// ClearLogs removes every entry whose expiration has passed and reports
// whether any row was removed. This is the one maintenance operation that
// propagates storage failures: it runs unattended and its scheduler owns
// the retry policy.
func ClearLogs(db *gorm.DB) (bool, error) {
	result := db.Where("expires IS NOT NULL AND expires < ?", time.Now()).
		Delete(&models.AuditTrail{})
	if result.Error != nil {
		log.Printf("audit log expiry failed: %v", result.Error)
		return false, types.NewStorageError("clear audit logs", result.Error)
	}
	return result.RowsAffected > 0, nil
}
