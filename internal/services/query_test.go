package services

import (
	"testing"
	"time"

	"github.com/MWest2020/openregister/internal/models"
	"gorm.io/gorm"
)

func queryObjects(t *testing.T, db *gorm.DB, query *ObjectQuery) []models.Object {
	objects, err := FindAllObjects(db, query)
	if err != nil {
		t.Fatalf("Failed to run query: %v", err)
	}
	return objects
}

// TestQueryMetadataFilter tests safelisted metadata column filters
func TestQueryMetadataFilter(t *testing.T) {
	db := setupTestDB(t)
	seedObject(t, db, "publications", "report", map[string]interface{}{"status": "draft"})
	seedObject(t, db, "archive", "report", map[string]interface{}{"status": "draft"})

	query := &ObjectQuery{Metadata: map[string]interface{}{"register": "publications"}}
	objects := queryObjects(t, db, query)
	if len(objects) != 1 {
		t.Fatalf("Expected 1 object, got %d", len(objects))
	}
	if objects[0].Register != "publications" {
		t.Errorf("Expected register publications, got %s", objects[0].Register)
	}
}

// TestQueryDocumentFilter tests JSON path filters into the document
func TestQueryDocumentFilter(t *testing.T) {
	db := setupTestDB(t)
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "draft"})
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "active"})
	seedObject(t, db, "r", "s", map[string]interface{}{
		"status": "active",
		"author": map[string]interface{}{"city": "Amsterdam"},
	})

	query := &ObjectQuery{Document: map[string]interface{}{"status": "active"}}
	if got := len(queryObjects(t, db, query)); got != 2 {
		t.Errorf("Expected 2 active objects, got %d", got)
	}

	// Dot-separated paths reach nested keys
	query = &ObjectQuery{Document: map[string]interface{}{"author.city": "Amsterdam"}}
	if got := len(queryObjects(t, db, query)); got != 1 {
		t.Errorf("Expected 1 Amsterdam object, got %d", got)
	}
}

// TestQueryOneOf tests comma lists and value arrays as OR-groups
func TestQueryOneOf(t *testing.T) {
	db := setupTestDB(t)
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "draft"})
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "active"})
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "archived"})

	query := &ObjectQuery{Document: map[string]interface{}{"status": "draft,active"}}
	if got := len(queryObjects(t, db, query)); got != 2 {
		t.Errorf("Expected 2 objects for comma list, got %d", got)
	}

	query = &ObjectQuery{Document: map[string]interface{}{"status": []string{"draft", "archived"}}}
	if got := len(queryObjects(t, db, query)); got != 2 {
		t.Errorf("Expected 2 objects for value array, got %d", got)
	}
}

// TestQueryPresenceMarkers tests IS NULL / IS NOT NULL filter values
func TestQueryPresenceMarkers(t *testing.T) {
	db := setupTestDB(t)
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "draft"})
	seedObject(t, db, "r", "s", map[string]interface{}{"other": true})

	query := &ObjectQuery{Document: map[string]interface{}{"status": FilterIsNull}}
	if got := len(queryObjects(t, db, query)); got != 1 {
		t.Errorf("Expected 1 object without status, got %d", got)
	}

	query = &ObjectQuery{Document: map[string]interface{}{"status": FilterIsNotNull}}
	if got := len(queryObjects(t, db, query)); got != 1 {
		t.Errorf("Expected 1 object with status, got %d", got)
	}
}

// TestQueryDropsUnsafeNames tests that names outside the safelist and the
// path grammar never become predicates
func TestQueryDropsUnsafeNames(t *testing.T) {
	db := setupTestDB(t)
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "draft"})
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "active"})

	query := &ObjectQuery{
		Metadata: map[string]interface{}{"locked": "anything"},
		Document: map[string]interface{}{"status'; DROP TABLE objects; --": "x"},
	}
	if got := len(queryObjects(t, db, query)); got != 2 {
		t.Errorf("Expected unsafe filters to be dropped, got %d objects", got)
	}

	var count int64
	if err := db.Model(&models.Object{}).Count(&count).Error; err != nil {
		t.Fatalf("Objects table is gone: %v", err)
	}
}

// TestQuerySoftDeleteVisibility tests the deleted-row filter and its opt-out
func TestQuerySoftDeleteVisibility(t *testing.T) {
	db := setupTestDB(t)
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "live"})
	gone := seedObject(t, db, "r", "s", map[string]interface{}{"status": "gone"})
	gone.MarkDeleted(testSession("alice"), "cleanup", 30)
	if err := db.Model(gone).Update("deleted", gone.Deleted).Error; err != nil {
		t.Fatalf("Failed to mark deleted: %v", err)
	}

	if got := len(queryObjects(t, db, &ObjectQuery{})); got != 1 {
		t.Errorf("Expected deleted object to be hidden, got %d", got)
	}
	if got := len(queryObjects(t, db, &ObjectQuery{IncludeDeleted: true})); got != 2 {
		t.Errorf("Expected deleted object to be visible, got %d", got)
	}
}

// TestQueryPublicationWindow tests the published filter
func TestQueryPublicationWindow(t *testing.T) {
	db := setupTestDB(t)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	visible := seedObject(t, db, "r", "s", map[string]interface{}{"status": "visible"})
	db.Model(visible).Update("published", past)

	depublished := seedObject(t, db, "r", "s", map[string]interface{}{"status": "withdrawn"})
	db.Model(depublished).Updates(map[string]interface{}{"published": past, "depublished": past})

	pending := seedObject(t, db, "r", "s", map[string]interface{}{"status": "pending"})
	db.Model(pending).Update("published", future)

	seedObject(t, db, "r", "s", map[string]interface{}{"status": "never"})

	objects := queryObjects(t, db, &ObjectQuery{Published: true})
	if len(objects) != 1 {
		t.Fatalf("Expected 1 published object, got %d", len(objects))
	}
	if objects[0].Document["status"] != "visible" {
		t.Errorf("Expected the visible object, got %v", objects[0].Document["status"])
	}
}

// TestQueryIdentifierList tests the mixed id/uuid/uri batch filter
func TestQueryIdentifierList(t *testing.T) {
	db := setupTestDB(t)
	first := seedObject(t, db, "r", "s", map[string]interface{}{"n": "one"})
	second := seedObject(t, db, "r", "s", map[string]interface{}{"n": "two"})
	seedObject(t, db, "r", "s", map[string]interface{}{"n": "three"})

	query := &ObjectQuery{Ids: []string{"1", second.UUID}}
	objects := queryObjects(t, db, query)
	if len(objects) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(objects))
	}
	found := map[uint64]bool{}
	for _, o := range objects {
		found[o.ID] = true
	}
	if !found[first.ID] || !found[second.ID] {
		t.Errorf("Expected ids %d and %d, got %v", first.ID, second.ID, found)
	}
}

// TestQuerySortAndPagination tests ordering and paging together
func TestQuerySortAndPagination(t *testing.T) {
	db := setupTestDB(t)
	seedObject(t, db, "r", "s", map[string]interface{}{"rank": "b"})
	seedObject(t, db, "r", "s", map[string]interface{}{"rank": "c"})
	seedObject(t, db, "r", "s", map[string]interface{}{"rank": "a"})

	query := &ObjectQuery{
		Sort:   []SortField{{Field: "rank", Direction: "desc"}},
		Limit:  2,
		Offset: 1,
	}
	objects := queryObjects(t, db, query)
	if len(objects) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(objects))
	}
	if objects[0].Document["rank"] != "b" || objects[1].Document["rank"] != "a" {
		t.Errorf("Expected [b a], got [%v %v]", objects[0].Document["rank"], objects[1].Document["rank"])
	}
}

// TestCountMatchesFind tests that count and find share filter semantics
func TestCountMatchesFind(t *testing.T) {
	db := setupTestDB(t)
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "active"})
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "active"})
	seedObject(t, db, "r", "s", map[string]interface{}{"status": "draft"})

	query := &ObjectQuery{Document: map[string]interface{}{"status": "active"}, Limit: 1}
	objects := queryObjects(t, db, query)
	count, err := CountAllObjects(db, query)
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}

	if len(objects) != 1 {
		t.Errorf("Expected pagination to cap find at 1, got %d", len(objects))
	}
	if count != 2 {
		t.Errorf("Expected count to ignore pagination, got %d", count)
	}
}

// TestQuerySearch tests the serialized-document substring search
func TestQuerySearch(t *testing.T) {
	db := setupTestDB(t)
	seedObject(t, db, "r", "s", map[string]interface{}{"title": "Annual report 2026"})
	seedObject(t, db, "r", "s", map[string]interface{}{"title": "Meeting notes"})

	query := &ObjectQuery{Search: "Annual"}
	if got := len(queryObjects(t, db, query)); got != 1 {
		t.Errorf("Expected 1 search hit, got %d", got)
	}
}
