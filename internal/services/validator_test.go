package services

import (
	"fmt"
	"testing"

	"github.com/MWest2020/openregister/internal/config"
	"github.com/MWest2020/openregister/internal/models"
	"gorm.io/gorm"
)

func buildSchema(t *testing.T, required []string, properties map[string]models.SchemaProperty) *models.Schema {
	return &models.Schema{
		Title:      "Test",
		Required:   mustJSON(t, required),
		Properties: mustJSON(t, properties),
		MaxDepth:   2,
	}
}

func validate(db *gorm.DB, document map[string]interface{}, schema *models.Schema) *ValidationResult {
	return ValidateObjectDocument(db, &config.Config{}, document, schema)
}

// TestValidateNoProperties tests that a schema without properties passes
// everything
func TestValidateNoProperties(t *testing.T) {
	db := setupTestDB(t)
	schema := &models.Schema{Title: "Open"}

	result := validate(db, map[string]interface{}{"anything": "goes"}, schema)
	if !result.Valid {
		t.Errorf("Expected trivially valid, got %v", result.Errors)
	}
}

// TestValidateRequired tests missing and null required properties
func TestValidateRequired(t *testing.T) {
	db := setupTestDB(t)
	schema := buildSchema(t, []string{"title"}, map[string]models.SchemaProperty{
		"title": {Type: "string"},
	})

	result := validate(db, map[string]interface{}{}, schema)
	if result.Valid {
		t.Fatal("Expected missing required property to fail")
	}
	if result.Errors[0].Property != "title" {
		t.Errorf("Expected error on title, got %s", result.Errors[0].Property)
	}

	// Explicit null counts as missing
	result = validate(db, map[string]interface{}{"title": nil}, schema)
	if result.Valid {
		t.Error("Expected null required property to fail")
	}
}

// TestValidateTypes tests the primitive type checks
func TestValidateTypes(t *testing.T) {
	db := setupTestDB(t)
	schema := buildSchema(t, nil, map[string]models.SchemaProperty{
		"title": {Type: "string"},
		"pages": {Type: "integer"},
		"score": {Type: "number"},
		"draft": {Type: "boolean"},
		"tags":  {Type: "array", Items: &models.SchemaProperty{Type: "string"}},
	})

	good := map[string]interface{}{
		"title": "Report",
		"pages": float64(12),
		"score": 4.5,
		"draft": true,
		"tags":  []interface{}{"a", "b"},
	}
	if result := validate(db, good, schema); !result.Valid {
		t.Errorf("Expected valid document, got %v", result.Errors)
	}

	bad := map[string]interface{}{
		"title": 42,
		"pages": 1.5,
		"score": "high",
		"draft": "yes",
		"tags":  []interface{}{"a", 1},
	}
	result := validate(db, bad, schema)
	if result.Valid {
		t.Fatal("Expected invalid document")
	}
	if len(result.Errors) != 5 {
		t.Errorf("Expected 5 errors, got %d: %v", len(result.Errors), result.Errors)
	}
}

// TestValidateFormats tests the built-in string formats
func TestValidateFormats(t *testing.T) {
	db := setupTestDB(t)

	cases := []struct {
		format string
		good   string
		bad    string
	}{
		{"date-time", "2026-08-30T12:00:00Z", "not-a-timestamp"},
		{"date", "2026-08-30", "30/08/2026"},
		{"email", "alice@example.org", "alice-at-example"},
		{"uuid", "7b1d6e2a-9f1c-4a52-8f37-2f9c1b6a7e55", "not-a-uuid"},
		{"uri", "https://example.org/x", "no scheme here"},
		{"bsn", "123456782", "123456789"},
	}

	for _, c := range cases {
		schema := buildSchema(t, nil, map[string]models.SchemaProperty{
			"value": {Type: "string", Format: c.format},
		})
		if result := validate(db, map[string]interface{}{"value": c.good}, schema); !result.Valid {
			t.Errorf("Format %s: expected %q to pass, got %v", c.format, c.good, result.Errors)
		}
		if result := validate(db, map[string]interface{}{"value": c.bad}, schema); result.Valid {
			t.Errorf("Format %s: expected %q to fail", c.format, c.bad)
		}
	}
}

// TestValidateUnknownFormat tests that unregistered formats are ignored
func TestValidateUnknownFormat(t *testing.T) {
	db := setupTestDB(t)
	schema := buildSchema(t, nil, map[string]models.SchemaProperty{
		"value": {Type: "string", Format: "postal-pigeon"},
	})
	if result := validate(db, map[string]interface{}{"value": "anything"}, schema); !result.Valid {
		t.Errorf("Expected unknown format to be ignored, got %v", result.Errors)
	}
}

// TestRegisterFormat tests custom format installation
func TestRegisterFormat(t *testing.T) {
	db := setupTestDB(t)
	RegisterFormat("upper", func(value interface{}) error {
		s, _ := value.(string)
		for _, r := range s {
			if r < 'A' || r > 'Z' {
				return fmt.Errorf("expected uppercase letters")
			}
		}
		return nil
	})

	schema := buildSchema(t, nil, map[string]models.SchemaProperty{
		"code": {Type: "string", Format: "upper"},
	})
	if result := validate(db, map[string]interface{}{"code": "ABC"}, schema); !result.Valid {
		t.Errorf("Expected ABC to pass, got %v", result.Errors)
	}
	if result := validate(db, map[string]interface{}{"code": "abc"}, schema); result.Valid {
		t.Error("Expected abc to fail the custom format")
	}
}

// TestValidateNestedDepth tests that traversal stops at the schema's max
// depth
func TestValidateNestedDepth(t *testing.T) {
	db := setupTestDB(t)
	schema := buildSchema(t, nil, map[string]models.SchemaProperty{
		"author": {Type: "object", Properties: map[string]models.SchemaProperty{
			"name": {Type: "string"},
			"address": {Type: "object", Properties: map[string]models.SchemaProperty{
				"city": {Type: "string"},
			}},
		}},
	})

	document := map[string]interface{}{
		"author": map[string]interface{}{
			"name": 42, // depth 1, checked
			"address": map[string]interface{}{
				"city": 42, // depth 2, beyond max depth, unchecked
			},
		},
	}
	result := validate(db, document, schema)
	if result.Valid {
		t.Fatal("Expected the depth-1 violation to be reported")
	}
	if len(result.Errors) != 1 {
		t.Errorf("Expected exactly 1 error, got %d: %v", len(result.Errors), result.Errors)
	}
	if result.Errors[0].Property != "author.name" {
		t.Errorf("Expected error on author.name, got %s", result.Errors[0].Property)
	}
}

// TestValidateErrorCap tests the bound on collected errors
func TestValidateErrorCap(t *testing.T) {
	db := setupTestDB(t)

	required := make([]string, 150)
	for i := range required {
		required[i] = fmt.Sprintf("field%d", i)
	}
	schema := buildSchema(t, required, map[string]models.SchemaProperty{
		"field0": {Type: "string"},
	})

	result := validate(db, map[string]interface{}{}, schema)
	if result.Valid {
		t.Fatal("Expected invalid document")
	}
	if len(result.Errors) != maxValidationErrors {
		t.Errorf("Expected error list capped at %d, got %d", maxValidationErrors, len(result.Errors))
	}
}

// TestValidateInternalRef tests resolution of same-system schema references
func TestValidateInternalRef(t *testing.T) {
	db := setupTestDB(t)

	person := &models.Schema{
		Title:    "Person",
		Required: mustJSON(t, []string{"name"}),
		Properties: mustJSON(t, map[string]models.SchemaProperty{
			"name": {Type: "string"},
		}),
	}
	if err := CreateSchema(db, person); err != nil {
		t.Fatalf("Failed to create referenced schema: %v", err)
	}

	schema := &models.Schema{
		Title:    "Publication",
		MaxDepth: 3,
		Properties: mustJSON(t, map[string]models.SchemaProperty{
			"author": {Ref: "person"},
		}),
	}

	good := map[string]interface{}{"author": map[string]interface{}{"name": "Alice"}}
	if result := validate(db, good, schema); !result.Valid {
		t.Errorf("Expected valid referenced object, got %v", result.Errors)
	}

	bad := map[string]interface{}{"author": map[string]interface{}{}}
	if result := validate(db, bad, schema); result.Valid {
		t.Error("Expected missing referenced required property to fail")
	}

	dangling := &models.Schema{
		Title: "Broken",
		Properties: mustJSON(t, map[string]models.SchemaProperty{
			"author": {Ref: "no-such-schema"},
		}),
	}
	if result := validate(db, good, dangling); result.Valid {
		t.Error("Expected unresolvable reference to fail the property")
	}
}

// TestValidateFileSchemaRef tests the reserved built-in file schema
func TestValidateFileSchemaRef(t *testing.T) {
	db := setupTestDB(t)
	schema := &models.Schema{
		Title:    "Report",
		MaxDepth: 3,
		Properties: mustJSON(t, map[string]models.SchemaProperty{
			"attachment": {Ref: FileSchemaURI},
		}),
	}

	good := map[string]interface{}{
		"attachment": map[string]interface{}{"name": "report.pdf", "size": float64(1024)},
	}
	if result := validate(db, good, schema); !result.Valid {
		t.Errorf("Expected valid file reference, got %v", result.Errors)
	}

	bad := map[string]interface{}{
		"attachment": map[string]interface{}{"size": float64(1024)},
	}
	if result := validate(db, bad, schema); result.Valid {
		t.Error("Expected missing file name to fail")
	}
}

// TestExternalRefGated tests that external resolution fails closed
func TestExternalRefGated(t *testing.T) {
	db := setupTestDB(t)
	schema := &models.Schema{
		Title:    "Linked",
		MaxDepth: 3,
		Properties: mustJSON(t, map[string]models.SchemaProperty{
			"external": {Ref: "https://schemas.example.org/thing.json"},
		}),
	}

	document := map[string]interface{}{"external": map[string]interface{}{"a": "b"}}
	result := validate(db, document, schema)
	if result.Valid {
		t.Fatal("Expected gated external reference to fail")
	}
	if result.Errors[0].Property != "external" {
		t.Errorf("Expected error on external, got %s", result.Errors[0].Property)
	}
}
