package services

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MWest2020/openregister/data"
	"github.com/MWest2020/openregister/internal/config"
	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// FileSchemaURI is the reserved reference for the built-in file schema.
const FileSchemaURI = "urn:openregister:schema:file"

// maxValidationErrors bounds error collection so a pathological document
// cannot produce an unbounded response.
const maxValidationErrors = 100

// ValidationResult is the structured outcome of schema validation.
type ValidationResult struct {
	Valid  bool                  `json:"valid"`
	Errors []types.PropertyError `json:"errors"`
}

// FormatValidator checks a value against a named format.
type FormatValidator func(value interface{}) error

var (
	formatMu sync.RWMutex
	formats  = map[string]FormatValidator{
		"date-time": formatDateTime,
		"date":      formatDate,
		"email":     formatEmail,
		"uuid":      formatUUID,
		"uri":       formatURI,
		"bsn":       formatBSN,
	}
)

// RegisterFormat installs or replaces a named format validator.
func RegisterFormat(name string, validator FormatValidator) {
	formatMu.Lock()
	defer formatMu.Unlock()
	formats[name] = validator
}

func lookupFormat(name string) (FormatValidator, bool) {
	formatMu.RLock()
	defer formatMu.RUnlock()
	v, ok := formats[name]
	return v, ok
}

type validationState struct {
	db     *gorm.DB
	cfg    *config.Config
	errors []types.PropertyError
}

func (s *validationState) addError(property, message string) {
	if len(s.errors) >= maxValidationErrors {
		return
	}
	s.errors = append(s.errors, types.PropertyError{Property: property, Message: message})
}

func (s *validationState) full() bool {
	return len(s.errors) >= maxValidationErrors
}

// ValidateObjectDocument validates a candidate document against a declared
// schema. A schema without properties trivially passes. Traversal into
// nested definitions is bounded by the schema's max depth.
func ValidateObjectDocument(db *gorm.DB, cfg *config.Config, document map[string]interface{}, schema *models.Schema) *ValidationResult {
	properties := schema.PropertyDefinitions()
	if len(properties) == 0 {
		return &ValidationResult{Valid: true, Errors: []types.PropertyError{}}
	}

	maxDepth := schema.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}

	state := &validationState{db: db, cfg: cfg}
	validateObjectShape(state, "", document, properties, schema.RequiredFields(), 0, maxDepth)

	return &ValidationResult{Valid: len(state.errors) == 0, Errors: state.errors}
}

func validateObjectShape(state *validationState, prefix string, document map[string]interface{}, properties map[string]models.SchemaProperty, required []string, depth, maxDepth int) {
	for _, name := range required {
		if state.full() {
			return
		}
		if value, present := document[name]; !present || value == nil {
			state.addError(joinPath(prefix, name), "required property is missing")
		}
	}

	for name, definition := range properties {
		if state.full() {
			return
		}
		value, present := document[name]
		if !present || value == nil {
			continue
		}
		validateProperty(state, joinPath(prefix, name), value, definition, depth, maxDepth)
	}
}

func validateProperty(state *validationState, path string, value interface{}, definition models.SchemaProperty, depth, maxDepth int) {
	if state.full() {
		return
	}

	if definition.Ref != "" {
		validateRef(state, path, value, definition.Ref, depth, maxDepth)
		return
	}

	switch definition.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			state.addError(path, "expected a string")
			return
		}
		validateFormat(state, path, s, definition.Format)

	case "integer":
		n, ok := value.(float64)
		if !ok || n != float64(int64(n)) {
			state.addError(path, "expected an integer")
		}

	case "number":
		if _, ok := value.(float64); !ok {
			state.addError(path, "expected a number")
		}

	case "boolean":
		if _, ok := value.(bool); !ok {
			state.addError(path, "expected a boolean")
		}

	case "array":
		items, ok := value.([]interface{})
		if !ok {
			state.addError(path, "expected an array")
			return
		}
		if definition.Items != nil {
			for i, item := range items {
				validateProperty(state, fmt.Sprintf("%s[%d]", path, i), item, *definition.Items, depth, maxDepth)
			}
		}

	case "object":
		nested, ok := value.(map[string]interface{})
		if !ok {
			state.addError(path, "expected an object")
			return
		}
		if depth+1 >= maxDepth {
			return
		}
		if len(definition.Properties) > 0 {
			validateObjectShape(state, path, nested, definition.Properties, nil, depth+1, maxDepth)
		}

	case "null":
		if value != nil {
			state.addError(path, "expected null")
		}

	case "":
		// untyped property, anything goes
	default:
		state.addError(path, fmt.Sprintf("unknown property type %q", definition.Type))
	}
}

func validateFormat(state *validationState, path, value, format string) {
	if format == "" {
		return
	}
	validator, ok := lookupFormat(format)
	if !ok {
		return
	}
	if err := validator(value); err != nil {
		state.addError(path, err.Error())
	}
}

// validateRef resolves a referenced schema and validates the value against
// it. Resolution failure is a validation error on the property, never a
// panic or a silent pass.
func validateRef(state *validationState, path string, value interface{}, ref string, depth, maxDepth int) {
	if depth+1 >= maxDepth {
		return
	}

	properties, required, err := resolveSchemaRef(state.db, state.cfg, ref)
	if err != nil {
		state.addError(path, fmt.Sprintf("could not resolve schema reference %q: %v", ref, err))
		return
	}

	nested, ok := value.(map[string]interface{})
	if !ok {
		state.addError(path, "expected an object")
		return
	}
	validateObjectShape(state, path, nested, properties, required, depth+1, maxDepth)
}

// resolveSchemaRef resolves same-system schema identifiers, the reserved
// file-schema URI, or, only when explicitly enabled, arbitrary external
// HTTP schema URIs. With the flag off external resolution returns empty
// content so the downstream error surfaces, never remote data.
func resolveSchemaRef(db *gorm.DB, cfg *config.Config, ref string) (map[string]models.SchemaProperty, []string, error) {
	if ref == FileSchemaURI {
		return parseSchemaContent(data.FileSchema)
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if cfg == nil || !cfg.AllowExternalSchemas {
			return nil, nil, fmt.Errorf("external schema resolution is disabled")
		}
		return fetchExternalSchema(ref)
	}

	// Same-system reference: a slug, id or local schema path.
	identifier := ref
	if idx := strings.LastIndex(ref, "/"); idx >= 0 {
		identifier = ref[idx+1:]
	}
	schema, err := FindSchema(db, identifier)
	if err != nil {
		return nil, nil, err
	}
	return schema.PropertyDefinitions(), schema.RequiredFields(), nil
}

func fetchExternalSchema(ref string) (map[string]models.SchemaProperty, []string, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(ref)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("schema fetch returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, err
	}
	return parseSchemaContent(body)
}

func parseSchemaContent(raw []byte) (map[string]models.SchemaProperty, []string, error) {
	var parsed struct {
		Required   []string                         `json:"required"`
		Properties map[string]models.SchemaProperty `json:"properties"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, fmt.Errorf("invalid schema content: %w", err)
	}
	if len(parsed.Properties) == 0 {
		return nil, nil, fmt.Errorf("schema content declares no properties")
	}
	return parsed.Properties, parsed.Required, nil
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func formatDateTime(value interface{}) error {
	s, _ := value.(string)
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return fmt.Errorf("expected an RFC 3339 date-time")
	}
	return nil
}

func formatDate(value interface{}) error {
	s, _ := value.(string)
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return fmt.Errorf("expected a date in YYYY-MM-DD form")
	}
	return nil
}

func formatEmail(value interface{}) error {
	s, _ := value.(string)
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("expected a valid email address")
	}
	return nil
}

func formatUUID(value interface{}) error {
	s, _ := value.(string)
	if _, err := uuid.Parse(s); err != nil {
		return fmt.Errorf("expected a valid UUID")
	}
	return nil
}

func formatURI(value interface{}) error {
	s, _ := value.(string)
	parsed, err := url.Parse(s)
	if err != nil || parsed.Scheme == "" {
		return fmt.Errorf("expected an absolute URI")
	}
	return nil
}

// formatBSN implements the Dutch citizen service number checksum
// (elfproef): sum of digit*weight with the last digit weighted -1 must be
// divisible by 11.
func formatBSN(value interface{}) error {
	s, _ := value.(string)
	if len(s) != 9 {
		return fmt.Errorf("expected a 9-digit BSN")
	}
	sum := 0
	for i, r := range s {
		if r < '0' || r > '9' {
			return fmt.Errorf("expected a 9-digit BSN")
		}
		digit := int(r - '0')
		weight := 9 - i
		if i == 8 {
			weight = -1
		}
		sum += digit * weight
	}
	if sum%11 != 0 {
		return fmt.Errorf("BSN checksum failed")
	}
	return nil
}
