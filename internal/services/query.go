package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Filter value markers for presence tests.
const (
	FilterIsNull    = "IS NULL"
	FilterIsNotNull = "IS NOT NULL"
)

// metadataColumns is the fixed safelist of metadata filter names and the
// typed columns they map to. Names outside this list are silently dropped
// so user input can never reach predicate construction.
var metadataColumns = map[string]string{
	"register":     "register_id",
	"schema":       "schema_id",
	"uuid":         "uuid",
	"created":      "created_at",
	"updated":      "updated_at",
	"owner":        "owner",
	"organisation": "organisation",
	"application":  "application",
}

var jsonPathPattern = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_.\-]*$`)

// SortField orders results by a metadata column or a document path.
type SortField struct {
	Field     string
	Direction string
}

// ObjectQuery is the abstract query the translator turns into storage
// predicates. Metadata holds safelisted column filters, Document holds
// dot-separated paths into the embedded JSON document.
type ObjectQuery struct {
	Limit          int
	Offset         int
	Metadata       map[string]interface{}
	Document       map[string]interface{}
	Search         string
	Sort           []SortField
	Ids            []string
	Uses           string
	IncludeDeleted bool
	Published      bool
}

// Apply translates the query into a conjunction of predicates on db.
func (q *ObjectQuery) Apply(db *gorm.DB) *gorm.DB {
	return q.applyExcluding(db, "")
}

// applyExcluding applies every filter except the one named by exclude.
// The facet engine uses the exclusion to compute disjunctive counts.
func (q *ObjectQuery) applyExcluding(db *gorm.DB, exclude string) *gorm.DB {
	tx := db

	if !q.IncludeDeleted {
		tx = tx.Where("deleted IS NULL")
	}
	if q.Published {
		now := time.Now()
		tx = tx.Where("published IS NOT NULL AND published <= ?", now).
			Where("depublished IS NULL OR depublished > ?", now)
	}

	for field, value := range q.Metadata {
		if field == exclude {
			continue
		}
		column, ok := metadataColumns[field]
		if !ok {
			continue
		}
		tx = applyFieldFilter(tx, column, value)
	}

	for path, value := range q.Document {
		if path == exclude {
			continue
		}
		expr, ok := jsonTextExpr(db, path)
		if !ok {
			continue
		}
		tx = applyFieldFilter(tx, expr, value)
	}

	if q.Search != "" {
		tx = tx.Where(serializedColumn(db, "document")+" LIKE ?", "%"+q.Search+"%")
	}

	if q.Uses != "" {
		tx = tx.Where(serializedColumn(db, "relations")+" LIKE ?", "%"+q.Uses+"%")
	}

	if len(q.Ids) > 0 {
		tx = tx.Where(identifierConditions(db, q.Ids))
	}

	return tx
}

// ApplySort adds ORDER BY clauses for safelisted columns and JSON paths.
func (q *ObjectQuery) ApplySort(db *gorm.DB, tx *gorm.DB) *gorm.DB {
	for _, sort := range q.Sort {
		direction := "ASC"
		if strings.EqualFold(sort.Direction, "desc") {
			direction = "DESC"
		}
		if column, ok := metadataColumns[sort.Field]; ok {
			tx = tx.Order(column + " " + direction)
			continue
		}
		if expr, ok := jsonTextExpr(db, sort.Field); ok {
			tx = tx.Order(expr + " " + direction)
		}
	}
	return tx
}

// ApplyPagination bounds the result set with the caller-supplied page.
func (q *ObjectQuery) ApplyPagination(tx *gorm.DB) *gorm.DB {
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	return tx
}

// applyFieldFilter dispatches on the value shape: presence markers, arrays
// as one-of groups, and scalars as equality. A comma-containing scalar is
// an implicit one-of array.
func applyFieldFilter(tx *gorm.DB, expr string, value interface{}) *gorm.DB {
	switch v := value.(type) {
	case nil:
		return tx.Where(expr + " IS NULL")
	case string:
		if v == FilterIsNull {
			return tx.Where(expr + " IS NULL")
		}
		if v == FilterIsNotNull {
			return tx.Where(expr + " IS NOT NULL")
		}
		if strings.Contains(v, ",") {
			parts := strings.Split(v, ",")
			values := make([]interface{}, 0, len(parts))
			for _, p := range parts {
				values = append(values, strings.TrimSpace(p))
			}
			return applyOneOf(tx, expr, values)
		}
		return tx.Where(expr+" = ?", v)
	case []interface{}:
		return applyOneOf(tx, expr, v)
	case []string:
		values := make([]interface{}, 0, len(v))
		for _, s := range v {
			values = append(values, s)
		}
		return applyOneOf(tx, expr, values)
	default:
		return tx.Where(expr+" = ?", v)
	}
}

// applyOneOf builds an OR-group of equality predicates.
func applyOneOf(tx *gorm.DB, expr string, values []interface{}) *gorm.DB {
	if len(values) == 0 {
		return tx
	}
	conditions := make([]string, 0, len(values))
	for range values {
		conditions = append(conditions, expr+" = ?")
	}
	return tx.Where("("+strings.Join(conditions, " OR ")+")", values...)
}

// jsonTextExpr builds the dialect-specific "extract unquoted value at path"
// expression for a dot-separated document path. Paths containing anything
// outside the sanctioned character set are rejected.
func jsonTextExpr(db *gorm.DB, path string) (string, bool) {
	if !jsonPathPattern.MatchString(path) {
		return "", false
	}
	switch db.Dialector.Name() {
	case "mysql":
		return fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(document, '$.%s'))", path), true
	case "postgres":
		keys := strings.Split(path, ".")
		return fmt.Sprintf("document #>> '{%s}'", strings.Join(keys, ",")), true
	case "sqlserver", "mssql":
		return fmt.Sprintf("JSON_VALUE(document, '$.%s')", path), true
	default:
		return fmt.Sprintf("json_extract(document, '$.%s')", path), true
	}
}

// serializedColumn renders a JSON column as text for substring matching.
func serializedColumn(db *gorm.DB, column string) string {
	switch db.Dialector.Name() {
	case "mysql":
		return fmt.Sprintf("CAST(%s AS CHAR)", column)
	case "postgres":
		return column + "::text"
	default:
		return column
	}
}

// identifierConditions OR-combines a mixed id/uuid/uri list.
func identifierConditions(db *gorm.DB, ids []string) *gorm.DB {
	var numeric []uint64
	var textual []string
	for _, id := range ids {
		if n, err := strconv.ParseUint(id, 10, 64); err == nil {
			numeric = append(numeric, n)
			continue
		}
		textual = append(textual, id)
	}

	cond := db.Session(&gorm.Session{NewDB: true})
	switch {
	case len(numeric) > 0 && len(textual) > 0:
		return cond.Where("id IN ?", numeric).
			Or("uuid IN ?", textual).
			Or("uri IN ?", textual)
	case len(numeric) > 0:
		return cond.Where("id IN ?", numeric)
	default:
		return cond.Where("uuid IN ?", textual).Or("uri IN ?", textual)
	}
}
