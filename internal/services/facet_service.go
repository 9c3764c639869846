package services

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/MWest2020/openregister/internal/models"
	"github.com/MWest2020/openregister/internal/types"
	"gorm.io/gorm"
)

// Facet kinds.
const (
	FacetTerms         = "terms"
	FacetDateHistogram = "date_histogram"
	FacetRange         = "range"
)

// FacetRequest asks for one aggregation over one field. Fields on the
// metadata safelist aggregate over typed columns; any other name is a
// path into the document.
type FacetRequest struct {
	Type     string       `json:"type"`
	Interval string       `json:"interval,omitempty"`
	Ranges   []RangeBound `json:"ranges,omitempty"`
}

// RangeBound is one caller-supplied numeric bucket; either bound may be
// omitted.
type RangeBound struct {
	From *float64 `json:"from,omitempty"`
	To   *float64 `json:"to,omitempty"`
}

// FacetBucket is one aggregation bucket.
type FacetBucket struct {
	Key     interface{} `json:"key"`
	Results int64       `json:"results"`
}

// Facet is the uniform output shape shared by both aggregators.
type Facet struct {
	Type    string        `json:"type"`
	Buckets []FacetBucket `json:"buckets"`
}

// GetFacets computes the requested facets against the same row set as the
// primary search, with disjunctive semantics: each facet is computed as if
// its own field's filter were not applied while every other filter still
// constrains the rows.
func GetFacets(db *gorm.DB, query *ObjectQuery, requests map[string]FacetRequest) (map[string]Facet, error) {
	results := make(map[string]Facet, len(requests))

	for field, request := range requests {
		expr, ok := facetExpr(db, field)
		if !ok {
			continue
		}
		base := query.applyExcluding(db.Model(&models.Object{}), field)

		var facet Facet
		var err error
		switch request.Type {
		case FacetDateHistogram:
			facet, err = dateHistogramFacet(db, base, expr, request.Interval)
		case FacetRange:
			facet, err = rangeFacet(db, base, expr, request.Ranges)
		default:
			facet, err = termsFacet(base, expr)
		}
		if err != nil {
			return nil, err
		}
		results[field] = facet
	}

	return results, nil
}

// facetExpr resolves a facet field to a column or JSON extraction.
func facetExpr(db *gorm.DB, field string) (string, bool) {
	if column, ok := metadataColumns[field]; ok {
		return column, true
	}
	return jsonTextExpr(db, field)
}

// termsFacet groups by distinct value ordered by count descending.
// Null and empty-string keys never form buckets.
func termsFacet(base *gorm.DB, expr string) (Facet, error) {
	var rows []struct {
		BucketKey string
		Results   int64
	}
	err := base.
		Select(expr+" AS bucket_key, COUNT(*) AS results").
		Where(expr+" IS NOT NULL AND "+expr+" != ''").
		Group(expr).
		Order("results DESC").
		Scan(&rows).Error
	if err != nil {
		return Facet{}, types.NewStorageError("terms facet", err)
	}

	buckets := make([]FacetBucket, 0, len(rows))
	for _, row := range rows {
		buckets = append(buckets, FacetBucket{Key: row.BucketKey, Results: row.Results})
	}
	return Facet{Type: FacetTerms, Buckets: buckets}, nil
}

// dateHistogramFacet buckets by truncated timestamp, ordered by bucket key
// ascending. Weeks use the ISO week number; an unknown interval falls back
// to month.
func dateHistogramFacet(db *gorm.DB, base *gorm.DB, expr, interval string) (Facet, error) {
	switch interval {
	case "day", "week", "month", "year":
	default:
		interval = "month"
	}
	bucket := dateBucketExpr(db, expr, interval)

	var rows []struct {
		BucketKey string
		Results   int64
	}
	err := base.
		Select(bucket+" AS bucket_key, COUNT(*) AS results").
		Where(expr + " IS NOT NULL").
		Group(bucket).
		Order("bucket_key ASC").
		Scan(&rows).Error
	if err != nil {
		return Facet{}, types.NewStorageError("date histogram facet", err)
	}

	buckets := make([]FacetBucket, 0, len(rows))
	for _, row := range rows {
		buckets = append(buckets, FacetBucket{Key: row.BucketKey, Results: row.Results})
	}
	return Facet{Type: FacetDateHistogram, Buckets: buckets}, nil
}

// rangeFacet counts rows in each caller-supplied half-open interval
// (from inclusive, to exclusive).
func rangeFacet(db *gorm.DB, base *gorm.DB, expr string, ranges []RangeBound) (Facet, error) {
	numeric := numericExpr(db, expr)
	buckets := make([]FacetBucket, 0, len(ranges))

	for _, r := range ranges {
		tx := base.Session(&gorm.Session{})
		switch {
		case r.From != nil && r.To != nil:
			tx = tx.Where(numeric+" >= ? AND "+numeric+" < ?", *r.From, *r.To)
		case r.From != nil:
			tx = tx.Where(numeric+" >= ?", *r.From)
		case r.To != nil:
			tx = tx.Where(numeric+" < ?", *r.To)
		}

		var count int64
		if err := tx.Count(&count).Error; err != nil {
			return Facet{}, types.NewStorageError("range facet", err)
		}
		buckets = append(buckets, FacetBucket{Key: rangeLabel(r), Results: count})
	}

	return Facet{Type: FacetRange, Buckets: buckets}, nil
}

func rangeLabel(r RangeBound) string {
	format := func(f float64) string {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	switch {
	case r.From != nil && r.To != nil:
		return format(*r.From) + "-" + format(*r.To)
	case r.From != nil:
		return format(*r.From) + "+"
	case r.To != nil:
		return "0-" + format(*r.To)
	default:
		return "all"
	}
}

// dateBucketExpr truncates a timestamp expression to the interval
// granularity per dialect.
func dateBucketExpr(db *gorm.DB, expr, interval string) string {
	switch db.Dialector.Name() {
	case "mysql":
		formats := map[string]string{
			"day":   "%Y-%m-%d",
			"week":  "%x-W%v",
			"month": "%Y-%m",
			"year":  "%Y",
		}
		return fmt.Sprintf("DATE_FORMAT(%s, '%s')", expr, formats[interval])
	case "postgres":
		formats := map[string]string{
			"day":   "YYYY-MM-DD",
			"week":  `IYYY-"W"IW`,
			"month": "YYYY-MM",
			"year":  "YYYY",
		}
		return fmt.Sprintf("to_char((%s)::timestamp, '%s')", expr, formats[interval])
	case "sqlserver", "mssql":
		switch interval {
		case "day":
			return fmt.Sprintf("FORMAT(CAST(%s AS datetime2), 'yyyy-MM-dd')", expr)
		case "week":
			return fmt.Sprintf("CONCAT(YEAR(CAST(%s AS datetime2)), '-W', DATEPART(ISO_WEEK, CAST(%s AS datetime2)))", expr, expr)
		case "year":
			return fmt.Sprintf("FORMAT(CAST(%s AS datetime2), 'yyyy')", expr)
		default:
			return fmt.Sprintf("FORMAT(CAST(%s AS datetime2), 'yyyy-MM')", expr)
		}
	default:
		formats := map[string]string{
			"day":   "%Y-%m-%d",
			"week":  "%G-W%V",
			"month": "%Y-%m",
			"year":  "%Y",
		}
		return fmt.Sprintf("strftime('%s', %s)", formats[interval], expr)
	}
}

// numericExpr casts a text-valued extraction for numeric comparison.
func numericExpr(db *gorm.DB, expr string) string {
	switch db.Dialector.Name() {
	case "mysql":
		return fmt.Sprintf("CAST(%s AS DECIMAL(20,6))", expr)
	case "postgres":
		return fmt.Sprintf("(%s)::numeric", expr)
	case "sqlserver", "mssql":
		return fmt.Sprintf("TRY_CAST(%s AS float)", expr)
	default:
		return fmt.Sprintf("CAST(%s AS REAL)", expr)
	}
}

// Field-discovery thresholds.
const (
	facetSampleSize        = 100
	facetMinPresenceRatio  = 0.10
	facetTypeDominance     = 0.70
	facetMaxDistinctValues = 50
	facetMaxDepth          = 2
)

// FacetableField describes a document field suitable for faceting.
type FacetableField struct {
	Type           string   `json:"type"`
	FacetTypes     []string `json:"facetTypes"`
	Coverage       float64  `json:"coverage"`
	DistinctValues int      `json:"distinctValues,omitempty"`
}

type fieldProfile struct {
	appearances int
	valueTypes  map[string]int
	distinct    map[string]struct{}
	nested      bool
}

// GetFacetableFields samples rows matching the base query and proposes a
// facet configuration per document field. A field qualifies when it shows
// up in at least 10% of sampled rows, is not a nested object or an array
// of objects, and one value type accounts for at least 70% of what was
// observed. High-cardinality string fields are excluded outright, not
// truncated.
func GetFacetableFields(db *gorm.DB, query *ObjectQuery, sampleSize int) (map[string]FacetableField, error) {
	if sampleSize <= 0 {
		sampleSize = facetSampleSize
	}

	tx := query.Apply(db.Model(&models.Object{})).Limit(sampleSize)
	var objects []models.Object
	if err := tx.Find(&objects).Error; err != nil {
		return nil, types.NewStorageError("sample facetable fields", err)
	}
	if len(objects) == 0 {
		return map[string]FacetableField{}, nil
	}

	profiles := map[string]*fieldProfile{}
	for _, object := range objects {
		profileDocument(profiles, map[string]interface{}(object.Document), "", 0)
	}

	fields := map[string]FacetableField{}
	for path, profile := range profiles {
		field, ok := proposeFacetField(profile, len(objects))
		if !ok {
			continue
		}
		fields[path] = field
	}
	return fields, nil
}

func profileDocument(profiles map[string]*fieldProfile, doc map[string]interface{}, prefix string, depth int) {
	if depth >= facetMaxDepth {
		return
	}
	for key, value := range doc {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		profile, ok := profiles[path]
		if !ok {
			profile = &fieldProfile{valueTypes: map[string]int{}, distinct: map[string]struct{}{}}
			profiles[path] = profile
		}
		profile.appearances++

		switch v := value.(type) {
		case map[string]interface{}:
			profile.nested = true
			profileDocument(profiles, v, path, depth+1)
		case []interface{}:
			if containsObjects(v) {
				profile.nested = true
			} else {
				profile.valueTypes["array"]++
			}
		case string:
			valueType := classifyString(v)
			profile.valueTypes[valueType]++
			if valueType == "string" {
				profile.distinct[v] = struct{}{}
			}
		case float64:
			if v == math.Trunc(v) {
				profile.valueTypes["integer"]++
			} else {
				profile.valueTypes["float"]++
			}
		case bool:
			profile.valueTypes["boolean"]++
		}
	}
}

func containsObjects(values []interface{}) bool {
	for _, v := range values {
		if _, ok := v.(map[string]interface{}); ok {
			return true
		}
	}
	return false
}

func classifyString(s string) string {
	if s == "" {
		return "string"
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return "date"
	}
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return "date"
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return "numeric-string"
	}
	return "string"
}

var facetableTypes = map[string][]string{
	"string":         {FacetTerms},
	"boolean":        {FacetTerms},
	"numeric-string": {FacetTerms, FacetRange},
	"integer":        {FacetTerms, FacetRange},
	"float":          {FacetRange},
	"date":           {FacetDateHistogram},
}

func proposeFacetField(profile *fieldProfile, sampled int) (FacetableField, bool) {
	if profile.nested {
		return FacetableField{}, false
	}
	coverage := float64(profile.appearances) / float64(sampled)
	if coverage < facetMinPresenceRatio {
		return FacetableField{}, false
	}

	var total int
	var dominant string
	var dominantCount int
	typeNames := make([]string, 0, len(profile.valueTypes))
	for name := range profile.valueTypes {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames) // deterministic tie-break
	for _, name := range typeNames {
		count := profile.valueTypes[name]
		total += count
		if count > dominantCount {
			dominant = name
			dominantCount = count
		}
	}
	if total == 0 || float64(dominantCount)/float64(total) < facetTypeDominance {
		return FacetableField{}, false
	}

	facetTypes, ok := facetableTypes[dominant]
	if !ok {
		return FacetableField{}, false
	}
	if dominant == "string" && len(profile.distinct) > facetMaxDistinctValues {
		return FacetableField{}, false
	}

	field := FacetableField{
		Type:       dominant,
		FacetTypes: facetTypes,
		Coverage:   coverage,
	}
	if dominant == "string" {
		field.DistinctValues = len(profile.distinct)
	}
	return field, true
}
