package services

import (
	"regexp"
	"strings"
)

var slugStripPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe, lowercase slug from a title.
func Slugify(title string) string {
	slug := strings.ToLower(title)
	slug = slugStripPattern.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}
