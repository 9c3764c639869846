package models

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultVersion is the semantic version assigned to newly created rows.
const DefaultVersion = "0.0.1"

// BumpPatch increments the patch component of a dotted version triple.
// Malformed input resets to the default version rather than erroring; the
// version is informational, not a concurrency guard.
func BumpPatch(version string) string {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return DefaultVersion
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return DefaultVersion
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1)
}
