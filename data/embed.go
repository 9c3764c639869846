package data

import (
	_ "embed"
)

// FileSchema is the built-in schema for file attachment references,
// resolvable through the reserved file-schema URI without a database row.
//
//go:embed schemas/file.json
var FileSchema []byte
