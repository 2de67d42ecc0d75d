// Package migrations provides embedded SQL migration files.
package migrations

import "embed"

// FS holds the migrations in golang-migrate naming, under Dir.
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory within FS that holds the migration files.
const Dir = "sql"
