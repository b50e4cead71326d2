// Package db carries the kv_store schema migrations inside the binary so a
// MariaDB deployment needs no files next to the executable.
package db

import "embed"

// Migrations holds db/migrations/*.sql.
//
//go:embed migrations/*.sql
var Migrations embed.FS
