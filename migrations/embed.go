// Package migrations embeds the goose SQL migrations of the rating service.
package migrations

import "embed"

// Dir is the directory inside FS holding the postgres migrations.
const Dir = "postgres"

//go:embed postgres/*.sql
var FS embed.FS
