// Package migrations embeds the goose SQL migrations for the shared tables.
// Per-resource entry tables are not migrated here; the repository manager
// creates them when a resource is set up.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
