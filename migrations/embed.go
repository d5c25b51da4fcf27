// Package migrations embeds the schema files so the binary carries its own
// schema and needs no migration tooling at deploy time.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
