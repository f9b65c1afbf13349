// Package migrations embeds the SQL schema used by the Postgres document store.
package migrations

import "embed"

// FS holds the versioned migration files.
//
//go:embed *.sql
var FS embed.FS
