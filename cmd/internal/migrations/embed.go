// Package migrations embeds the SQL schema applied by golang-migrate.
//
// Statements are unqualified; they land in the connection's search_path.
package migrations

import "embed"

// FS holds the numbered *.up.sql / *.down.sql files.
//
//go:embed *.sql
var FS embed.FS
