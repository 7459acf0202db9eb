// Package migrations embeds the Cellgate schema so the binary can migrate
// its database without the SQL files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root, ready for database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
