// Package database provides SQLite connectivity and schema migrations for
// Cellgate Core.
//
// The store holds the durable side of the hub: device records, the command
// history used to correlate asynchronous device results, call records,
// received messages and the contact book. All queries use parameterised
// statements and the database file is created with 0600 permissions.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
