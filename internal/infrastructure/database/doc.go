// Package database provides the SQLite connection behind the message journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Applying embedded, versioned schema migrations
//   - Health checks for the status API
//
// The connection pool is limited to one connection; SQLite has a single
// writer and the journal writes from the dispatch loop only.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: "./data/mqttlog.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named VERSION_description.up.sql (and an optional
// matching .down.sql), where VERSION is YYYYMMDD_HHMMSS. They are applied in
// version order, each in its own transaction, and recorded in the
// schema_migrations table.
package database
