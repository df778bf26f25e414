// Package database opens the node's SQLite journal database and applies
// its schema migrations.
//
// The node keeps a small local record of boots and supervisor transitions
// so that an unattended device can be diagnosed after the fact. SQLite
// (github.com/mattn/go-sqlite3) is used in WAL mode with a single
// connection; the supervisor is the only writer.
//
// Migrations are plain SQL files named VERSION_description.sql, applied in
// version order, each in its own transaction, and recorded in
// schema_migrations:
//
//	db, err := database.Open(database.Config{Path: "./data/node.db", WALMode: true, BusyTimeout: 5})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
