// Package database opens the SQLite file that backs the command audit trail
// and applies its schema migrations.
//
// Migrations are plain SQL files named YYYYMMDD_HHMMSS_description.up.sql
// with an optional matching .down.sql. They are read from an fs.FS, normally
// the one embedded by the top-level migrations package, and each runs in its
// own transaction.
package database
