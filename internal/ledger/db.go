// Package ledger records uploads and processing runs in SQLite so that
// stale files can be found and removed later.
package ledger

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	// writers wait instead of failing with SQLITE_BUSY
	"PRAGMA busy_timeout=5000",
}

type DB struct {
	db *sql.DB
}

// Open opens the ledger at path, creating it if needed, and brings its
// schema up to date.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Version returns the number of applied migrations.
func (d *DB) Version() (int, error) {
	var v int
	err := d.db.QueryRow("PRAGMA user_version").Scan(&v)
	return v, err
}

func (d *DB) migrate() error {
	v, err := d.Version()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if v > len(migrations) {
		return fmt.Errorf("ledger schema version %d is newer than this binary (%d)", v, len(migrations))
	}
	for i := v; i < len(migrations); i++ {
		tx, err := d.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not take bind parameters
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version=%d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
