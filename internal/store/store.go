package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// migrations holds the depot schema, one entry per user_version. Entry i
// moves a depot from version i to i+1 and is never edited once released.
var migrations = []string{
	// 1: cycle definitions, one row per (kind, name). spec holds the
	// definition as JSON; spec_hash is its canonical hash.
	`CREATE TABLE definitions (
		kind      TEXT NOT NULL,
		name      TEXT NOT NULL,
		spec      TEXT NOT NULL,
		spec_hash TEXT NOT NULL,
		PRIMARY KEY (kind, name)
	);
	CREATE INDEX idx_definitions_spec_hash ON definitions (spec_hash);`,

	// 2: persistent subscriptions, removed with their definition.
	`CREATE TABLE subscriptions (
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		uri  TEXT NOT NULL,
		PRIMARY KEY (kind, name, uri),
		FOREIGN KEY (kind, name) REFERENCES definitions (kind, name) ON DELETE CASCADE
	);`,
}

// SchemaVersion is the user_version of a fully migrated depot.
var SchemaVersion = len(migrations)

// Store is the depot for cycle definitions and subscriptions.
type Store struct {
	db *sql.DB
}

// Open opens or creates the depot at path and brings its schema up to
// SchemaVersion. Connection pragmas travel in the DSN so every pooled
// connection gets them.
func Open(path string) (*Store, error) {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", "NORMAL")
	q.Set("_busy_timeout", "5000")
	q.Set("_foreign_keys", "on")

	db, err := sql.Open("sqlite3", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open depot %s: %w", path, err)
	}
	// One writer; a second connection would only meet SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open depot %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the depot.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrate applies every migration past the depot's user_version, each in
// its own transaction together with the version bump.
func migrate(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > len(migrations) {
		return fmt.Errorf("schema version %d is newer than this build (%d)", version, len(migrations))
	}

	for v := version; v < len(migrations); v++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migrate to v%d: %w", v+1, err)
		}
	}
	return nil
}

// pragma reads the current value of a connection pragma.
func (s *Store) pragma(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
