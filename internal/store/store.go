package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// DefaultProfileID is the profile selected on a device that has never had
// one selected.
const DefaultProfileID = "Default"

// migration upgrades the schema by one user_version step.
type migration struct {
	name string
	sql  string
}

// migrations[i] moves user_version from i to i+1. Append only.
var migrations = []migration{
	{
		name: "profiles by device and seq",
		sql:  `CREATE INDEX IF NOT EXISTS idx_profiles_device_seq ON profiles(device, seq)`,
	},
	{
		name: "devices by selected profile",
		sql:  `CREATE INDEX IF NOT EXISTS idx_devices_selected ON devices(selected_profile)`,
	},
}

// currentSchemaVersion is the user_version after every migration ran.
var currentSchemaVersion = len(migrations)

// pragmas are applied in order on every Open.
var pragmas = []struct{ name, value string }{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// Store persists devices, profiles and plugin global settings in SQLite.
//
// The pool is limited to one connection: SQLite allows a single writer, and
// ":memory:" databases are per connection.
type Store struct {
	db             *sql.DB
	defaultProfile string
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultProfile overrides the profile id reported for devices with no
// selection.
func WithDefaultProfile(id string) Option {
	return func(s *Store) {
		if id != "" {
			s.defaultProfile = id
		}
	}
}

// Open opens (creating if needed) the database at path and brings its schema
// up to date. Passing ":memory:" gives a private in-memory store.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, defaultProfile: DefaultProfileID}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the database. Safe on a zero Store.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the connection for tests and diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

func configure(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			return fmt.Errorf("pragma %s: %w", p.name, err)
		}
	}
	return nil
}

// migrate applies the base schema, then every migration newer than the
// database's user_version, each in its own transaction.
func migrate(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, currentSchemaVersion)
	}

	for i := version; i < len(migrations); i++ {
		m := migrations[i]
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		// PRAGMA does not take bind parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d (%s): %w", i+1, m.name, err)
		}
	}
	return nil
}
