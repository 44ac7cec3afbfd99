package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// dsnOptions apply to every pooled connection.
const dsnOptions = "?_foreign_keys=1&_busy_timeout=5000&_txlock=immediate"

// DB is the wall database: a SQLite handle plus the path it was opened from
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if needed) the wall database at path
func Open(path string) (*DB, error) {
	if path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == memoryPath {
		// each connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return &DB{DB: sqlDB, path: path}, nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// AppliedMigration is a row of schema_migrations
type AppliedMigration struct {
	Version   string
	AppliedAt string
}

// MigrationRequiredError reports a database whose schema is behind the binary
type MigrationRequiredError struct {
	Path    string
	Version string // last applied migration, "none" for a fresh database
	Pending []string
}

func (e *MigrationRequiredError) Error() string {
	return fmt.Sprintf("database at %s (version: %s) requires migration: %d pending migration(s). Run 'kindwalladm migrate' to update",
		e.Path, e.Version, len(e.Pending))
}

// Migrate applies all pending migrations
func (db *DB) Migrate() error {
	_, err := db.MigrateWithInfo()
	return err
}

// MigrateWithInfo applies pending migrations in order, each in its own
// transaction, and returns the versions it applied.
func (db *DB) MigrateWithInfo() ([]string, error) {
	_, pending, err := db.MigrationStatus()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
		)
	`); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var applied []string
	for _, version := range pending {
		if err := db.applyMigration(version); err != nil {
			return applied, err
		}
		applied = append(applied, version)
	}
	return applied, nil
}

func (db *DB) applyMigration(version string) (err error) {
	script, err := fs.ReadFile(migrationsFS, "migrations/"+version)
	if err != nil {
		return fmt.Errorf("failed to read migration %s: %w", version, err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", version, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(string(script)); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", version, err)
	}
	if _, err = tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", version, err)
	}
	return nil
}

// MigrationStatus returns the applied migrations (oldest first) and the
// versions still pending.
func (db *DB) MigrationStatus() ([]AppliedMigration, []string, error) {
	known, err := migrationVersions()
	if err != nil {
		return nil, nil, err
	}

	applied, err := db.appliedMigrations()
	if err != nil {
		return nil, nil, err
	}

	done := make(map[string]bool, len(applied))
	for _, m := range applied {
		done[m.Version] = true
	}
	var pending []string
	for _, v := range known {
		if !done[v] {
			pending = append(pending, v)
		}
	}
	return applied, pending, nil
}

func (db *DB) appliedMigrations() ([]AppliedMigration, error) {
	var exists int
	if err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name = 'schema_migrations'
	`).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check for schema_migrations table: %w", err)
	}
	if exists == 0 {
		return nil, nil
	}

	rows, err := db.Query("SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var m AppliedMigration
		if err := rows.Scan(&m.Version, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied = append(applied, m)
	}
	return applied, rows.Err()
}

// RequiresMigrationError returns a *MigrationRequiredError when migrations
// are pending, nil when the schema is current.
func (db *DB) RequiresMigrationError() error {
	applied, pending, err := db.MigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	version := "none"
	if len(applied) > 0 {
		version = applied[len(applied)-1].Version
	}
	return &MigrationRequiredError{Path: db.path, Version: version, Pending: pending}
}

// migrationVersions lists the embedded migration files in apply order
func migrationVersions() ([]string, error) {
	versions, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}
	for i, v := range versions {
		versions[i] = filepath.Base(v)
	}
	slices.Sort(versions)
	return versions, nil
}
