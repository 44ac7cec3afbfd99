// Package store provides a persistence layer over the wall database,
// handling fingerprints, identity binding and event logging on writes.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/lherron/kindwall/internal/db"
	"github.com/lherron/kindwall/internal/events"
)

// TimestampLayout is the text form of store-generated timestamps
const TimestampLayout = "2006-01-02T15:04:05Z"

// Store is the root store that provides access to domain-specific stores.
type Store struct {
	db  *db.DB
	now func() time.Time

	Users    *UserStore
	Posts    *PostStore
	Comments *CommentStore
	Settings *SettingsStore
}

// New creates a new Store wrapping the given database connection.
func New(database *db.DB) *Store {
	s := &Store{db: database, now: time.Now}
	s.Users = &UserStore{store: s}
	s.Posts = &PostStore{store: s}
	s.Comments = &CommentStore{store: s}
	s.Settings = &SettingsStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// Events returns a writer for events logged outside a store transaction.
func (s *Store) Events() *events.Writer {
	return events.NewWriter(s.db.DB)
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := events.NewWriter(s.db.DB)
	if err := fn(tx, ew); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(TimestampLayout)
}

// IsUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY constraint.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
