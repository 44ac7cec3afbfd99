// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lherron/kindwall/internal/db"
	"github.com/lherron/kindwall/internal/store"
)

// TempDB creates a migrated temporary SQLite database for testing
func TempDB(t *testing.T) (*db.DB, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "wall.db")

	database, err := db.Open(dbPath)
	require.NoError(t, err, "failed to create test database")

	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})

	return database, dbPath
}

// TempStore returns a store backed by a fresh TempDB
func TempStore(t *testing.T) *store.Store {
	t.Helper()
	database, _ := TempDB(t)
	return store.New(database)
}

// Device models one installation: its own database and sync directory.
type Device struct {
	Name    string
	DB      *db.DB
	Store   *store.Store
	SyncDir string
}

// NewDevice creates an isolated installation for multi-device tests
func NewDevice(t *testing.T, name string) *Device {
	t.Helper()
	database, _ := TempDB(t)
	syncDir := filepath.Join(t.TempDir(), "sync")
	require.NoError(t, os.MkdirAll(syncDir, 0755))
	return &Device{
		Name:    name,
		DB:      database,
		Store:   store.New(database),
		SyncDir: syncDir,
	}
}

// CreateUser creates a local user, failing the test on error
func CreateUser(t *testing.T, s *store.Store, username string) int64 {
	t.Helper()
	u, err := s.Users.Create(nil, store.CreateUserParams{Username: username})
	require.NoError(t, err, "create user %s", username)
	return u.ID
}

// CreatePost creates a post with a fixed timestamp, failing the test on error
func CreatePost(t *testing.T, s *store.Store, userID int64, content, createdAt string) int64 {
	t.Helper()
	p, err := s.Posts.Create(&userID, store.CreatePostParams{
		UserID:    userID,
		Content:   content,
		CreatedAt: createdAt,
	})
	require.NoError(t, err, "create post %q", content)
	return p.ID
}

// CreateComment creates a comment with a fixed timestamp, failing the test on error
func CreateComment(t *testing.T, s *store.Store, postID, userID int64, content, createdAt string) int64 {
	t.Helper()
	c, err := s.Comments.Create(&userID, store.CreateCommentParams{
		PostID:    postID,
		UserID:    userID,
		Content:   content,
		CreatedAt: createdAt,
	})
	require.NoError(t, err, "create comment %q", content)
	return c.ID
}

// CountRows returns the number of rows in table
func CountRows(t *testing.T, d *db.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, d.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

// WriteFile writes content to a file in dir
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read file %s: %v", path, err)
	}
	return string(data)
}
