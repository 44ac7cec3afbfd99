package snapshot_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lherron/kindwall/internal/snapshot"
	"github.com/lherron/kindwall/internal/store"
	"github.com/lherron/kindwall/internal/testutil"
)

// clock returns a time source that advances one minute per call.
func clock() func() time.Time {
	t := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Minute)
		return t
	}
}

func exportOpts(d *testutil.Device) snapshot.ExportOptions {
	return snapshot.ExportOptions{
		DeviceLabel: d.Name,
		OutputDir:   d.SyncDir,
		KeepLast:    5,
		Now:         clock(),
	}
}

func exportFrom(t *testing.T, d *testutil.Device) string {
	t.Helper()
	res, err := snapshot.Export(d.Store, exportOpts(d))
	require.NoError(t, err)
	return res.OutputPath
}

func importInto(t *testing.T, d *testutil.Device, path string, importerID int64) *snapshot.MergeStatistics {
	t.Helper()
	stats, err := snapshot.Import(d.Store, path, snapshot.MergeOptions{
		ImporterID:  importerID,
		DeviceLabel: d.Name,
	})
	require.NoError(t, err)
	require.NotNil(t, stats)
	return stats
}

// writeDoc writes a hand-built document as a snapshot file.
func writeDoc(t *testing.T, doc any) string {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "crafted.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// wallContent lists "content@created_at#fingerprint" for every post and
// comment, sorted, as a store-independent view of a wall.
func wallContent(t *testing.T, d *testutil.Device) []string {
	t.Helper()
	rows, err := d.DB.Query(`
		SELECT 'post:' || content || '@' || created_at || '#' || COALESCE(fingerprint, '') FROM wall_posts
		UNION ALL
		SELECT 'comment:' || c.content || '@' || c.created_at || '#' || COALESCE(c.fingerprint, '') || '^' || COALESCE(p.fingerprint, '')
		FROM wall_comments c JOIN wall_posts p ON p.id = c.post_id
	`)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	sort.Strings(out)
	return out
}

func orphanComments(t *testing.T, d *testutil.Device) int {
	t.Helper()
	var n int
	require.NoError(t, d.DB.QueryRow(`
		SELECT COUNT(*) FROM wall_comments c
		LEFT JOIN wall_posts p ON p.id = c.post_id
		WHERE p.id IS NULL
	`).Scan(&n))
	return n
}

func storeParams(userID int64, content, createdAt string, image []byte) store.CreatePostParams {
	return store.CreatePostParams{UserID: userID, Content: content, CreatedAt: createdAt, ImageData: image}
}
