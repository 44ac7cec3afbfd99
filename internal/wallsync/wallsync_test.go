package wallsync_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/kindwall/internal/config"
	"github.com/lherron/kindwall/internal/snapshot"
	"github.com/lherron/kindwall/internal/testutil"
	"github.com/lherron/kindwall/internal/wallsync"
)

func fixedClock() func() time.Time {
	t := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newService(d *testutil.Device, importerID int64) *wallsync.Service {
	return wallsync.New(d.Store, wallsync.Options{
		DeviceLabel: d.Name,
		SyncDir:     d.SyncDir,
		KeepExports: 5,
		ImporterID:  importerID,
		Now:         fixedClock(),
	})
}

func TestService_ExportImport(t *testing.T) {
	a := testutil.NewDevice(t, "device-a")
	b := testutil.NewDevice(t, "device-b")

	alice := testutil.CreateUser(t, a.Store, "alice")
	testutil.CreatePost(t, a.Store, alice, "Hello", "2025-01-01T10:00:00Z")
	bob := testutil.CreateUser(t, b.Store, "bob")

	res, err := newService(a, 0).Export()
	require.NoError(t, err)
	assert.Equal(t, 1, res.PostCount)

	files, err := newService(a, 0).ExportFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{res.OutputPath}, files)

	stats, err := newService(b, bob).Import(res.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posts.Imported)
	assert.Equal(t, 1, stats.UsersCreated)
}

func TestService_ImportRequiresImporter(t *testing.T) {
	b := testutil.NewDevice(t, "device-b")
	_, err := newService(b, 0).Import("whatever.json")
	assert.Error(t, err)
}

func TestService_ImportRejectsBadFile(t *testing.T) {
	b := testutil.NewDevice(t, "device-b")
	bob := testutil.CreateUser(t, b.Store, "bob")
	path := testutil.WriteFile(t, t.TempDir(), "bad.json", "[]")

	stats, err := newService(b, bob).Import(path)
	assert.Nil(t, stats)
	var fe *snapshot.FormatError
	assert.True(t, errors.As(err, &fe))
}

func TestService_Identity(t *testing.T) {
	d := testutil.NewDevice(t, "device-a")
	svc := newService(d, 0)
	alice := testutil.CreateUser(t, d.Store, "alice")
	testutil.CreateUser(t, d.Store, "bob")

	summary, err := svc.IdentitySummary()
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalUsers)
	assert.Equal(t, 0, summary.UsersWithIdentity)
	assert.False(t, summary.SyncReady)

	id, err := svc.EnsureIdentity(alice)
	require.NoError(t, err)
	again, err := svc.EnsureIdentity(alice)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	info, err := svc.IdentityInfo(alice)
	require.NoError(t, err)
	assert.Equal(t, id, info.SyncUUID)

	summary, err = svc.IdentitySummary()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.UsersWithIdentity)
	assert.True(t, summary.SyncReady)
}

func TestService_SyncStats(t *testing.T) {
	d := testutil.NewDevice(t, "device-a")
	svc := newService(d, 0)

	stats, err := svc.SyncStats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalPosts)
	assert.Nil(t, stats.LatestPost)
	assert.Equal(t, 0, stats.ExportCount)

	alice := testutil.CreateUser(t, d.Store, "alice")
	p := testutil.CreatePost(t, d.Store, alice, "Hello", "2025-01-01T10:00:00Z")
	testutil.CreatePost(t, d.Store, alice, "Later", "2025-02-01T10:00:00Z")
	_, err = d.Store.Posts.Like(alice, p)
	require.NoError(t, err)

	res, err := svc.Export()
	require.NoError(t, err)

	stats, err = svc.SyncStats()
	require.NoError(t, err)
	assert.Equal(t, "device-a", stats.Device)
	assert.Equal(t, 2, stats.TotalPosts)
	assert.Equal(t, 1, stats.TotalLikes)
	require.NotNil(t, stats.LatestPost)
	assert.Equal(t, "2025-02-01T10:00:00Z", *stats.LatestPost)
	assert.Equal(t, 1, stats.ExportCount)
	assert.Equal(t, res.OutputPath, stats.LatestExport)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := wallsync.OptionsFromConfig(&config.Config{
		DeviceName:      "tablet",
		SyncDir:         "/sync",
		KeepExports:     3,
		CompressExports: true,
	})
	assert.Equal(t, "tablet", opts.DeviceLabel)
	assert.Equal(t, "/sync", opts.SyncDir)
	assert.Equal(t, 3, opts.KeepExports)
	assert.True(t, opts.Compress)
}
