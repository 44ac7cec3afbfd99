package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/kindwall/internal/db"
	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/fingerprint"
)

// setupTestDB creates a temporary test database with migrations applied.
func setupTestDB(t *testing.T) *db.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := database.Migrate(); err != nil {
		t.Fatalf("failed to migrate db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// setupTestUser creates a user and returns its id.
func setupTestUser(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	u, err := s.Users.Create(nil, CreateUserParams{Username: username})
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return u.ID
}

func countEvents(t *testing.T, database *db.DB, eventType string) int {
	t.Helper()
	var n int
	require.NoError(t, database.QueryRow(`SELECT COUNT(*) FROM event_log WHERE event_type = ?`, eventType).Scan(&n))
	return n
}

func TestUserStore_Create(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)

	u, err := s.Users.Create(nil, CreateUserParams{
		Username:         "alice",
		SyncUUID:         "550e8400-e29b-41d4-a716-446655440000",
		Bio:              "kind",
		OriginalUsername: "alice",
		OriginDevice:     "laptop",
	})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.True(t, u.HasIdentity())

	got, err := s.Users.Get(u.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, "kind", domain.StringValue(got.Bio))
	assert.Equal(t, "laptop", domain.StringValue(got.OriginDevice))
	assert.Nil(t, got.AvatarPath)

	assert.Equal(t, 1, countEvents(t, database, "user.created"))
}

func TestUserStore_Create_DuplicateUsername(t *testing.T) {
	s := New(setupTestDB(t))
	setupTestUser(t, s, "alice")

	_, err := s.Users.Create(nil, CreateUserParams{Username: "alice"})
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err), "expected unique violation, got %v", err)
}

func TestUserStore_Create_InvalidIdentity(t *testing.T) {
	s := New(setupTestDB(t))

	_, err := s.Users.Create(nil, CreateUserParams{Username: "alice", SyncUUID: "not-a-uuid"})
	assert.Error(t, err)
}

func TestUserStore_Get_NotFound(t *testing.T) {
	s := New(setupTestDB(t))

	_, err := s.Users.Get(99)
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf), "expected NotFoundError, got %v", err)
	assert.Equal(t, domain.ResourceUser, nf.Resource)
}

func TestUserStore_FindMissingReturnsNil(t *testing.T) {
	s := New(setupTestDB(t))

	u, err := s.Users.FindByUsername("nobody")
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = s.Users.FindBySyncUUID("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUserStore_BindSyncUUID_OnlyOnce(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	id := setupTestUser(t, s, "alice")

	first := "550e8400-e29b-41d4-a716-446655440000"
	second := "886313e1-3b8a-5372-9b90-0c9aee199e5d"

	bound, err := s.Users.BindSyncUUID(nil, id, first)
	require.NoError(t, err)
	assert.True(t, bound)

	bound, err = s.Users.BindSyncUUID(nil, id, second)
	require.NoError(t, err)
	assert.False(t, bound, "an existing identity must never be rewritten")

	u, err := s.Users.FindBySyncUUID(first)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, id, u.ID)

	assert.Equal(t, 1, countEvents(t, database, "user.identity_bound"))
}

func TestUserStore_EnsureSyncUUID_Idempotent(t *testing.T) {
	s := New(setupTestDB(t))
	id := setupTestUser(t, s, "alice")

	first, err := s.Users.EnsureSyncUUID(nil, id)
	require.NoError(t, err)
	require.NoError(t, domain.ValidateSyncIdentity(first))

	second, err := s.Users.EnsureSyncUUID(nil, id)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = s.Users.EnsureSyncUUID(nil, 404)
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestUserStore_UpdateProfile(t *testing.T) {
	s := New(setupTestDB(t))
	id := setupTestUser(t, s, "alice")

	avatar := "avatars/alice.png"
	require.NoError(t, s.Users.UpdateProfile(nil, id, &avatar, nil))

	u, err := s.Users.Get(id)
	require.NoError(t, err)
	assert.Equal(t, avatar, domain.StringValue(u.AvatarPath))
	assert.Nil(t, u.Bio)

	require.NoError(t, s.Users.UpdateProfile(nil, id, nil, nil), "no-op update should succeed")

	var nf *domain.NotFoundError
	assert.True(t, errors.As(s.Users.UpdateProfile(nil, 404, &avatar, nil), &nf))
}

func TestSettingsStore(t *testing.T) {
	s := New(setupTestDB(t))

	_, ok, err := s.Settings.Get(DeviceLabelKey)
	require.NoError(t, err)
	assert.False(t, ok)

	label, err := s.Settings.SetIfAbsent(DeviceLabelKey, "laptop")
	require.NoError(t, err)
	assert.Equal(t, "laptop", label)

	label, err = s.Settings.SetIfAbsent(DeviceLabelKey, "desktop")
	require.NoError(t, err)
	assert.Equal(t, "laptop", label)

	label, ok, err = s.Settings.Get(DeviceLabelKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "laptop", label)
}

func TestUserStore_Summary(t *testing.T) {
	s := New(setupTestDB(t))
	alice := setupTestUser(t, s, "alice")
	setupTestUser(t, s, "bob")

	_, err := s.Users.EnsureSyncUUID(nil, alice)
	require.NoError(t, err)

	sum, err := s.Users.Summary()
	require.NoError(t, err)
	assert.Equal(t, IdentitySummary{TotalUsers: 2, UsersWithIdentity: 1}, sum)
}

func TestPostStore_Create_ComputesFingerprint(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	alice := setupTestUser(t, s, "alice")

	post, err := s.Posts.Create(&alice, CreatePostParams{
		UserID:    alice,
		Content:   "Hello",
		CreatedAt: "2025-01-01T10:00:00Z",
	})
	require.NoError(t, err)
	require.NotNil(t, post.Fingerprint)

	// Posting binds an identity to the author so the fingerprint is stable.
	u, err := s.Users.Get(alice)
	require.NoError(t, err)
	require.True(t, u.HasIdentity())

	want := fingerprint.Compute(fingerprint.Input{
		AuthorIdentity: *u.SyncUUID,
		Content:        "Hello",
		CreatedAt:      "2025-01-01T10:00:00Z",
	})
	assert.Equal(t, want, *post.Fingerprint)

	got, err := s.Posts.Get(post.ID)
	require.NoError(t, err)
	assert.Equal(t, want, domain.StringValue(got.Fingerprint))
	assert.Equal(t, 1, countEvents(t, database, "post.created"))
}

func TestPostStore_Create_VerbatimFingerprint(t *testing.T) {
	s := New(setupTestDB(t))
	bob := setupTestUser(t, s, "bob")

	fp := fingerprint.Compute(fingerprint.Input{AuthorIdentity: "elsewhere", Content: "x", CreatedAt: "t"})
	post, err := s.Posts.Create(nil, CreatePostParams{
		UserID:      bob,
		Content:     "Imported",
		CreatedAt:   "2025-01-01 10:00:00",
		Likes:       3,
		IsAnonymous: true,
		Fingerprint: fp,
	})
	require.NoError(t, err)

	got, err := s.Posts.Get(post.ID)
	require.NoError(t, err)
	assert.Equal(t, fp, domain.StringValue(got.Fingerprint))
	assert.Equal(t, int64(3), got.Likes)
	assert.True(t, got.IsAnonymous)
	assert.Equal(t, "2025-01-01 10:00:00", got.CreatedAt, "timestamps are stored verbatim")

	// An explicit fingerprint does not mint an identity for the author.
	u, err := s.Users.Get(bob)
	require.NoError(t, err)
	assert.False(t, u.HasIdentity())

	found, err := s.Posts.FindByFingerprint(fp)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, post.ID, found.ID)
}

func TestPostStore_Create_DefaultTimestamp(t *testing.T) {
	s := New(setupTestDB(t))
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	alice := setupTestUser(t, s, "alice")

	post, err := s.Posts.Create(&alice, CreatePostParams{UserID: alice, Content: "now"})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01T12:00:00Z", post.CreatedAt)
}

func TestPostStore_Create_Invalid(t *testing.T) {
	s := New(setupTestDB(t))
	alice := setupTestUser(t, s, "alice")

	_, err := s.Posts.Create(&alice, CreatePostParams{UserID: alice, Content: "  "})
	assert.Error(t, err)

	_, err = s.Posts.Create(&alice, CreatePostParams{UserID: alice, Content: "x", Likes: -1})
	assert.Error(t, err)

	_, err = s.Posts.Create(nil, CreatePostParams{UserID: 404, Content: "x", Fingerprint: "blake3:00"})
	assert.Error(t, err, "dangling author must be rejected")
}

func TestPostStore_FindCandidates(t *testing.T) {
	s := New(setupTestDB(t))
	alice := setupTestUser(t, s, "alice")
	bob := setupTestUser(t, s, "bob")

	for _, p := range []CreatePostParams{
		{UserID: alice, Content: "Hello", CreatedAt: "2025-01-01T10:00:00Z"},
		{UserID: bob, Content: "Hello", CreatedAt: "2025-01-01T10:00:00Z"},
		{UserID: alice, Content: "Hello", CreatedAt: "2025-01-01T10:00:01Z"},
		{UserID: alice, Content: "hello", CreatedAt: "2025-01-01T10:00:00Z"},
	} {
		_, err := s.Posts.Create(nil, p)
		require.NoError(t, err)
	}

	candidates, err := s.Posts.FindCandidates("Hello", "2025-01-01T10:00:00Z")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.NotEqual(t, *candidates[0].Fingerprint, *candidates[1].Fingerprint, "different authors fingerprint differently")
}

func TestPostStore_Likes(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	alice := setupTestUser(t, s, "alice")
	bob := setupTestUser(t, s, "bob")

	post, err := s.Posts.Create(&alice, CreatePostParams{UserID: alice, Content: "Hello"})
	require.NoError(t, err)

	liked, err := s.Posts.Like(bob, post.ID)
	require.NoError(t, err)
	assert.True(t, liked)

	liked, err = s.Posts.Like(bob, post.ID)
	require.NoError(t, err)
	assert.False(t, liked, "second like is a no-op")

	got, err := s.Posts.Get(post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Likes, "counter bumped exactly once")

	linked, err := s.Posts.LinkLike(alice, post.ID)
	require.NoError(t, err)
	assert.True(t, linked)

	got, err = s.Posts.Get(post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Likes, "LinkLike leaves the counter alone")

	has, err := s.Posts.HasLike(alice, post.ID)
	require.NoError(t, err)
	assert.True(t, has)

	// Only alice has an identity (minted when she posted).
	likers, err := s.Posts.LikerIdentities()
	require.NoError(t, err)
	aliceUser, err := s.Users.Get(alice)
	require.NoError(t, err)
	assert.Equal(t, []string{*aliceUser.SyncUUID}, likers[post.ID])

	assert.Equal(t, 2, countEvents(t, database, "like.created"))
}

func TestPostStore_Stats(t *testing.T) {
	s := New(setupTestDB(t))

	stats, err := s.Posts.Stats()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalPosts)
	assert.Nil(t, stats.LatestPost)

	alice := setupTestUser(t, s, "alice")
	bob := setupTestUser(t, s, "bob")
	first, err := s.Posts.Create(&alice, CreatePostParams{UserID: alice, Content: "a", CreatedAt: "2025-01-01T10:00:00Z"})
	require.NoError(t, err)
	_, err = s.Posts.Create(&alice, CreatePostParams{UserID: alice, Content: "b", CreatedAt: "2025-02-01T10:00:00Z"})
	require.NoError(t, err)
	_, err = s.Posts.Like(bob, first.ID)
	require.NoError(t, err)

	stats, err = s.Posts.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalPosts)
	assert.Equal(t, 1, stats.TotalLikes)
	require.NotNil(t, stats.LatestPost)
	assert.Equal(t, "2025-02-01T10:00:00Z", *stats.LatestPost)
}

func TestCommentStore_CreateAndLike(t *testing.T) {
	database := setupTestDB(t)
	s := New(database)
	alice := setupTestUser(t, s, "alice")
	bob := setupTestUser(t, s, "bob")

	post, err := s.Posts.Create(&alice, CreatePostParams{UserID: alice, Content: "Hello"})
	require.NoError(t, err)

	c, err := s.Comments.Create(&bob, CreateCommentParams{
		PostID:    post.ID,
		UserID:    bob,
		Content:   "Nice!",
		CreatedAt: "2025-01-01T11:00:00Z",
	})
	require.NoError(t, err)
	require.NotNil(t, c.Fingerprint)

	candidates, err := s.Comments.FindCandidates(post.ID, "Nice!", "2025-01-01T11:00:00Z")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, c.ID, candidates[0].ID)

	none, err := s.Comments.FindCandidates(post.ID+1, "Nice!", "2025-01-01T11:00:00Z")
	require.NoError(t, err)
	assert.Empty(t, none, "candidates are scoped to the parent post")

	liked, err := s.Comments.Like(alice, c.ID)
	require.NoError(t, err)
	assert.True(t, liked)
	liked, err = s.Comments.LinkLike(alice, c.ID)
	require.NoError(t, err)
	assert.False(t, liked)

	got, err := s.Comments.Get(c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Likes)

	byPost, err := s.Comments.ListByPost(post.ID)
	require.NoError(t, err)
	assert.Len(t, byPost, 1)
}

func TestCommentStore_Create_DanglingParent(t *testing.T) {
	s := New(setupTestDB(t))
	alice := setupTestUser(t, s, "alice")

	_, err := s.Comments.Create(&alice, CreateCommentParams{PostID: 404, UserID: alice, Content: "orphan"})
	require.Error(t, err)

	comments, err := s.Comments.List()
	require.NoError(t, err)
	assert.Empty(t, comments)
}
