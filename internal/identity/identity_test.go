package identity_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/fingerprint"
	"github.com/lherron/kindwall/internal/identity"
	"github.com/lherron/kindwall/internal/store"
	"github.com/lherron/kindwall/internal/testutil"
)

const (
	aliceID = "550e8400-e29b-41d4-a716-446655440000"
	otherID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func int64Ptr(v int64) *int64 { return &v }

func newResolver(t *testing.T) (*identity.Resolver, *store.Store) {
	t.Helper()
	s := testutil.TempStore(t)
	return identity.NewResolver(s, nil), s
}

func TestResolve_CreatesThenReusesBoundIdentity(t *testing.T) {
	r, s := newResolver(t)
	bundle := identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID, DeviceLabel: "laptop"}

	first, err := r.Resolve(bundle)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, aliceID, first.Identity)

	second, err := r.Resolve(bundle)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.UserID, second.UserID)

	u, err := s.Users.Get(first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "laptop", domain.StringValue(u.OriginDevice))
	assert.Equal(t, "alice", domain.StringValue(u.OriginalUsername))

	sum, err := r.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1, sum.TotalUsers, "identity stability: no second user")
}

func TestResolve_RefreshesProfile(t *testing.T) {
	r, s := newResolver(t)

	res, err := r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID, DeviceLabel: "device-a", Bio: "old"})
	require.NoError(t, err)

	_, err = r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID, Bio: "new", Avatar: "a.png"})
	require.NoError(t, err)

	u, err := s.Users.Get(res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "new", domain.StringValue(u.Bio))
	assert.Equal(t, "a.png", domain.StringValue(u.AvatarPath))

	// Empty incoming values never erase local ones.
	_, err = r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID})
	require.NoError(t, err)
	u, err = s.Users.Get(res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "new", domain.StringValue(u.Bio))

	r.SkipProfileRefresh = true
	_, err = r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID, Bio: "ignored"})
	require.NoError(t, err)
	u, err = s.Users.Get(res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "new", domain.StringValue(u.Bio))
}

func TestResolve_LinksExistingUserWithoutIdentity(t *testing.T) {
	r, s := newResolver(t)
	localID := testutil.CreateUser(t, s, "alice")

	res, err := r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID})
	require.NoError(t, err)
	assert.True(t, res.Linked)
	assert.False(t, res.Created)
	assert.Equal(t, localID, res.UserID)

	u, err := s.Users.Get(localID)
	require.NoError(t, err)
	assert.Equal(t, aliceID, domain.StringValue(u.SyncUUID))
}

func TestResolve_NeverRelinksDifferentIdentity(t *testing.T) {
	r, s := newResolver(t)
	localID := testutil.CreateUser(t, s, "alice")
	_, err := s.Users.BindSyncUUID(nil, localID, otherID)
	require.NoError(t, err)

	res, err := r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEqual(t, localID, res.UserID)

	u, err := s.Users.Get(res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice_2", u.Username)

	local, err := s.Users.Get(localID)
	require.NoError(t, err)
	assert.Equal(t, otherID, domain.StringValue(local.SyncUUID), "existing identity untouched")
}

func TestResolve_NameMatchWithoutIdentityDoesNotLink(t *testing.T) {
	r, s := newResolver(t)
	localID := testutil.CreateUser(t, s, "alice")

	bundle := identity.AuthorBundle{DisplayName: "alice", DeviceLabel: "laptop", OriginUserID: int64Ptr(1)}
	res, err := r.Resolve(bundle)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEqual(t, localID, res.UserID)
	assert.Equal(t, fingerprint.PlaceholderIdentity("laptop", 1), res.Identity)

	local, err := s.Users.Get(localID)
	require.NoError(t, err)
	assert.False(t, local.HasIdentity(), "local user must not be linked on a name match alone")

	again, err := r.Resolve(bundle)
	require.NoError(t, err)
	assert.Equal(t, res.UserID, again.UserID, "legacy bundles resolve stably")
	assert.False(t, again.Created)
}

func TestResolve_SuffixesUntilUnique(t *testing.T) {
	r, s := newResolver(t)
	for _, name := range []string{"alice", "alice_2"} {
		id := testutil.CreateUser(t, s, name)
		_, err := s.Users.EnsureSyncUUID(nil, id)
		require.NoError(t, err)
	}

	res, err := r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID})
	require.NoError(t, err)

	u, err := s.Users.Get(res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice_3", u.Username)
}

func TestResolve_Placeholder(t *testing.T) {
	r, s := newResolver(t)

	first, err := r.Resolve(identity.AuthorBundle{DeviceLabel: "laptop", OriginUserID: int64Ptr(42)})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.Placeholder)

	u, err := s.Users.Get(first.UserID)
	require.NoError(t, err)
	assert.Equal(t, "user_42", u.Username)
	assert.Equal(t, domain.PlaceholderBio, domain.StringValue(u.Bio))
	assert.True(t, u.HasIdentity())

	again, err := r.Resolve(identity.AuthorBundle{DeviceLabel: "laptop", OriginUserID: int64Ptr(42)})
	require.NoError(t, err)
	assert.Equal(t, first.UserID, again.UserID)
	assert.False(t, again.Created)

	other, err := r.Resolve(identity.AuthorBundle{DeviceLabel: "laptop", OriginUserID: int64Ptr(43)})
	require.NoError(t, err)
	assert.NotEqual(t, first.UserID, other.UserID, "distinct unknown authors stay distinct")

	// Same origin id from another device is a different author.
	elsewhere, err := r.Resolve(identity.AuthorBundle{DeviceLabel: "desktop", OriginUserID: int64Ptr(42)})
	require.NoError(t, err)
	assert.NotEqual(t, first.UserID, elsewhere.UserID)
	u, err = s.Users.Get(elsewhere.UserID)
	require.NoError(t, err)
	assert.Equal(t, "user_42_2", u.Username)

	unknown, err := r.Resolve(identity.AuthorBundle{})
	require.NoError(t, err)
	u, err = s.Users.Get(unknown.UserID)
	require.NoError(t, err)
	assert.Equal(t, "user_unknown", u.Username)
	assert.True(t, u.IsPlaceholder())
}

func TestResolve_InvalidIdentity(t *testing.T) {
	r, _ := newResolver(t)

	_, err := r.Resolve(identity.AuthorBundle{DisplayName: "mallory", StableIdentity: "not-a-uuid"})
	require.Error(t, err)

	var idErr *identity.IdentityError
	require.True(t, errors.As(err, &idErr), "expected IdentityError, got %T", err)
	assert.Equal(t, "mallory", idErr.DisplayName)
}

func TestResolve_IdentityWithoutName(t *testing.T) {
	r, s := newResolver(t)

	res, err := r.Resolve(identity.AuthorBundle{StableIdentity: aliceID})
	require.NoError(t, err)
	assert.False(t, res.Placeholder)

	u, err := s.Users.Get(res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "user_550e8400", u.Username)
}

func TestEnsureIdentitySummaryInfo(t *testing.T) {
	r, s := newResolver(t)
	alice := testutil.CreateUser(t, s, "alice")
	testutil.CreateUser(t, s, "bob")

	sum, err := r.Summary()
	require.NoError(t, err)
	assert.Equal(t, identity.Summary{TotalUsers: 2}, sum)
	assert.False(t, sum.SyncReady)

	id, err := r.EnsureIdentity(alice)
	require.NoError(t, err)
	again, err := r.EnsureIdentity(alice)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	sum, err = r.Summary()
	require.NoError(t, err)
	assert.Equal(t, identity.Summary{TotalUsers: 2, UsersWithIdentity: 1, SyncReady: true}, sum)

	info, err := r.Info(alice)
	require.NoError(t, err)
	assert.Equal(t, id, info.SyncUUID)
	assert.Equal(t, "alice", info.Username)
	assert.False(t, info.Placeholder)

	_, err = r.EnsureIdentity(404)
	var nf *domain.NotFoundError
	assert.True(t, errors.As(err, &nf))
}

func TestResolve_NeverRefreshesLocalProfiles(t *testing.T) {
	r, s := newResolver(t)
	alice, err := s.Users.Create(nil, store.CreateUserParams{Username: "alice", SyncUUID: aliceID, Bio: "current"})
	require.NoError(t, err)
	bob := testutil.CreateUser(t, s, "bob")
	r.ActorID = &bob

	res, err := r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID, DeviceLabel: "device-a", Bio: "stale"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, res.UserID)

	u, err := s.Users.Get(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "current", domain.StringValue(u.Bio))

	// The importer's own profile is local as well.
	bobID, err := s.Users.EnsureSyncUUID(nil, bob)
	require.NoError(t, err)
	_, err = r.Resolve(identity.AuthorBundle{DisplayName: "bob", StableIdentity: bobID, DeviceLabel: "device-a", Bio: "stale"})
	require.NoError(t, err)
	u, err = s.Users.Get(bob)
	require.NoError(t, err)
	assert.Empty(t, domain.StringValue(u.Bio))

	// Users registered on this device carry its label as origin.
	r.LocalDevice = "laptop"
	carol, err := s.Users.Create(nil, store.CreateUserParams{
		Username: "carol", SyncUUID: otherID, OriginDevice: "laptop", Bio: "mine",
	})
	require.NoError(t, err)
	_, err = r.Resolve(identity.AuthorBundle{DisplayName: "carol", StableIdentity: otherID, DeviceLabel: "device-a", Bio: "stale"})
	require.NoError(t, err)
	u, err = s.Users.Get(carol.ID)
	require.NoError(t, err)
	assert.Equal(t, "mine", domain.StringValue(u.Bio))
}

func TestResolve_SuffixFitsNameLimit(t *testing.T) {
	r, s := newResolver(t)
	long := strings.Repeat("k", domain.MaxUsernameLength)
	local := testutil.CreateUser(t, s, long)
	_, err := s.Users.EnsureSyncUUID(nil, local)
	require.NoError(t, err)

	res, err := r.Resolve(identity.AuthorBundle{DisplayName: long, StableIdentity: aliceID, DeviceLabel: "device-a"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.False(t, res.Degraded)
	assert.NotEqual(t, local, res.UserID)

	u, err := s.Users.Get(res.UserID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("k", domain.MaxUsernameLength-2)+"_2", u.Username)
	assert.Equal(t, aliceID, domain.StringValue(u.SyncUUID))
	assert.Equal(t, long, domain.StringValue(u.OriginalUsername))

	// Multi-byte names are trimmed on a rune boundary.
	wide := strings.Repeat("é", 40)
	res, err = r.Resolve(identity.AuthorBundle{DisplayName: wide, StableIdentity: otherID})
	require.NoError(t, err)
	u, err = s.Users.Get(res.UserID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 32), u.Username)
}

func TestResolve_FallsBackToPlaceholder(t *testing.T) {
	r, s := newResolver(t)
	// Only placeholder-style names may be inserted.
	_, err := s.DB().Exec(`
		CREATE TRIGGER only_placeholders BEFORE INSERT ON users
		WHEN NEW.username NOT LIKE 'user_%'
		BEGIN SELECT RAISE(ABORT, 'username rejected'); END
	`)
	require.NoError(t, err)

	res, err := r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID, DeviceLabel: "device-a", OriginUserID: int64Ptr(7)})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.True(t, res.Placeholder)
	assert.True(t, res.Degraded)
	assert.Equal(t, aliceID, res.Identity)

	u, err := s.Users.Get(res.UserID)
	require.NoError(t, err)
	assert.Equal(t, "user_7", u.Username)
	assert.Equal(t, domain.PlaceholderBio, domain.StringValue(u.Bio))
	assert.Equal(t, "alice", domain.StringValue(u.OriginalUsername))

	again, err := r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID, DeviceLabel: "device-a"})
	require.NoError(t, err)
	assert.Equal(t, res.UserID, again.UserID, "the identity stays bound to the placeholder")
}

func TestResolve_ErrorWhenPlaceholderFails(t *testing.T) {
	r, s := newResolver(t)
	_, err := s.DB().Exec(`
		CREATE TRIGGER no_users BEFORE INSERT ON users
		BEGIN SELECT RAISE(ABORT, 'users are read-only'); END
	`)
	require.NoError(t, err)

	_, err = r.Resolve(identity.AuthorBundle{DisplayName: "alice", StableIdentity: aliceID})
	var idErr *identity.IdentityError
	require.True(t, errors.As(err, &idErr), "expected IdentityError, got %T", err)
	assert.Equal(t, "alice", idErr.DisplayName)
}
