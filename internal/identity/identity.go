// Package identity maps author references carried by imported wall records
// to local users, binding stable sync identities as it goes.
package identity

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/fingerprint"
	"github.com/lherron/kindwall/internal/store"
)

// maxNameAttempts bounds the numeric suffix search for a free username.
const maxNameAttempts = 1000

// AuthorBundle is the portable description of an author embedded in a snapshot record.
type AuthorBundle struct {
	DisplayName    string
	StableIdentity string
	DeviceLabel    string
	Avatar         string
	Bio            string
	OriginUserID   *int64 // author's local id on the exporting device
}

// EffectiveIdentity returns the identity the bundle resolves under: its
// stable identity, else a placeholder derived from the origin user id, else
// one derived from the display name. Empty when the bundle carries nothing.
func (b AuthorBundle) EffectiveIdentity() string {
	switch {
	case b.StableIdentity != "":
		return b.StableIdentity
	case b.OriginUserID != nil:
		return fingerprint.PlaceholderIdentity(b.DeviceLabel, *b.OriginUserID)
	case strings.TrimSpace(b.DisplayName) != "":
		return fingerprint.PlaceholderIdentityForName(b.DeviceLabel, b.DisplayName)
	}
	return ""
}

// Resolution describes how an author bundle was mapped to a local user.
type Resolution struct {
	UserID      int64
	Identity    string
	Created     bool // a new local user was created
	Linked      bool // an existing user received its first identity
	Placeholder bool // the user stands in for an author of unknown identity
	Degraded    bool // the bundle's identity was bound to a placeholder after creation failed
}

// IdentityError is returned when an author can be neither found nor created.
type IdentityError struct {
	DisplayName string
	Err         error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("failed to resolve author %q: %v", e.DisplayName, e.Err)
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

// Resolver resolves author bundles against the local user table.
type Resolver struct {
	store  *store.Store
	logger *slog.Logger

	// ActorID is recorded on events for users the resolver creates or links.
	ActorID *int64
	// SkipProfileRefresh disables refreshing avatar and bio of already bound users.
	SkipProfileRefresh bool
	// LocalDevice is this installation's device label. Users originating
	// here keep their own profile.
	LocalDevice string
}

// NewResolver creates a resolver. If logger is nil, slog.Default() is used.
func NewResolver(s *store.Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{store: s, logger: logger}
}

// Resolve returns the local user for an author bundle, creating or linking
// one as needed:
//
//  1. identity already bound: reuse that user, refreshing its profile
//  2. same display name, no identity yet, bundle carries a stable identity: link
//  3. otherwise: create a user under the first free name, bound to the identity
//  4. nothing known about the author: create a tagged placeholder user
func (r *Resolver) Resolve(b AuthorBundle) (*Resolution, error) {
	name := strings.TrimSpace(b.DisplayName)
	if name == "" && b.StableIdentity == "" {
		return r.createPlaceholder(b)
	}

	identity := b.EffectiveIdentity()
	if err := domain.ValidateSyncIdentity(identity); err != nil {
		return nil, &IdentityError{DisplayName: b.DisplayName, Err: err}
	}

	existing, err := r.store.Users.FindBySyncUUID(identity)
	if err != nil {
		return nil, &IdentityError{DisplayName: b.DisplayName, Err: err}
	}
	if existing != nil {
		if !r.SkipProfileRefresh && !r.isLocal(existing) {
			r.refreshProfile(existing, b)
		}
		return &Resolution{UserID: existing.ID, Identity: identity, Placeholder: existing.IsPlaceholder()}, nil
	}

	// First-time linking only happens on an incoming stable identity, and
	// only onto a user that has none; a name match alone is not evidence.
	if name != "" && b.StableIdentity != "" {
		local, err := r.store.Users.FindByUsername(name)
		if err != nil {
			return nil, &IdentityError{DisplayName: b.DisplayName, Err: err}
		}
		if local != nil && !local.HasIdentity() {
			bound, err := r.store.Users.BindSyncUUID(r.ActorID, local.ID, identity)
			if err != nil {
				return nil, &IdentityError{DisplayName: b.DisplayName, Err: err}
			}
			if bound {
				r.logger.Info("linked author to existing user",
					slog.String("username", local.Username),
					slog.Int64("user_id", local.ID),
					slog.String("identity", identity))
				return &Resolution{UserID: local.ID, Identity: identity, Linked: true}, nil
			}
		}
	}

	if name == "" {
		// Identity known but no name to show.
		name = "user_" + identity[:8]
	}

	res, err := r.create(b, name, identity, false)
	if err == nil {
		return res, nil
	}
	return r.fallbackPlaceholder(b, err)
}

// fallbackPlaceholder binds the bundle's identity to a tagged placeholder
// user when a regular user could not be created. The original error is
// returned if that fails too.
func (r *Resolver) fallbackPlaceholder(b AuthorBundle, cause error) (*Resolution, error) {
	res, err := r.createPlaceholder(b)
	if err != nil {
		r.logger.Warn("placeholder fallback failed",
			slog.String("author", b.DisplayName),
			slog.String("error", err.Error()))
		return nil, cause
	}
	r.logger.Warn("author bound to placeholder user",
		slog.String("author", b.DisplayName),
		slog.Int64("user_id", res.UserID),
		slog.String("cause", cause.Error()))
	res.Degraded = true
	return res, nil
}

// isLocal reports whether u was created on this device rather than by an
// import. Peers only hold older copies of local profiles.
func (r *Resolver) isLocal(u *domain.User) bool {
	if r.ActorID != nil && u.ID == *r.ActorID {
		return true
	}
	origin := domain.StringValue(u.OriginDevice)
	return origin == "" || (r.LocalDevice != "" && origin == r.LocalDevice)
}

// candidateName returns base with the numeric suffix for attempt, trimming
// base on a rune boundary so the result fits the username limit.
func candidateName(base string, attempt int) string {
	suffix := ""
	if attempt > 1 {
		suffix = "_" + strconv.Itoa(attempt)
	}
	limit := domain.MaxUsernameLength - len(suffix)
	for len(base) > limit {
		_, size := utf8.DecodeLastRuneInString(base)
		base = base[:len(base)-size]
	}
	return base + suffix
}

func (r *Resolver) createPlaceholder(b AuthorBundle) (*Resolution, error) {
	base := "user_unknown"
	if b.OriginUserID != nil {
		base = "user_" + strconv.FormatInt(*b.OriginUserID, 10)
	}
	identity := b.EffectiveIdentity()
	if identity == "" {
		identity = fingerprint.PlaceholderIdentityForName(b.DeviceLabel, "")
	}

	existing, err := r.store.Users.FindBySyncUUID(identity)
	if err != nil {
		return nil, &IdentityError{DisplayName: base, Err: err}
	}
	if existing != nil {
		return &Resolution{UserID: existing.ID, Identity: identity, Placeholder: true}, nil
	}

	b.Bio = domain.PlaceholderBio
	return r.create(b, base, identity, true)
}

func (r *Resolver) create(b AuthorBundle, base, identity string, placeholder bool) (*Resolution, error) {
	for attempt := 1; attempt <= maxNameAttempts; attempt++ {
		name := candidateName(base, attempt)

		taken, err := r.store.Users.UsernameExists(name)
		if err != nil {
			return nil, &IdentityError{DisplayName: b.DisplayName, Err: err}
		}
		if taken {
			continue
		}

		user, err := r.store.Users.Create(r.ActorID, store.CreateUserParams{
			Username:         name,
			SyncUUID:         identity,
			AvatarPath:       b.Avatar,
			Bio:              b.Bio,
			OriginalUsername: b.DisplayName,
			OriginDevice:     b.DeviceLabel,
		})
		if err != nil {
			if !store.IsUniqueViolation(err) {
				return nil, &IdentityError{DisplayName: b.DisplayName, Err: err}
			}
			// Either the name or the identity was taken meanwhile.
			if bound, findErr := r.store.Users.FindBySyncUUID(identity); findErr == nil && bound != nil {
				return &Resolution{UserID: bound.ID, Identity: identity, Placeholder: placeholder}, nil
			}
			continue
		}

		r.logger.Info("created user for imported author",
			slog.String("username", user.Username),
			slog.Int64("user_id", user.ID),
			slog.String("device", b.DeviceLabel),
			slog.Bool("placeholder", placeholder))
		return &Resolution{UserID: user.ID, Identity: identity, Created: true, Placeholder: placeholder}, nil
	}

	return nil, &IdentityError{
		DisplayName: b.DisplayName,
		Err:         fmt.Errorf("no free username for %q after %d attempts", base, maxNameAttempts),
	}
}

// refreshProfile copies non-empty incoming avatar and bio values that differ
// from the local ones. Failures are logged, never returned.
func (r *Resolver) refreshProfile(u *domain.User, b AuthorBundle) {
	var avatar, bio *string
	if b.Avatar != "" && b.Avatar != domain.StringValue(u.AvatarPath) {
		avatar = &b.Avatar
	}
	if b.Bio != "" && b.Bio != domain.StringValue(u.Bio) {
		bio = &b.Bio
	}
	if avatar == nil && bio == nil {
		return
	}

	if err := r.store.Users.UpdateProfile(r.ActorID, u.ID, avatar, bio); err != nil {
		r.logger.Warn("failed to refresh profile",
			slog.Int64("user_id", u.ID),
			slog.String("error", err.Error()))
	}
}
