package identity

import (
	"fmt"

	"github.com/lherron/kindwall/internal/domain"
)

// Summary reports how many local users are ready to sync.
type Summary struct {
	TotalUsers        int  `json:"total_users" yaml:"total_users"`
	UsersWithIdentity int  `json:"users_with_identity" yaml:"users_with_identity"`
	SyncReady         bool `json:"sync_ready" yaml:"sync_ready"`
}

// SyncInfo is the sync-relevant part of one user record.
type SyncInfo struct {
	UserID           int64  `json:"user_id" yaml:"user_id"`
	Username         string `json:"username" yaml:"username"`
	SyncUUID         string `json:"sync_uuid,omitempty" yaml:"sync_uuid,omitempty"`
	OriginalUsername string `json:"original_username,omitempty" yaml:"original_username,omitempty"`
	OriginDevice     string `json:"origin_device,omitempty" yaml:"origin_device,omitempty"`
	Placeholder      bool   `json:"placeholder" yaml:"placeholder"`
}

// EnsureIdentity returns the user's stable identity, minting and persisting
// one the first time.
func (r *Resolver) EnsureIdentity(userID int64) (string, error) {
	id, err := r.store.Users.EnsureSyncUUID(r.ActorID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to ensure identity for user %d: %w", userID, err)
	}
	return id, nil
}

// Summary counts users and users with a stable identity.
func (r *Resolver) Summary() (Summary, error) {
	s, err := r.store.Users.Summary()
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		TotalUsers:        s.TotalUsers,
		UsersWithIdentity: s.UsersWithIdentity,
		SyncReady:         s.UsersWithIdentity > 0,
	}, nil
}

// Info returns the sync details of one user.
func (r *Resolver) Info(userID int64) (*SyncInfo, error) {
	u, err := r.store.Users.Get(userID)
	if err != nil {
		return nil, err
	}
	return &SyncInfo{
		UserID:           u.ID,
		Username:         u.Username,
		SyncUUID:         domain.StringValue(u.SyncUUID),
		OriginalUsername: domain.StringValue(u.OriginalUsername),
		OriginDevice:     domain.StringValue(u.OriginDevice),
		Placeholder:      u.IsPlaceholder(),
	}, nil
}
