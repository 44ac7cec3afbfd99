package domain

// ResourceType names the kind of row an event refers to
type ResourceType string

const (
	ResourceUser     ResourceType = "user"
	ResourcePost     ResourceType = "post"
	ResourceComment  ResourceType = "comment"
	ResourceLike     ResourceType = "like"
	ResourceSnapshot ResourceType = "snapshot"
)

// PlaceholderBio tags users synthesized for authors whose identity could not be determined.
const PlaceholderBio = "synced user (migrated, incomplete identity)"

// User represents a local account that can author wall content
type User struct {
	ID               int64   `json:"id" db:"id"`
	Username         string  `json:"username" db:"username"`
	AvatarPath       *string `json:"avatar_path,omitempty" db:"avatar_path"`
	Bio              *string `json:"bio,omitempty" db:"bio"`
	SyncUUID         *string `json:"sync_uuid,omitempty" db:"sync_uuid"`
	OriginalUsername *string `json:"original_username,omitempty" db:"original_username"`
	OriginDevice     *string `json:"origin_device,omitempty" db:"origin_device"`
	CreatedAt        string  `json:"created_at" db:"created_at"`
}

// HasIdentity reports whether a stable sync identity is bound to the user
func (u *User) HasIdentity() bool {
	return u.SyncUUID != nil && *u.SyncUUID != ""
}

// IsPlaceholder reports whether the user was synthesized for an unknown author
func (u *User) IsPlaceholder() bool {
	return u.Bio != nil && *u.Bio == PlaceholderBio
}

// Post represents a kindness wall post
type Post struct {
	ID          int64   `json:"id" db:"id"`
	UserID      int64   `json:"user_id" db:"user_id"`
	Content     string  `json:"content" db:"content"`
	ImageData   []byte  `json:"image_data,omitempty" db:"image_data"`
	CreatedAt   string  `json:"created_at" db:"created_at"` // exact text form, compared verbatim
	Likes       int64   `json:"likes" db:"likes"`
	IsAnonymous bool    `json:"is_anonymous" db:"is_anonymous"`
	Fingerprint *string `json:"fingerprint,omitempty" db:"fingerprint"` // nil on legacy rows
}

// Comment represents a comment on a wall post
type Comment struct {
	ID          int64   `json:"id" db:"id"`
	PostID      int64   `json:"post_id" db:"post_id"`
	UserID      int64   `json:"user_id" db:"user_id"`
	Content     string  `json:"content" db:"content"`
	CreatedAt   string  `json:"created_at" db:"created_at"`
	Likes       int64   `json:"likes" db:"likes"`
	IsAnonymous bool    `json:"is_anonymous" db:"is_anonymous"`
	Fingerprint *string `json:"fingerprint,omitempty" db:"fingerprint"`
}

// Event represents an event in the event log
type Event struct {
	ID           int64        `json:"id" db:"id"`
	Timestamp    string       `json:"timestamp" db:"timestamp"`
	ActorUserID  *int64       `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ResourceType ResourceType `json:"resource_type" db:"resource_type"`
	ResourceID   *int64       `json:"resource_id,omitempty" db:"resource_id"`
	EventType    string       `json:"event_type" db:"event_type"`
	Payload      *string      `json:"payload,omitempty" db:"payload"` // JSON
}

// StringValue dereferences s, returning "" for nil
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StringPtr returns nil for the empty string
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
