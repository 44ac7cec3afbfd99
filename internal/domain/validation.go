package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxUsernameLength bounds display names accepted from local input and snapshots
const MaxUsernameLength = 64

// TimestampLayouts are the creation timestamp forms accepted on the wall.
// Store defaults produce the first; older installations wrote the second.
var TimestampLayouts = []string{
	"2006-01-02T15:04:05Z",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
}

// ValidateSyncIdentity validates a stable sync identity (canonical lowercase UUID, any version)
func ValidateSyncIdentity(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != id {
		return fmt.Errorf("invalid sync identity %q: must be a lowercase hyphenated UUID", id)
	}
	return nil
}

// ValidateUsername validates a display name
func ValidateUsername(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("invalid username: must not be empty")
	}
	if len(name) > MaxUsernameLength {
		return fmt.Errorf("invalid username: must be at most %d bytes", MaxUsernameLength)
	}
	return nil
}

// ValidateContent validates post and comment text
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("invalid content: must not be empty")
	}
	return nil
}

// ValidateResourceType validates an event resource type
func ValidateResourceType(resourceType string) error {
	switch ResourceType(resourceType) {
	case ResourceUser, ResourcePost, ResourceComment, ResourceLike, ResourceSnapshot:
		return nil
	default:
		return fmt.Errorf("invalid resource type: must be one of: user, post, comment, like, snapshot")
	}
}

// ValidateTimestamp validates and parses a creation timestamp in any accepted layout
func ValidateTimestamp(s string) (time.Time, error) {
	for _, layout := range TimestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp format %q: expected ISO8601", s)
}

// NotFoundError is returned when a row looked up by local id does not exist
type NotFoundError struct {
	Resource ResourceType
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %d", e.Resource, e.ID)
}
