package events

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lherron/kindwall/internal/domain"
)

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(tx *sql.Tx, event *domain.Event) error {
	if err := domain.ValidateResourceType(string(event.ResourceType)); err != nil {
		return err
	}

	query := `
		INSERT INTO event_log (actor_user_id, resource_type, resource_id, event_type, payload)
		VALUES (?, ?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.Exec(query, event.ActorUserID, event.ResourceType, event.ResourceID, event.EventType, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogUserCreated logs a user creation event
func (w *Writer) LogUserCreated(tx *sql.Tx, actorID *int64, user *domain.User) error {
	return w.logWithPayload(tx, actorID, domain.ResourceUser, &user.ID, "user.created", map[string]interface{}{
		"username":      user.Username,
		"sync_uuid":     user.SyncUUID,
		"origin_device": user.OriginDevice,
	})
}

// LogIdentityBound logs the first binding of a stable identity to a user
func (w *Writer) LogIdentityBound(tx *sql.Tx, actorID *int64, userID int64, syncUUID string) error {
	return w.logWithPayload(tx, actorID, domain.ResourceUser, &userID, "user.identity_bound", map[string]interface{}{
		"sync_uuid": syncUUID,
	})
}

// LogProfileRefreshed logs a profile refresh carried in from a snapshot
func (w *Writer) LogProfileRefreshed(tx *sql.Tx, actorID *int64, userID int64, changes map[string]interface{}) error {
	return w.logWithPayload(tx, actorID, domain.ResourceUser, &userID, "user.profile_refreshed", changes)
}

// LogPostCreated logs a post creation event
func (w *Writer) LogPostCreated(tx *sql.Tx, actorID *int64, post *domain.Post) error {
	return w.logWithPayload(tx, actorID, domain.ResourcePost, &post.ID, "post.created", map[string]interface{}{
		"user_id":     post.UserID,
		"fingerprint": post.Fingerprint,
	})
}

// LogCommentCreated logs a comment creation event
func (w *Writer) LogCommentCreated(tx *sql.Tx, actorID *int64, comment *domain.Comment) error {
	return w.logWithPayload(tx, actorID, domain.ResourceComment, &comment.ID, "comment.created", map[string]interface{}{
		"post_id":     comment.PostID,
		"user_id":     comment.UserID,
		"fingerprint": comment.Fingerprint,
	})
}

// LogLikeCreated logs a like on a post or comment
func (w *Writer) LogLikeCreated(tx *sql.Tx, userID int64, target domain.ResourceType, targetID int64) error {
	return w.logWithPayload(tx, &userID, domain.ResourceLike, &targetID, "like.created", map[string]interface{}{
		"target": target,
	})
}

// LogSnapshotImported logs a completed merge with its statistics
func (w *Writer) LogSnapshotImported(tx *sql.Tx, actorID *int64, summary interface{}) error {
	return w.logWithPayload(tx, actorID, domain.ResourceSnapshot, nil, "snapshot.imported", summary)
}

func (w *Writer) logWithPayload(tx *sql.Tx, actorID *int64, rt domain.ResourceType, resourceID *int64, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", eventType, err)
	}

	payloadStr := string(data)
	event := &domain.Event{
		ActorUserID:  actorID,
		ResourceType: rt,
		ResourceID:   resourceID,
		EventType:    eventType,
		Payload:      &payloadStr,
	}

	return w.LogEvent(tx, event)
}

// getExecutor returns the appropriate executor (tx or db)
func (w *Writer) getExecutor(tx *sql.Tx) interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}
