package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/events"
	"github.com/lherron/kindwall/internal/fingerprint"
)

// CommentStore handles comment persistence operations.
type CommentStore struct {
	store *Store
}

// CreateCommentParams contains parameters for creating a new comment.
type CreateCommentParams struct {
	PostID      int64
	UserID      int64
	Content     string
	CreatedAt   string
	Likes       int64
	IsAnonymous bool
	Fingerprint string
}

const commentColumns = `id, post_id, user_id, content, created_at, likes, is_anonymous, fingerprint`

// Create creates a new comment and logs a comment.created event.
func (cs *CommentStore) Create(actorID *int64, params CreateCommentParams) (*domain.Comment, error) {
	if err := domain.ValidateContent(params.Content); err != nil {
		return nil, err
	}
	if params.Likes < 0 {
		return nil, fmt.Errorf("invalid likes: must not be negative")
	}

	comment := &domain.Comment{
		PostID:      params.PostID,
		UserID:      params.UserID,
		Content:     params.Content,
		CreatedAt:   params.CreatedAt,
		Likes:       params.Likes,
		IsAnonymous: params.IsAnonymous,
	}
	if comment.CreatedAt == "" {
		comment.CreatedAt = cs.store.timestamp()
	}

	err := cs.store.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		fp := params.Fingerprint
		if fp == "" {
			author, err := ensureSyncUUIDTx(tx, ew, actorID, params.UserID)
			if err != nil {
				return err
			}
			fp = fingerprint.Compute(fingerprint.Input{
				AuthorIdentity: author,
				Content:        comment.Content,
				CreatedAt:      comment.CreatedAt,
			})
		}
		comment.Fingerprint = &fp

		res, err := tx.Exec(`
			INSERT INTO wall_comments (post_id, user_id, content, created_at, likes, is_anonymous, fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, comment.PostID, comment.UserID, comment.Content, comment.CreatedAt, comment.Likes, comment.IsAnonymous, fp)
		if err != nil {
			return fmt.Errorf("failed to create comment on post %d: %w", params.PostID, err)
		}

		comment.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get comment id: %w", err)
		}

		return ew.LogCommentCreated(tx, actorID, comment)
	})
	if err != nil {
		return nil, err
	}

	return comment, nil
}

// Get returns the comment with the given local id.
func (cs *CommentStore) Get(id int64) (*domain.Comment, error) {
	c, err := scanComment(cs.store.db.QueryRow(`SELECT `+commentColumns+` FROM wall_comments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: domain.ResourceComment, ID: id}
	}
	return c, err
}

// FindCandidates returns comments on postID whose content and creation timestamp match exactly.
func (cs *CommentStore) FindCandidates(postID int64, content, createdAt string) ([]domain.Comment, error) {
	return cs.query(`SELECT `+commentColumns+` FROM wall_comments WHERE post_id = ? AND content = ? AND created_at = ? ORDER BY id`,
		postID, content, createdAt)
}

// List returns all comments ordered by id.
func (cs *CommentStore) List() ([]domain.Comment, error) {
	return cs.query(`SELECT ` + commentColumns + ` FROM wall_comments ORDER BY id`)
}

// ListByPost returns the comments on one post ordered by id.
func (cs *CommentStore) ListByPost(postID int64) ([]domain.Comment, error) {
	return cs.query(`SELECT `+commentColumns+` FROM wall_comments WHERE post_id = ? ORDER BY id`, postID)
}

// Like records a local like and bumps the comment's counter.
func (cs *CommentStore) Like(userID, commentID int64) (bool, error) {
	return addLike(cs.store, "comment_likes", "comment_id", "wall_comments", domain.ResourceComment, userID, commentID, true)
}

// LinkLike records the (comment, user) like relation without touching the counter.
func (cs *CommentStore) LinkLike(userID, commentID int64) (bool, error) {
	return addLike(cs.store, "comment_likes", "comment_id", "wall_comments", domain.ResourceComment, userID, commentID, false)
}

// HasLike reports whether the user likes the comment.
func (cs *CommentStore) HasLike(userID, commentID int64) (bool, error) {
	return hasLike(cs.store, "comment_likes", "comment_id", userID, commentID)
}

// LikerIdentities maps comment id to the sorted stable identities of its likers.
func (cs *CommentStore) LikerIdentities() (map[int64][]string, error) {
	return likerIdentities(cs.store, "comment_likes", "comment_id")
}

func (cs *CommentStore) query(query string, args ...interface{}) ([]domain.Comment, error) {
	rows, err := cs.store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []domain.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}
	return comments, nil
}

func scanComment(row scanner) (*domain.Comment, error) {
	var c domain.Comment
	var fp sql.NullString
	if err := row.Scan(&c.ID, &c.PostID, &c.UserID, &c.Content, &c.CreatedAt, &c.Likes, &c.IsAnonymous, &fp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan comment: %w", err)
	}
	c.Fingerprint = nullString(fp)
	return &c, nil
}
