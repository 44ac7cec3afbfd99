package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/events"
	"github.com/lherron/kindwall/internal/fingerprint"
)

// PostStore handles wall post persistence operations.
type PostStore struct {
	store *Store
}

// CreatePostParams contains parameters for creating a new post.
type CreatePostParams struct {
	UserID      int64
	Content     string
	ImageData   []byte
	CreatedAt   string // defaults to now
	Likes       int64  // copied counter for imported posts
	IsAnonymous bool
	Fingerprint string // stored verbatim when set; computed from the author's identity otherwise
}

// WallStats summarizes wall activity.
type WallStats struct {
	TotalPosts int     `json:"total_posts"`
	TotalLikes int     `json:"total_likes"`
	LatestPost *string `json:"latest_post"`
}

const postColumns = `id, user_id, content, image_data, created_at, likes, is_anonymous, fingerprint`

// Create creates a new post and logs a post.created event. When no
// fingerprint is given the author's stable identity is ensured first so the
// fingerprint never has to change afterwards.
func (ps *PostStore) Create(actorID *int64, params CreatePostParams) (*domain.Post, error) {
	if err := domain.ValidateContent(params.Content); err != nil {
		return nil, err
	}
	if params.Likes < 0 {
		return nil, fmt.Errorf("invalid likes: must not be negative")
	}

	post := &domain.Post{
		UserID:      params.UserID,
		Content:     params.Content,
		ImageData:   params.ImageData,
		CreatedAt:   params.CreatedAt,
		Likes:       params.Likes,
		IsAnonymous: params.IsAnonymous,
	}
	if post.CreatedAt == "" {
		post.CreatedAt = ps.store.timestamp()
	}

	err := ps.store.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		fp := params.Fingerprint
		if fp == "" {
			author, err := ensureSyncUUIDTx(tx, ew, actorID, params.UserID)
			if err != nil {
				return err
			}
			fp = fingerprint.Compute(fingerprint.Input{
				AuthorIdentity: author,
				Content:        post.Content,
				CreatedAt:      post.CreatedAt,
				Image:          post.ImageData,
			})
		}
		post.Fingerprint = &fp

		res, err := tx.Exec(`
			INSERT INTO wall_posts (user_id, content, image_data, created_at, likes, is_anonymous, fingerprint)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, post.UserID, post.Content, post.ImageData, post.CreatedAt, post.Likes, post.IsAnonymous, fp)
		if err != nil {
			return fmt.Errorf("failed to create post: %w", err)
		}

		post.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get post id: %w", err)
		}

		return ew.LogPostCreated(tx, actorID, post)
	})
	if err != nil {
		return nil, err
	}

	return post, nil
}

// Get returns the post with the given local id.
func (ps *PostStore) Get(id int64) (*domain.Post, error) {
	post, err := scanPost(ps.store.db.QueryRow(`SELECT `+postColumns+` FROM wall_posts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: domain.ResourcePost, ID: id}
	}
	return post, err
}

// FindCandidates returns posts whose content and creation timestamp match exactly.
func (ps *PostStore) FindCandidates(content, createdAt string) ([]domain.Post, error) {
	return ps.query(`SELECT `+postColumns+` FROM wall_posts WHERE content = ? AND created_at = ? ORDER BY id`, content, createdAt)
}

// FindByFingerprint returns the oldest post carrying a stored fingerprint, or nil.
func (ps *PostStore) FindByFingerprint(fp string) (*domain.Post, error) {
	post, err := scanPost(ps.store.db.QueryRow(`SELECT `+postColumns+` FROM wall_posts WHERE fingerprint = ? ORDER BY id LIMIT 1`, fp))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return post, err
}

// List returns all posts ordered by id.
func (ps *PostStore) List() ([]domain.Post, error) {
	return ps.query(`SELECT ` + postColumns + ` FROM wall_posts ORDER BY id`)
}

// Like records a local like and bumps the post's counter. It is a no-op
// returning false when the user already likes the post.
func (ps *PostStore) Like(userID, postID int64) (bool, error) {
	return addLike(ps.store, "post_likes", "post_id", "wall_posts", domain.ResourcePost, userID, postID, true)
}

// LinkLike records the (post, user) like relation without touching the
// counter, for likes already reflected in an imported counter.
func (ps *PostStore) LinkLike(userID, postID int64) (bool, error) {
	return addLike(ps.store, "post_likes", "post_id", "wall_posts", domain.ResourcePost, userID, postID, false)
}

// HasLike reports whether the user likes the post.
func (ps *PostStore) HasLike(userID, postID int64) (bool, error) {
	return hasLike(ps.store, "post_likes", "post_id", userID, postID)
}

// LikerIdentities maps post id to the sorted stable identities of users who
// like it. Users without an identity are omitted.
func (ps *PostStore) LikerIdentities() (map[int64][]string, error) {
	return likerIdentities(ps.store, "post_likes", "post_id")
}

// Stats returns post and like totals plus the newest creation timestamp.
func (ps *PostStore) Stats() (*WallStats, error) {
	var stats WallStats
	var latest sql.NullString
	err := ps.store.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM wall_posts),
			(SELECT COUNT(*) FROM post_likes),
			(SELECT created_at FROM wall_posts ORDER BY created_at DESC LIMIT 1)
	`).Scan(&stats.TotalPosts, &stats.TotalLikes, &latest)
	if err != nil {
		return nil, fmt.Errorf("failed to read wall stats: %w", err)
	}
	stats.LatestPost = nullString(latest)
	return &stats, nil
}

func (ps *PostStore) query(query string, args ...interface{}) ([]domain.Post, error) {
	rows, err := ps.store.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}
	return posts, nil
}

func scanPost(row scanner) (*domain.Post, error) {
	var p domain.Post
	var fp sql.NullString
	if err := row.Scan(&p.ID, &p.UserID, &p.Content, &p.ImageData, &p.CreatedAt, &p.Likes, &p.IsAnonymous, &fp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}
	p.Fingerprint = nullString(fp)
	return &p, nil
}
