package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/events"
)

// UserStore handles user persistence operations.
type UserStore struct {
	store *Store
}

// CreateUserParams contains parameters for creating a new user.
type CreateUserParams struct {
	Username         string
	SyncUUID         string // optional: bind a stable identity at creation
	AvatarPath       string
	Bio              string
	OriginalUsername string // display name as seen on the origin device
	OriginDevice     string
}

// IdentitySummary counts users and how many carry a stable identity.
type IdentitySummary struct {
	TotalUsers        int `json:"total_users"`
	UsersWithIdentity int `json:"users_with_identity"`
}

const userColumns = `id, username, avatar_path, bio, sync_uuid, original_username, origin_device, created_at`

// Create creates a new user and logs a user.created event.
func (us *UserStore) Create(actorID *int64, params CreateUserParams) (*domain.User, error) {
	if err := domain.ValidateUsername(params.Username); err != nil {
		return nil, err
	}
	if params.SyncUUID != "" {
		if err := domain.ValidateSyncIdentity(params.SyncUUID); err != nil {
			return nil, err
		}
	}

	user := &domain.User{
		Username:         params.Username,
		AvatarPath:       domain.StringPtr(params.AvatarPath),
		Bio:              domain.StringPtr(params.Bio),
		SyncUUID:         domain.StringPtr(params.SyncUUID),
		OriginalUsername: domain.StringPtr(params.OriginalUsername),
		OriginDevice:     domain.StringPtr(params.OriginDevice),
		CreatedAt:        us.store.timestamp(),
	}

	err := us.store.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.Exec(`
			INSERT INTO users (username, avatar_path, bio, sync_uuid, original_username, origin_device, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, user.Username, user.AvatarPath, user.Bio, user.SyncUUID, user.OriginalUsername, user.OriginDevice, user.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to create user %q: %w", params.Username, err)
		}

		user.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get user id: %w", err)
		}

		return ew.LogUserCreated(tx, actorID, user)
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// Get returns the user with the given local id.
func (us *UserStore) Get(id int64) (*domain.User, error) {
	row := us.store.db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Resource: domain.ResourceUser, ID: id}
	}
	return user, err
}

// FindByUsername returns the user with exactly this username, or nil.
func (us *UserStore) FindByUsername(username string) (*domain.User, error) {
	return us.findOne(`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
}

// FindBySyncUUID returns the user bound to a stable identity, or nil.
func (us *UserStore) FindBySyncUUID(syncUUID string) (*domain.User, error) {
	return us.findOne(`SELECT `+userColumns+` FROM users WHERE sync_uuid = ?`, syncUUID)
}

// UsernameExists reports whether a username is taken.
func (us *UserStore) UsernameExists(username string) (bool, error) {
	var n int
	if err := us.store.db.QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check username %q: %w", username, err)
	}
	return n > 0, nil
}

// List returns all users ordered by id.
func (us *UserStore) List() ([]domain.User, error) {
	rows, err := us.store.db.Query(`SELECT ` + userColumns + ` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// BindSyncUUID binds a stable identity to a user that has none yet.
// It reports false without error when the user already carries an identity.
func (us *UserStore) BindSyncUUID(actorID *int64, userID int64, syncUUID string) (bool, error) {
	if err := domain.ValidateSyncIdentity(syncUUID); err != nil {
		return false, err
	}

	var bound bool
	err := us.store.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		var err error
		bound, err = bindSyncUUIDTx(tx, ew, actorID, userID, syncUUID)
		return err
	})
	return bound, err
}

// EnsureSyncUUID returns the user's stable identity, minting and persisting
// one on first use. Repeated calls return the same value.
func (us *UserStore) EnsureSyncUUID(actorID *int64, userID int64) (string, error) {
	var id string
	err := us.store.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		var err error
		id, err = ensureSyncUUIDTx(tx, ew, actorID, userID)
		return err
	})
	return id, err
}

// UpdateProfile sets the avatar and bio fields that are non-nil.
func (us *UserStore) UpdateProfile(actorID *int64, userID int64, avatarPath, bio *string) error {
	changes := map[string]interface{}{}
	if avatarPath != nil {
		changes["avatar_path"] = *avatarPath
	}
	if bio != nil {
		changes["bio"] = *bio
	}
	if len(changes) == 0 {
		return nil
	}

	return us.store.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.Exec(`
			UPDATE users SET avatar_path = COALESCE(?, avatar_path), bio = COALESCE(?, bio)
			WHERE id = ?
		`, avatarPath, bio, userID)
		if err != nil {
			return fmt.Errorf("failed to update profile for user %d: %w", userID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return &domain.NotFoundError{Resource: domain.ResourceUser, ID: userID}
		}
		return ew.LogProfileRefreshed(tx, actorID, userID, changes)
	})
}

// Summary counts users and users with a stable identity.
func (us *UserStore) Summary() (IdentitySummary, error) {
	var s IdentitySummary
	err := us.store.db.QueryRow(`SELECT COUNT(*), COUNT(sync_uuid) FROM users`).Scan(&s.TotalUsers, &s.UsersWithIdentity)
	if err != nil {
		return s, fmt.Errorf("failed to summarize users: %w", err)
	}
	return s, nil
}

func (us *UserStore) findOne(query string, arg interface{}) (*domain.User, error) {
	user, err := scanUser(us.store.db.QueryRow(query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func bindSyncUUIDTx(tx *sql.Tx, ew *events.Writer, actorID *int64, userID int64, syncUUID string) (bool, error) {
	res, err := tx.Exec(`UPDATE users SET sync_uuid = ? WHERE id = ? AND sync_uuid IS NULL`, syncUUID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to bind identity to user %d: %w", userID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to bind identity to user %d: %w", userID, err)
	}
	if n == 0 {
		return false, nil
	}
	if err := ew.LogIdentityBound(tx, actorID, userID, syncUUID); err != nil {
		return false, err
	}
	return true, nil
}

func ensureSyncUUIDTx(tx *sql.Tx, ew *events.Writer, actorID *int64, userID int64) (string, error) {
	current, err := syncUUIDTx(tx, userID)
	if err != nil {
		return "", err
	}
	if current != "" {
		return current, nil
	}

	minted := uuid.NewString()
	bound, err := bindSyncUUIDTx(tx, ew, actorID, userID, minted)
	if err != nil {
		return "", err
	}
	if !bound {
		// Bound concurrently; the stored value wins.
		return syncUUIDTx(tx, userID)
	}
	return minted, nil
}

func syncUUIDTx(tx *sql.Tx, userID int64) (string, error) {
	var current sql.NullString
	err := tx.QueryRow(`SELECT sync_uuid FROM users WHERE id = ?`, userID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &domain.NotFoundError{Resource: domain.ResourceUser, ID: userID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read identity of user %d: %w", userID, err)
	}
	return current.String, nil
}

func scanUser(row scanner) (*domain.User, error) {
	var u domain.User
	var avatar, bio, syncUUID, original, device sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &avatar, &bio, &syncUUID, &original, &device, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	u.AvatarPath = nullString(avatar)
	u.Bio = nullString(bio)
	u.SyncUUID = nullString(syncUUID)
	u.OriginalUsername = nullString(original)
	u.OriginDevice = nullString(device)
	return &u, nil
}
