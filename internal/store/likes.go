package store

import (
	"database/sql"
	"fmt"

	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/events"
)

// addLike inserts a like relation, ignoring an existing (target, user) pair.
// Table and column names are package constants, never caller input.
func addLike(s *Store, table, column, targetTable string, target domain.ResourceType, userID, targetID int64, bumpCounter bool) (bool, error) {
	var inserted bool
	err := s.withTx(func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.Exec(
			`INSERT INTO `+table+` (`+column+`, user_id, created_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
			targetID, userID, s.timestamp(),
		)
		if err != nil {
			return fmt.Errorf("failed to like %s %d: %w", target, targetID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to like %s %d: %w", target, targetID, err)
		}
		if n == 0 {
			return nil
		}
		inserted = true

		if bumpCounter {
			if _, err := tx.Exec(`UPDATE `+targetTable+` SET likes = likes + 1 WHERE id = ?`, targetID); err != nil {
				return fmt.Errorf("failed to bump like counter of %s %d: %w", target, targetID, err)
			}
		}

		return ew.LogLikeCreated(tx, userID, target, targetID)
	})
	return inserted, err
}

func hasLike(s *Store, table, column string, userID, targetID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM `+table+` WHERE `+column+` = ? AND user_id = ?`, targetID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check like: %w", err)
	}
	return n > 0, nil
}

func likerIdentities(s *Store, table, column string) (map[int64][]string, error) {
	rows, err := s.db.Query(`
		SELECT l.` + column + `, u.sync_uuid
		FROM ` + table + ` l
		JOIN users u ON u.id = l.user_id
		WHERE u.sync_uuid IS NOT NULL
		ORDER BY l.` + column + `, u.sync_uuid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query likes: %w", err)
	}
	defer rows.Close()

	likers := make(map[int64][]string)
	for rows.Next() {
		var targetID int64
		var identity string
		if err := rows.Scan(&targetID, &identity); err != nil {
			return nil, fmt.Errorf("failed to scan like: %w", err)
		}
		likers[targetID] = append(likers[targetID], identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating likes: %w", err)
	}
	return likers, nil
}
