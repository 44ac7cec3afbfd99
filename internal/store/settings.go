package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// DeviceLabelKey holds the device label recorded when the database was initialized.
const DeviceLabelKey = "device_label"

// SettingsStore keeps installation-wide key/value settings.
type SettingsStore struct {
	store *Store
}

// Get returns the value stored under key and whether it was set.
func (s *SettingsStore) Get(key string) (string, bool, error) {
	var value string
	err := s.store.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetIfAbsent stores value under key unless a value is already present,
// and returns the value in effect afterwards.
func (s *SettingsStore) SetIfAbsent(key, value string) (string, error) {
	if _, err := s.store.db.Exec(
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		key, value,
	); err != nil {
		return "", fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	current, _, err := s.Get(key)
	return current, err
}
