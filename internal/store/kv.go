package store

import (
	"database/sql"
	"errors"
	"time"
)

// GetItem returns the value stored under key. It lets *DB act as the durable
// local storage for the outbox.
func (db *DB) GetItem(key string) (string, bool, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM kv_items WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetItem replaces the value under key.
func (db *DB) SetItem(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO kv_items (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	return err
}

// RemoveItem deletes key.
func (db *DB) RemoveItem(key string) error {
	_, err := db.Exec(`DELETE FROM kv_items WHERE key = ?`, key)
	return err
}
