package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB is a session's driftchat.db: the cached message history shown on
// startup and the kv_items table backing the offline queue and identity.
type DB struct {
	*sql.DB
}

// Open opens path in WAL mode. The busy timeout lets the outbox CLI read the
// queue while a chat process holds a write.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open driftchat db %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping driftchat db %s: %w", path, err)
	}
	return &DB{db}, nil
}
