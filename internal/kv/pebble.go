package kv

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
)

// Pebble is a Storage backed by a PebbleDB directory. Writes are synced so a
// crash right after SetItem never loses the value.
type Pebble struct {
	db *pebble.DB
}

// OpenPebble opens (or creates) a pebble store in dir.
func OpenPebble(dir string) (*Pebble, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create pebble dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) GetItem(key string) (string, bool, error) {
	data, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pebble get %q: %w", key, err)
	}
	defer func() { _ = closer.Close() }()
	// data is only valid until closer.Close.
	return string(data), true, nil
}

func (p *Pebble) SetItem(key, value string) error {
	if err := p.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("pebble set %q: %w", key, err)
	}
	return nil
}

func (p *Pebble) RemoveItem(key string) error {
	if err := p.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("pebble delete %q: %w", key, err)
	}
	return nil
}

// Close closes the underlying database.
func (p *Pebble) Close() error {
	return p.db.Close()
}
