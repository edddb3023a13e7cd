package session

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/matheus3301/driftchat/internal/kv"
)

// IdentityKey is the local storage key holding the client's identity.
const IdentityKey = "driftchat.identity"

// Identity is who this client sends messages as.
type Identity struct {
	ID    string `json:"id"`
	Alias string `json:"alias"`
}

// LoadIdentity returns the stored identity, creating one on first use.
// A non-empty alias replaces the stored alias; the id never changes.
func LoadIdentity(storage kv.Storage, alias string) (Identity, error) {
	var id Identity
	raw, ok, err := storage.GetItem(IdentityKey)
	if err != nil {
		return Identity{}, fmt.Errorf("read identity: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &id); err != nil {
			return Identity{}, fmt.Errorf("decode identity: %w", err)
		}
	}

	alias = strings.TrimSpace(alias)
	dirty := false
	if id.ID == "" {
		id.ID = uuid.NewString()
		dirty = true
	}
	if alias != "" && alias != id.Alias {
		if err := ValidateAlias(alias); err != nil {
			return Identity{}, err
		}
		id.Alias = alias
		dirty = true
	}
	if id.Alias == "" {
		id.Alias = "anon-" + id.ID[:8]
		dirty = true
	}

	if dirty {
		data, err := json.Marshal(id)
		if err != nil {
			return Identity{}, fmt.Errorf("encode identity: %w", err)
		}
		if err := storage.SetItem(IdentityKey, string(data)); err != nil {
			return Identity{}, fmt.Errorf("save identity: %w", err)
		}
	}
	return id, nil
}
