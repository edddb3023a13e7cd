package store

import (
	"strings"
	"time"
)

// UpsertMessage inserts or updates a message (idempotent on id).
// A cached "delivered" status is never downgraded by a later write.
func (db *DB) UpsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO messages (id, content, sender_id, sender_alias, status, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			sender_alias = excluded.sender_alias,
			status = CASE WHEN messages.status = 'delivered' THEN messages.status ELSE excluded.status END`,
		m.ID, m.Content, m.SenderID, m.SenderAlias, m.Status, m.Timestamp, now)
	return err
}

// ListMessages returns up to limit messages older than beforeTs, oldest first.
func (db *DB) ListMessages(beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.Query(`
		SELECT id, content, sender_id, sender_alias, status, timestamp FROM (
			SELECT id, content, sender_id, sender_alias, status, timestamp
			FROM messages
			WHERE timestamp < ?
			ORDER BY timestamp DESC, id DESC
			LIMIT ?
		) ORDER BY timestamp ASC, id ASC`, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Content, &m.SenderID, &m.SenderAlias, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// SearchMessages returns cached messages whose content contains query, newest first.
func (db *DB) SearchMessages(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, content, sender_id, sender_alias, status, timestamp
		FROM messages
		WHERE content LIKE '%' || ? || '%' ESCAPE '\'
		ORDER BY timestamp DESC
		LIMIT ?`, escapeLike(query), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Content, &m.SenderID, &m.SenderAlias, &m.Status, &m.Timestamp); err != nil {
			return nil, err
		}
		results = append(results, SearchResult{Message: m, Snippet: snippet(m.Content, query, 24)})
	}
	return results, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// snippet returns the match with up to radius bytes of context on each side.
func snippet(content, query string, radius int) string {
	idx := strings.Index(strings.ToLower(content), strings.ToLower(query))
	if idx < 0 {
		return content
	}
	start := max(idx-radius, 0)
	end := min(idx+len(query)+radius, len(content))
	out := content[start:end]
	if start > 0 {
		out = "…" + out
	}
	if end < len(content) {
		out += "…"
	}
	return out
}
