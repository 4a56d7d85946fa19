package store

import (
	"database/sql"
	"time"
)

// UpsertChat inserts or updates a chat record. last_message_at only ever
// moves forward, so re-ingesting an older snapshot never rewinds a chat.
func (db *DB) UpsertChat(c *Chat) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO chats (jid, name, is_group, last_message_at, last_message_preview, avatar_url, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			is_group = excluded.is_group,
			last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= chats.last_message_at AND excluded.last_message_preview != ''
				THEN excluded.last_message_preview ELSE chats.last_message_preview END,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE chats.avatar_url END,
			updated_at = excluded.updated_at`,
		c.JID, c.Name, c.IsGroup, c.LastMessageAt, c.LastMessagePreview, c.AvatarURL, now)
	return err
}

// SetChatAvatar patches only the avatar column of a chat.
func (db *DB) SetChatAvatar(jid, url string) error {
	_, err := db.Exec(`UPDATE chats SET avatar_url = ?, updated_at = ? WHERE jid = ?`,
		url, time.Now().UnixMilli(), jid)
	return err
}

// ListChats returns chats sorted by last message timestamp descending.
// Names fall back through contact push_name/name to the bare JID.
func (db *DB) ListChats(limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT c.jid,
			COALESCE(NULLIF(c.name,''), NULLIF(ct.name,''), NULLIF(ct.push_name,''), c.jid) AS display_name,
			c.is_group, c.last_message_at, c.last_message_preview, c.avatar_url
		FROM chats c
		LEFT JOIN contacts ct ON c.jid = ct.jid
		WHERE c.jid NOT LIKE '%@broadcast'
		ORDER BY c.last_message_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.JID, &c.Name, &c.IsGroup, &c.LastMessageAt, &c.LastMessagePreview, &c.AvatarURL); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by JID, nil when absent.
func (db *DB) GetChat(jid string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT c.jid,
			COALESCE(NULLIF(c.name,''), NULLIF(ct.name,''), NULLIF(ct.push_name,''), c.jid) AS display_name,
			c.is_group, c.last_message_at, c.last_message_preview, c.avatar_url
		FROM chats c
		LEFT JOIN contacts ct ON c.jid = ct.jid
		WHERE c.jid = ?`, jid).
		Scan(&c.JID, &c.Name, &c.IsGroup, &c.LastMessageAt, &c.LastMessagePreview, &c.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}
