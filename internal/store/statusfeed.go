package store

import "time"

// UpsertStatusUpdate records a status-broadcast post (idempotent on
// sender_jid + msg_id). Status posts live in their own table: they expire
// and are viewed per sender, not as conversations.
func (db *DB) UpsertStatusUpdate(s *StatusUpdate) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO status_updates (sender_jid, msg_id, body, message_type, media_url, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sender_jid, msg_id) DO UPDATE SET
			body = excluded.body,
			media_url = CASE WHEN excluded.media_url != '' THEN excluded.media_url ELSE status_updates.media_url END`,
		s.SenderJID, s.MsgID, s.Body, s.MessageType, s.MediaURL, s.Timestamp, now)
	return err
}

// ListStatusUpdates returns posts for one sender, newest first.
func (db *DB) ListStatusUpdates(senderJID string, limit int) ([]StatusUpdate, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, sender_jid, msg_id, body, message_type, media_url, timestamp
		FROM status_updates
		WHERE sender_jid = ?
		ORDER BY timestamp DESC
		LIMIT ?`, senderJID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var updates []StatusUpdate
	for rows.Next() {
		var s StatusUpdate
		if err := rows.Scan(&s.ID, &s.SenderJID, &s.MsgID, &s.Body, &s.MessageType, &s.MediaURL, &s.Timestamp); err != nil {
			return nil, err
		}
		updates = append(updates, s)
	}
	return updates, rows.Err()
}

// PruneStatusUpdates removes posts older than the cutoff (status posts
// expire after 24h on the network).
func (db *DB) PruneStatusUpdates(olderThan int64) (int64, error) {
	res, err := db.Exec(`DELETE FROM status_updates WHERE timestamp < ?`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
