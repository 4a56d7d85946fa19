package sync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovidiomatos/waweb/internal/bus"
	"github.com/ovidiomatos/waweb/internal/model"
	"github.com/ovidiomatos/waweb/internal/store"
)

// statusTTL bounds how long status-broadcast posts are kept. The provider
// expires them after a day; the snapshot follows.
const statusTTL = 24 * time.Hour

// Engine ingests inbound provider events into the snapshot store so that
// late-joining clients can be replayed without a provider round-trip.
// All ingestion is idempotent: re-delivered events land on upserts.
type Engine struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		bus:    b,
		logger: logger,
	}
}

// Start subscribes to inbound WhatsApp events on the bus.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("wa.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case "wa.message":
		msg, ok := evt.Payload.(model.Message)
		if !ok {
			return
		}
		if err := e.IngestMessage(msg); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", msg.ID))
		}
	case "wa.chat_snapshot":
		chats, ok := evt.Payload.([]store.Chat)
		if !ok {
			return
		}
		if err := e.IngestChats(chats); err != nil {
			e.logger.Error("failed to ingest chat snapshot", zap.Error(err), zap.Int("count", len(chats)))
		}
	case "wa.history_batch":
		msgs, ok := evt.Payload.([]store.Message)
		if !ok {
			return
		}
		if err := e.IngestHistoryBatch(msgs); err != nil {
			e.logger.Error("failed to ingest history batch", zap.Error(err), zap.Int("count", len(msgs)))
		} else {
			e.logger.Info("history batch ingested", zap.Int("messages", len(msgs)))
		}
	case "wa.contacts":
		contacts, ok := evt.Payload.([]store.Contact)
		if !ok {
			return
		}
		if err := e.db.BulkUpsertContacts(contacts); err != nil {
			e.logger.Error("failed to ingest contacts", zap.Error(err), zap.Int("count", len(contacts)))
		}
	case "wa.status_update":
		su, ok := evt.Payload.(model.StatusUpdate)
		if !ok {
			return
		}
		if err := e.IngestStatusUpdate(su); err != nil {
			e.logger.Error("failed to ingest status update", zap.Error(err), zap.String("sender", su.SenderID))
		}
	case "wa.receipt":
		r, ok := evt.Payload.(model.Receipt)
		if !ok {
			return
		}
		if err := e.db.MarkMessagesStatus(r.ChatID, r.MessageIDs, r.Kind); err != nil {
			e.logger.Error("failed to mark receipt", zap.Error(err), zap.String("chat", r.ChatID))
		}
	}
}

// IngestMessage processes a single live message into the store.
func (e *Engine) IngestMessage(msg model.Message) error {
	chatJID := msg.Key.RemoteJID

	if err := e.db.UpsertChat(&store.Chat{
		JID:                chatJID,
		IsGroup:            model.IsGroupJID(chatJID),
		LastMessageAt:      msg.Timestamp,
		LastMessagePreview: truncate(msg.Text, 100),
	}); err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}

	if err := e.db.UpsertMessage(toStoreMessage(msg)); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "snapshot.message_upserted",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"chat_jid": chatJID,
			"msg_id":   msg.ID,
		},
	})
	return nil
}

// IngestChats merges a chat list snapshot. Names and unread state are
// provider-authoritative here; last-message timestamps never rewind.
func (e *Engine) IngestChats(chats []store.Chat) error {
	for i := range chats {
		if err := e.db.UpsertChat(&chats[i]); err != nil {
			return fmt.Errorf("upsert chat %s: %w", chats[i].JID, err)
		}
	}
	return nil
}

// IngestHistoryBatch processes a batch of history messages in a transaction.
func (e *Engine) IngestHistoryBatch(msgs []store.Message) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, sm := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO chats (jid, is_group, last_message_at, last_message_preview, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(jid) DO UPDATE SET
				last_message_at = MAX(chats.last_message_at, excluded.last_message_at),
				last_message_preview = CASE WHEN excluded.last_message_at > chats.last_message_at THEN excluded.last_message_preview ELSE chats.last_message_preview END,
				updated_at = excluded.updated_at`,
			sm.ChatJID, model.IsGroupJID(sm.ChatJID), sm.Timestamp, truncate(sm.Body, 100), now); err != nil {
			return fmt.Errorf("upsert chat in batch: %w", err)
		}

		if _, err := tx.Exec(`
			INSERT INTO messages (chat_jid, msg_id, sender_jid, sender_name, body, message_type, from_me, status, media_url, timestamp, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(chat_jid, msg_id) DO UPDATE SET
				sender_name = excluded.sender_name,
				body = excluded.body,
				status = excluded.status`,
			sm.ChatJID, sm.MsgID, sm.SenderJID, sm.SenderName, sm.Body, sm.MessageType, sm.FromMe, sm.Status, sm.MediaURL, sm.Timestamp, now); err != nil {
			return fmt.Errorf("upsert message in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	e.bus.Publish(bus.Event{
		Kind:      "snapshot.history_batch",
		Timestamp: time.Now(),
		Payload:   map[string]int{"messages_count": len(msgs)},
	})
	return nil
}

// IngestStatusUpdate stores one status-broadcast post and prunes expired
// ones in the same pass.
func (e *Engine) IngestStatusUpdate(su model.StatusUpdate) error {
	if err := e.db.UpsertStatusUpdate(&store.StatusUpdate{
		SenderJID:   su.SenderID,
		MsgID:       su.Message.ID,
		Body:        su.Message.Text,
		MessageType: string(su.Message.Type),
		MediaURL:    su.Message.MediaURL,
		Timestamp:   su.Message.Timestamp,
	}); err != nil {
		return fmt.Errorf("upsert status update: %w", err)
	}

	cutoff := time.Now().Add(-statusTTL).UnixMilli()
	if _, err := e.db.PruneStatusUpdates(cutoff); err != nil {
		e.logger.Warn("status prune failed", zap.Error(err))
	}
	return nil
}

func toStoreMessage(msg model.Message) *store.Message {
	return &store.Message{
		ChatJID:     msg.Key.RemoteJID,
		MsgID:       msg.ID,
		SenderJID:   msg.SenderID,
		SenderName:  msg.PushName,
		Body:        msg.Text,
		MessageType: string(msg.Type),
		FromMe:      msg.Key.FromMe,
		Status:      msg.Status,
		MediaURL:    msg.MediaURL,
		Timestamp:   msg.Timestamp,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
