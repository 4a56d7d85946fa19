package wa

import (
	"context"
	"time"

	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"

	"github.com/ovidiomatos/waweb/internal/bus"
	"github.com/ovidiomatos/waweb/internal/model"
	"github.com/ovidiomatos/waweb/internal/status"
	"github.com/ovidiomatos/waweb/internal/store"
)

const mediaFetchTimeout = 30 * time.Second

// NativeCall describes an incoming call on the phone network. The call
// itself cannot be carried (media is end-to-end encrypted); the UI only
// gets notified.
type NativeCall struct {
	ID     string `json:"id"`
	From   string `json:"from"`
	Status string `json:"status"`
}

// EventHandler processes whatsmeow events, drives the lifecycle machine,
// and publishes normalized domain events on the bus. The snapshot engine
// and the gateway subscribe to the bus independently.
type EventHandler struct {
	bus         *bus.Bus
	machine     *status.Machine
	adapter     *Adapter
	reconnector *status.Reconnector
	logger      *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(b *bus.Bus, machine *status.Machine, adapter *Adapter, reconnector *status.Reconnector, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:         b,
		machine:     machine,
		adapter:     adapter,
		reconnector: reconnector,
		logger:      logger,
	}
}

// Handle is the main whatsmeow event handler function.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		h.handleMessage(evt)
	case *events.Receipt:
		h.handleReceipt(evt)
	case *events.Connected:
		h.handleConnected()
	case *events.Disconnected:
		h.handleDisconnected()
	case *events.LoggedOut:
		h.handleLoggedOut(evt)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.Presence:
		h.handlePresence(evt)
	case *events.ChatPresence:
		h.handleChatPresence(evt)
	case *events.GroupInfo:
		h.bus.Emit("wa.group_update", evt.JID.String())
	case *events.PushName:
		h.bus.Emit("wa.contacts", []store.Contact{{
			JID:      evt.JID.ToNonAD().String(),
			PushName: evt.NewPushName,
		}})
	case *events.CallOffer:
		h.bus.Emit("wa.native_call", NativeCall{
			ID:     evt.CallID,
			From:   model.StripDevice(evt.From.String()),
			Status: "offer",
		})
		// The call itself cannot be carried; the chat still gets a
		// placeholder row so the history reflects it.
		h.bus.Emit("wa.message", NormalizeCall(evt.BasicCallMeta))
	case *events.CallTerminate:
		h.bus.Emit("wa.native_call", NativeCall{
			ID:     evt.CallID,
			From:   model.StripDevice(evt.From.String()),
			Status: "terminate",
		})
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	chatJID := model.StripDevice(evt.Info.Chat.String())

	// Media is resolved through a side channel before normalization so
	// the canonical record can carry a displayable data URI. Failure
	// only costs the preview, never the message.
	mediaURL := ""
	if h.adapter != nil && mediaMime(unwrap(evt.Message)) != "" {
		ctx, cancel := context.WithTimeout(context.Background(), mediaFetchTimeout)
		uri, err := MediaDataURI(ctx, h.adapter.Client(), evt.Message)
		cancel()
		if err != nil {
			h.logger.Warn("media download failed", zap.String("msg_id", evt.Info.ID), zap.Error(err))
		} else {
			mediaURL = uri
		}
	}

	msg := Normalize(evt.Info, evt.Message, mediaURL)

	// Status broadcasts use a different downstream store, so the split
	// happens here on the raw conversation id, not after the fact.
	if model.IsBroadcastJID(chatJID) {
		h.bus.Emit("wa.status_update", model.StatusUpdate{
			SenderID: model.StripDevice(evt.Info.Sender.String()),
			Message:  msg,
		})
		return
	}
	h.bus.Emit("wa.message", msg)
}

func (h *EventHandler) handleReceipt(evt *events.Receipt) {
	kind := ""
	switch evt.Type {
	case types.ReceiptTypeRead:
		kind = "read"
	case types.ReceiptTypeDelivered:
		kind = "delivered"
	default:
		return
	}
	ids := make([]string, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		ids = append(ids, string(id))
	}
	h.bus.Emit("wa.receipt", model.Receipt{
		ChatID:     model.StripDevice(evt.Chat.String()),
		MessageIDs: ids,
		Kind:       kind,
		Timestamp:  evt.Timestamp.UnixMilli(),
	})
}

func (h *EventHandler) handleConnected() {
	h.logger.Info("WhatsApp connected")
	if err := h.machine.Transition(status.Open); err != nil {
		h.logger.Warn("unexpected connect", zap.String("state", string(h.machine.Current())))
		return
	}
	if h.reconnector != nil {
		h.reconnector.Reset()
	}
	h.bus.Emit("wa.connected", nil)
}

func (h *EventHandler) handleDisconnected() {
	h.logger.Warn("WhatsApp disconnected")
	_ = h.machine.Transition(status.Closed)
	h.bus.Emit("wa.disconnected", nil)

	if h.reconnector == nil || h.adapter == nil {
		return
	}
	scheduled := h.reconnector.Schedule(func() {
		h.logger.Info("reconnecting", zap.Int("attempt", h.reconnector.Attempt()))
		_ = h.machine.Transition(status.Connecting)
		if err := h.adapter.Connect(); err != nil {
			h.logger.Error("reconnect failed", zap.Error(err))
		}
	})
	if !scheduled {
		h.logger.Error("reconnect attempts exhausted")
		h.bus.Emit("session.reconnect_exhausted", nil)
	}
}

func (h *EventHandler) handleLoggedOut(evt *events.LoggedOut) {
	h.logger.Warn("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
	// A logout-classified close is terminal: artifacts are cleared by
	// the machine and no reconnect is scheduled.
	_ = h.machine.Transition(status.Closed)
	_ = h.machine.Transition(status.LoggedOut)
	h.bus.Emit("session.logged_out", evt.Reason.String())
}

func (h *EventHandler) handlePresence(evt *events.Presence) {
	kind := "available"
	if evt.Unavailable {
		kind = "unavailable"
	}
	p := model.Presence{
		ChatID: model.StripDevice(evt.From.String()),
		Kind:   kind,
	}
	if !evt.LastSeen.IsZero() {
		p.LastSeen = evt.LastSeen.UnixMilli()
	}
	h.bus.Emit("wa.presence", p)
}

func (h *EventHandler) handleChatPresence(evt *events.ChatPresence) {
	kind := "available"
	if evt.State == types.ChatPresenceComposing {
		kind = "composing"
		if evt.Media == types.ChatPresenceMediaAudio {
			kind = "recording"
		}
	}
	h.bus.Emit("wa.presence", model.Presence{
		ChatID: model.StripDevice(evt.Chat.String()),
		Kind:   kind,
	})
}

func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	var chats []store.Chat
	var msgs []store.Message
	for _, conv := range data.GetConversations() {
		chatJID := model.StripDevice(conv.GetID())
		if model.IsBroadcastJID(chatJID) {
			continue
		}
		chats = append(chats, store.Chat{
			JID:           chatJID,
			Name:          conv.GetName(),
			IsGroup:       model.IsGroupJID(chatJID),
			LastMessageAt: int64(conv.GetConversationTimestamp()) * 1000,
		})
		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			msgType, text, _ := classify(unwrap(wmsg.GetMessage()))
			st := "read"
			if wmsg.GetKey().GetFromMe() {
				st = "sent"
			}
			msgs = append(msgs, store.Message{
				ChatJID:     chatJID,
				MsgID:       wmsg.GetKey().GetID(),
				SenderJID:   model.StripDevice(wmsg.GetKey().GetParticipant()),
				SenderName:  wmsg.GetPushName(),
				Body:        text,
				MessageType: string(msgType),
				FromMe:      wmsg.GetKey().GetFromMe(),
				Status:      st,
				Timestamp:   int64(wmsg.GetMessageTimestamp()) * 1000,
			})
		}
	}

	if len(chats) > 0 {
		h.bus.Emit("wa.chat_snapshot", chats)
	}
	if len(msgs) > 0 {
		h.bus.Emit("wa.history_batch", msgs)
	}
}
