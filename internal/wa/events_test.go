package wa

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/ovidiomatos/waweb/internal/bus"
	"github.com/ovidiomatos/waweb/internal/model"
	"github.com/ovidiomatos/waweb/internal/status"
	"github.com/ovidiomatos/waweb/internal/store"
)

// walkTo transitions the machine through the given states sequentially.
func walkTo(t *testing.T, m *status.Machine, states ...status.State) {
	t.Helper()
	for _, s := range states {
		if err := m.Transition(s); err != nil {
			t.Fatalf("transition to %s failed: %v", s, err)
		}
	}
}

func newTestHandler(b *bus.Bus, m *status.Machine) *EventHandler {
	return NewEventHandler(b, m, nil, nil, zap.NewNop())
}

func waitFor(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	timeout := time.After(time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-timeout:
			t.Fatalf("timeout waiting for %s event", kind)
		}
	}
}

func TestHandleConnectedFromConnecting(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	walkTo(t, m, status.Connecting)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.Connected{})

	if m.Current() != status.Open {
		t.Errorf("state = %s, want OPEN", m.Current())
	}
	waitFor(t, ch, "wa.connected")
}

func TestHandleConnectedAfterQRScan(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	walkTo(t, m, status.Connecting, status.AwaitingQR)
	m.SetQR("data:image/png;base64,xxx")

	h.Handle(&events.Connected{})

	if m.Current() != status.Open {
		t.Errorf("state = %s, want OPEN", m.Current())
	}
	if m.QR() != "" {
		t.Error("QR artifact survived the transition to OPEN")
	}
}

func TestHandleConnectedFromDisconnectedIgnored(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.Connected{})

	if m.Current() != status.Disconnected {
		t.Errorf("state = %s, want DISCONNECTED (invalid transition dropped)", m.Current())
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleDisconnected(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	walkTo(t, m, status.Connecting, status.Open)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.Disconnected{})

	if m.Current() != status.Closed {
		t.Errorf("state = %s, want CLOSED", m.Current())
	}
	waitFor(t, ch, "wa.disconnected")
}

func TestHandleLoggedOut(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	walkTo(t, m, status.Connecting, status.AwaitingPairing)
	m.SetPairingCode("ABCD-EFGH")

	walkTo(t, m, status.Open)

	ch, unsub := b.Subscribe("session.", 10)
	defer unsub()

	h.Handle(&events.LoggedOut{})

	if m.Current() != status.LoggedOut {
		t.Errorf("state = %s, want LOGGED_OUT", m.Current())
	}
	if m.PairingCode() != "" {
		t.Error("pairing code artifact survived logout")
	}
	waitFor(t, ch, "session.logged_out")
}

func TestHandleMessagePublishes(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.Message{
		Info: types.MessageInfo{
			ID:        "msg1",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "5511999999999", Server: types.DefaultUserServer},
				Sender: types.JID{User: "5511999999999", Server: types.DefaultUserServer},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	})

	evt := waitFor(t, ch, "wa.message")
	msg, ok := evt.Payload.(model.Message)
	if !ok {
		t.Fatalf("payload type = %T, want model.Message", evt.Payload)
	}
	if msg.Text != "hello" || msg.ID != "msg1" {
		t.Errorf("message = %+v, want text 'hello' id 'msg1'", msg)
	}
}

func TestHandleMessageStatusBroadcast(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.Message{
		Info: types.MessageInfo{
			ID:        "st1",
			Timestamp: time.Now(),
			MessageSource: types.MessageSource{
				Chat:   types.JID{User: "status", Server: types.BroadcastServer},
				Sender: types.JID{User: "5511888888888", Server: types.DefaultUserServer, Device: 3},
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("my status")},
	})

	evt := waitFor(t, ch, "wa.status_update")
	upd, ok := evt.Payload.(model.StatusUpdate)
	if !ok {
		t.Fatalf("payload type = %T, want model.StatusUpdate", evt.Payload)
	}
	if upd.SenderID != "5511888888888@s.whatsapp.net" {
		t.Errorf("sender = %q, want device suffix stripped", upd.SenderID)
	}
	if upd.Message.Text != "my status" {
		t.Errorf("status text = %q", upd.Message.Text)
	}
}

func TestHandleReceipt(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.Receipt{
		MessageSource: types.MessageSource{
			Chat: types.JID{User: "5511999999999", Server: types.DefaultUserServer},
		},
		MessageIDs: []types.MessageID{"a", "b"},
		Timestamp:  time.Unix(1700000000, 0),
		Type:       types.ReceiptTypeRead,
	})

	evt := waitFor(t, ch, "wa.receipt")
	r, ok := evt.Payload.(model.Receipt)
	if !ok {
		t.Fatalf("payload type = %T, want model.Receipt", evt.Payload)
	}
	if r.Kind != "read" {
		t.Errorf("kind = %q, want read", r.Kind)
	}
	if len(r.MessageIDs) != 2 || r.MessageIDs[0] != "a" {
		t.Errorf("message ids = %v", r.MessageIDs)
	}
	if r.ChatID != "5511999999999@s.whatsapp.net" {
		t.Errorf("chat = %q", r.ChatID)
	}
}

func TestHandleReceiptIgnoresOtherTypes(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.Receipt{
		MessageSource: types.MessageSource{
			Chat: types.JID{User: "5511999999999", Server: types.DefaultUserServer},
		},
		MessageIDs: []types.MessageID{"a"},
		Type:       types.ReceiptTypeRetry,
	})

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleChatPresence(t *testing.T) {
	tests := []struct {
		name  string
		state types.ChatPresence
		media types.ChatPresenceMedia
		want  string
	}{
		{"composing", types.ChatPresenceComposing, types.ChatPresenceMediaText, "composing"},
		{"recording", types.ChatPresenceComposing, types.ChatPresenceMediaAudio, "recording"},
		{"paused", types.ChatPresencePaused, types.ChatPresenceMediaText, "available"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := bus.New()
			m := status.NewMachine(b)
			h := newTestHandler(b, m)

			ch, unsub := b.Subscribe("wa.", 10)
			defer unsub()

			h.Handle(&events.ChatPresence{
				MessageSource: types.MessageSource{
					Chat: types.JID{User: "5511999999999", Server: types.DefaultUserServer},
				},
				State: tt.state,
				Media: tt.media,
			})

			evt := waitFor(t, ch, "wa.presence")
			p, ok := evt.Payload.(model.Presence)
			if !ok {
				t.Fatalf("payload type = %T, want model.Presence", evt.Payload)
			}
			if p.Kind != tt.want {
				t.Errorf("kind = %q, want %q", p.Kind, tt.want)
			}
		})
	}
}

func TestHandlePresenceLastSeen(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	seen := time.Unix(1700000000, 0)
	h.Handle(&events.Presence{
		From:        types.JID{User: "5511999999999", Server: types.DefaultUserServer},
		Unavailable: true,
		LastSeen:    seen,
	})

	evt := waitFor(t, ch, "wa.presence")
	p := evt.Payload.(model.Presence)
	if p.Kind != "unavailable" {
		t.Errorf("kind = %q, want unavailable", p.Kind)
	}
	if p.LastSeen != seen.UnixMilli() {
		t.Errorf("last seen = %d, want %d", p.LastSeen, seen.UnixMilli())
	}
}

func TestHandleHistorySync(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	msgTS := uint64(time.Now().Unix())
	h.Handle(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				{
					ID:                    proto.String("123456@g.us"),
					Name:                  proto.String("friends"),
					ConversationTimestamp: &msgTS,
					Messages: []*waHistorySync.HistorySyncMsg{
						{
							Message: &waWeb.WebMessageInfo{
								Key: &waCommon.MessageKey{
									ID:        proto.String("hm1"),
									FromMe:    proto.Bool(true),
									RemoteJID: proto.String("123456@g.us"),
								},
								MessageTimestamp: &msgTS,
								Message:          &waE2E.Message{Conversation: proto.String("history msg")},
							},
						},
					},
				},
				// Broadcast conversations never reach the snapshot.
				{
					ID: proto.String("status@broadcast"),
				},
			},
		},
	})

	snap := waitFor(t, ch, "wa.chat_snapshot")
	chats, ok := snap.Payload.([]store.Chat)
	if !ok {
		t.Fatalf("payload type = %T, want []store.Chat", snap.Payload)
	}
	if len(chats) != 1 {
		t.Fatalf("chat count = %d, want 1 (broadcast skipped)", len(chats))
	}
	if chats[0].JID != "123456@g.us" || !chats[0].IsGroup {
		t.Errorf("chat = %+v", chats[0])
	}

	batch := waitFor(t, ch, "wa.history_batch")
	msgs, ok := batch.Payload.([]store.Message)
	if !ok {
		t.Fatalf("payload type = %T, want []store.Message", batch.Payload)
	}
	if len(msgs) != 1 {
		t.Fatalf("message count = %d, want 1", len(msgs))
	}
	if msgs[0].Status != "sent" {
		t.Errorf("own history message status = %q, want sent", msgs[0].Status)
	}
	if msgs[0].Body != "history msg" {
		t.Errorf("body = %q", msgs[0].Body)
	}
}

func TestHandleHistorySyncNilData(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.HistorySync{Data: nil})

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandleCallOffer(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.CallOffer{
		BasicCallMeta: types.BasicCallMeta{
			From:   types.JID{User: "5511999999999", Server: types.DefaultUserServer, Device: 2},
			CallID: "call1",
		},
	})

	evt := waitFor(t, ch, "wa.native_call")
	call, ok := evt.Payload.(NativeCall)
	if !ok {
		t.Fatalf("payload type = %T, want NativeCall", evt.Payload)
	}
	if call.Status != "offer" || call.ID != "call1" {
		t.Errorf("call = %+v", call)
	}
	if call.From != "5511999999999@s.whatsapp.net" {
		t.Errorf("from = %q, want device suffix stripped", call.From)
	}

	placeholder := waitFor(t, ch, "wa.message")
	msg, ok := placeholder.Payload.(model.Message)
	if !ok {
		t.Fatalf("payload type = %T, want model.Message", placeholder.Payload)
	}
	if msg.Type != model.TypeCall || msg.Text != CallPlaceholderText {
		t.Errorf("placeholder = %+v", msg)
	}
}

func TestHandlePushName(t *testing.T) {
	b := bus.New()
	m := status.NewMachine(b)
	h := newTestHandler(b, m)

	ch, unsub := b.Subscribe("wa.", 10)
	defer unsub()

	h.Handle(&events.PushName{
		JID:         types.JID{User: "5511999999999", Server: types.DefaultUserServer, Device: 7},
		NewPushName: "Maria",
	})

	evt := waitFor(t, ch, "wa.contacts")
	contacts, ok := evt.Payload.([]store.Contact)
	if !ok {
		t.Fatalf("payload type = %T, want []store.Contact", evt.Payload)
	}
	if len(contacts) != 1 || contacts[0].PushName != "Maria" {
		t.Errorf("contacts = %+v", contacts)
	}
	if contacts[0].JID != "5511999999999@s.whatsapp.net" {
		t.Errorf("jid = %q, want device suffix stripped", contacts[0].JID)
	}
}
