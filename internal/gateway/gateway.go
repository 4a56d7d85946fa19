package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ovidiomatos/waweb/internal/bus"
	"github.com/ovidiomatos/waweb/internal/model"
	"github.com/ovidiomatos/waweb/internal/status"
	"github.com/ovidiomatos/waweb/internal/store"
	"github.com/ovidiomatos/waweb/internal/wa"
)

const chatReplayLimit = 50

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The daemon binds to loopback; browser origin checks add nothing here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Provider is the slice of the WhatsApp adapter the gateway drives.
type Provider interface {
	SelfUser() *model.User
	PairPhone(ctx context.Context, phone string) (string, error)
	CheckNumber(ctx context.Context, phone string) (*wa.NumberStatus, error)
	SendText(ctx context.Context, jid string, text string) (string, error)
	SendChatPresence(ctx context.Context, jid string, kind string) error
	SendMedia(ctx context.Context, jid string, data []byte, kind string, caption string, isVoice bool) (string, error)
	PostStatus(ctx context.Context, data []byte, kind string, caption string) (string, error)
	GetGroupInfo(ctx context.Context, jid string) (*model.GroupMetadata, error)
	GroupAction(ctx context.Context, jid string, action string, participants []string) error
	ProfilePictureURL(ctx context.Context, jid string) (string, error)
	UpdateProfileName(ctx context.Context, name string) error
	UpdateProfileStatus(ctx context.Context, statusText string) error
	UpdateProfilePicture(ctx context.Context, photo []byte) (string, error)
	PrivacySettings(ctx context.Context) (map[string]string, error)
	UpdatePrivacySetting(ctx context.Context, settingType string, value string) (map[string]string, error)
	Blocklist(ctx context.Context) ([]string, error)
	MarkRead(ctx context.Context, chatJID string, senderJID string, msgIDs []string) error
}

// Gateway bridges the internal event bus to websocket clients and
// dispatches their commands to the provider adapter. It is the only
// component that speaks the browser wire protocol.
type Gateway struct {
	hub      *Hub
	bus      *bus.Bus
	db       *store.DB
	provider Provider
	machine  *status.Machine
	logger   *zap.Logger
	cancel   context.CancelFunc
}

// New creates a gateway.
func New(hub *Hub, b *bus.Bus, db *store.DB, provider Provider, machine *status.Machine, logger *zap.Logger) *Gateway {
	return &Gateway{
		hub:      hub,
		bus:      b,
		db:       db,
		provider: provider,
		machine:  machine,
		logger:   logger,
	}
}

// HandleWS upgrades an HTTP request, registers the client and replays
// the current session state before live events start flowing.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(uuid.NewString(), conn)
	g.hub.register(c)

	go c.writePump()
	g.replay(c)
	go c.readPump(g)
}

// replay sends the connect-time snapshot: an authenticated session gets
// identity, chats and contacts; an unauthenticated one gets whatever
// linking artifact is current.
func (g *Gateway) replay(c *Client) {
	if g.machine.Current() == status.Open {
		if user := g.provider.SelfUser(); user != nil {
			g.hub.SendTo(c.id, "ready", user)
		}
		g.hub.SendTo(c.id, "chats", g.chatList())
		g.hub.SendTo(c.id, "contacts", g.contactList())
		return
	}
	if code := g.machine.PairingCode(); code != "" {
		g.hub.SendTo(c.id, "pairing_code", code)
		return
	}
	if qr := g.machine.QR(); qr != "" {
		g.hub.SendTo(c.id, "qr", qr)
	}
}

// Run bridges bus events onto the wire until the context is cancelled.
func (g *Gateway) Run(ctx context.Context) {
	ctx, g.cancel = context.WithCancel(ctx)

	waCh, waUnsub := g.bus.Subscribe("wa.", 256)
	sessCh, sessUnsub := g.bus.Subscribe("session.", 64)
	snapCh, snapUnsub := g.bus.Subscribe("snapshot.", 64)

	go func() {
		defer waUnsub()
		defer sessUnsub()
		defer snapUnsub()
		for {
			select {
			case evt := <-waCh:
				g.bridgeProviderEvent(evt)
			case evt := <-sessCh:
				g.bridgeSessionEvent(evt)
			case evt := <-snapCh:
				g.bridgeSnapshotEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the bridge loop.
func (g *Gateway) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
}

func (g *Gateway) bridgeProviderEvent(evt bus.Event) {
	switch evt.Kind {
	case "wa.message":
		g.hub.Broadcast("message", evt.Payload)
	case "wa.status_update":
		g.hub.Broadcast("status_update", evt.Payload)
	case "wa.receipt":
		g.hub.Broadcast("message_status", evt.Payload)
	case "wa.presence":
		g.hub.Broadcast("presence", evt.Payload)
	case "wa.group_update":
		g.hub.Broadcast("group_update", evt.Payload)
	case "wa.contacts":
		contacts, ok := evt.Payload.([]store.Contact)
		if !ok {
			return
		}
		g.hub.Broadcast("contacts", toUsers(contacts))
	case "wa.native_call":
		g.hub.Broadcast("native_call", evt.Payload)
	case "wa.connected":
		// Fresh login or reconnect: every client gets the identity and
		// the current chat snapshot.
		if user := g.provider.SelfUser(); user != nil {
			g.hub.Broadcast("ready", user)
		}
		g.hub.Broadcast("chats", g.chatList())
		g.hub.Broadcast("contacts", g.contactList())
	}
}

func (g *Gateway) bridgeSessionEvent(evt bus.Event) {
	switch evt.Kind {
	case "session.state_changed":
		change, ok := evt.Payload.(status.StateChange)
		if !ok {
			return
		}
		g.hub.Broadcast("connection_update", map[string]string{
			"connection": wireConnection(change.To),
		})
	case "session.qr":
		g.hub.Broadcast("qr", evt.Payload)
	case "session.pairing_code":
		g.hub.Broadcast("pairing_code", evt.Payload)
	case "session.logged_out":
		g.hub.Broadcast("logged_out", nil)
	}
}

func (g *Gateway) bridgeSnapshotEvent(evt bus.Event) {
	switch evt.Kind {
	case "snapshot.history_batch":
		// A history batch can reorder or introduce chats; push the
		// refreshed list instead of deltas.
		g.hub.Broadcast("chats", g.chatList())
	}
}

// wireConnection maps lifecycle states onto the three-valued connection
// field browsers key their UI off.
func wireConnection(s status.State) string {
	switch s {
	case status.Open:
		return "open"
	case status.Closed, status.LoggedOut:
		return "close"
	default:
		return "connecting"
	}
}

func (g *Gateway) chatList() []model.Chat {
	rows, err := g.db.ListChats(chatReplayLimit)
	if err != nil {
		g.logger.Error("chat list failed", zap.Error(err))
		return []model.Chat{}
	}
	chats := make([]model.Chat, 0, len(rows))
	for _, row := range rows {
		chats = append(chats, model.Chat{
			ID:              row.JID,
			Name:            chatDisplayName(row),
			IsGroup:         row.IsGroup,
			LastMessageTime: row.LastMessageAt,
			Avatar:          row.AvatarURL,
		})
	}
	return chats
}

func (g *Gateway) contactList() []model.User {
	rows, err := g.db.ListContacts()
	if err != nil {
		g.logger.Error("contact list failed", zap.Error(err))
		return []model.User{}
	}
	return toUsers(rows)
}

func toUsers(rows []store.Contact) []model.User {
	users := make([]model.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, model.User{
			ID:     row.JID,
			Name:   contactDisplayName(row),
			Avatar: row.AvatarURL,
		})
	}
	return users
}

// chatDisplayName falls back to the local part of the JID when no name
// is known from any source.
func chatDisplayName(c store.Chat) string {
	if c.Name != "" {
		return c.Name
	}
	return model.LocalPart(c.JID)
}

func contactDisplayName(c store.Contact) string {
	switch {
	case c.Name != "":
		return c.Name
	case c.PushName != "":
		return c.PushName
	default:
		return model.LocalPart(c.JID)
	}
}

func toWireMessage(row store.Message) model.Message {
	return model.Message{
		ID: row.MsgID,
		Key: model.MessageKey{
			RemoteJID: row.ChatJID,
			FromMe:    row.FromMe,
			ID:        row.MsgID,
		},
		Text:      row.Body,
		SenderID:  row.SenderJID,
		Timestamp: row.Timestamp,
		Status:    row.Status,
		Type:      model.MessageType(row.MessageType),
		PushName:  row.SenderName,
		MediaURL:  row.MediaURL,
	}
}
