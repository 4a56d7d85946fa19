// Package client is a headless consumer of the gateway wire protocol.
// It keeps a view.Store reconciled from the event stream and exposes
// typed command senders, which is everything a UI needs besides pixels.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ovidiomatos/waweb/internal/gateway"
	"github.com/ovidiomatos/waweb/internal/model"
	"github.com/ovidiomatos/waweb/internal/view"
)

// Client is one websocket connection to the gateway.
type Client struct {
	conn   *websocket.Conn
	store  *view.Store
	logger *zap.Logger

	writeMu sync.Mutex

	stateMu    sync.RWMutex
	connection string
	qr         string
	pairing    string
	lastError  string
}

// Dial connects to a gateway websocket endpoint.
func Dial(ctx context.Context, url string, store *view.Store, logger *zap.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	return &Client{
		conn:   conn,
		store:  store,
		logger: logger,
	}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run reads and applies events until the connection drops or the
// context is cancelled.
func (c *Client) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read gateway frame: %w", err)
		}
		var env gateway.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.logger.Warn("malformed gateway frame", zap.Error(err))
			continue
		}
		c.apply(env)
	}
}

func (c *Client) apply(env gateway.Envelope) {
	switch env.Event {
	case "ready":
		var user model.User
		if decode(c.logger, env, &user) {
			c.store.SetSelf(user)
			c.setConnection("open")
		}
	case "chats":
		var chats []model.Chat
		if decode(c.logger, env, &chats) {
			c.store.ApplyChats(chats)
		}
	case "contacts":
		var users []model.User
		if decode(c.logger, env, &users) {
			c.store.ApplyContacts(users)
		}
	case "message":
		var msg model.Message
		if decode(c.logger, env, &msg) {
			c.store.ApplyMessage(msg)
		}
	case "messages":
		var page struct {
			JID      string          `json:"jid"`
			Messages []model.Message `json:"messages"`
		}
		if decode(c.logger, env, &page) {
			c.store.ApplyMessages(page.JID, page.Messages)
		}
	case "status_update":
		var su model.StatusUpdate
		if decode(c.logger, env, &su) {
			c.store.ApplyStatusUpdate(su)
		}
	case "message_status":
		var r model.Receipt
		if decode(c.logger, env, &r) {
			c.store.ApplyReceipt(r)
		}
	case "presence":
		var p model.Presence
		if decode(c.logger, env, &p) {
			c.store.ApplyPresence(p)
		}
	case "group_info":
		var meta model.GroupMetadata
		if decode(c.logger, env, &meta) {
			c.store.ApplyGroupInfo(&meta)
		}
	case "profile_pic":
		var pic struct {
			JID string  `json:"jid"`
			URL *string `json:"url"`
		}
		if decode(c.logger, env, &pic) {
			url := ""
			if pic.URL != nil {
				url = *pic.URL
			}
			c.store.ApplyProfilePic(pic.JID, url)
		}
	case "qr":
		var qr string
		if decode(c.logger, env, &qr) {
			c.stateMu.Lock()
			c.qr = qr
			c.pairing = ""
			c.stateMu.Unlock()
		}
	case "pairing_code":
		var code string
		if decode(c.logger, env, &code) {
			c.stateMu.Lock()
			c.pairing = code
			c.stateMu.Unlock()
		}
	case "connection_update":
		var update struct {
			Connection string `json:"connection"`
		}
		if decode(c.logger, env, &update) {
			c.setConnection(update.Connection)
		}
	case "logged_out":
		c.setConnection("close")
		c.stateMu.Lock()
		c.qr = ""
		c.pairing = ""
		c.stateMu.Unlock()
	case "error":
		var msg string
		if decode(c.logger, env, &msg) {
			c.stateMu.Lock()
			c.lastError = msg
			c.stateMu.Unlock()
			c.logger.Warn("gateway error", zap.String("message", msg))
		}
	}
}

func decode(logger *zap.Logger, env gateway.Envelope, out any) bool {
	if err := json.Unmarshal(env.Data, out); err != nil {
		logger.Warn("decode event failed", zap.String("event", env.Event), zap.Error(err))
		return false
	}
	return true
}

func (c *Client) setConnection(state string) {
	c.stateMu.Lock()
	c.connection = state
	if state == "open" {
		c.qr = ""
		c.pairing = ""
	}
	c.stateMu.Unlock()
}

// Connection returns the last connection state string.
func (c *Client) Connection() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.connection
}

// QR returns the last QR data URI, empty once the session opens.
func (c *Client) QR() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.qr
}

// PairingCode returns the last pairing code.
func (c *Client) PairingCode() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.pairing
}

// LastError returns the most recent error event payload.
func (c *Client) LastError() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastError
}

func (c *Client) send(event string, data any) error {
	frame := gateway.Envelope{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event, err)
		}
		frame.Data = raw
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// SendMessage sends a text message to a chat.
func (c *Client) SendMessage(jid, text string) error {
	return c.send("send_message", map[string]string{"jid": jid, "text": text})
}

// SendMedia uploads a media payload as a data URI.
func (c *Client) SendMedia(jid, fileBase64, kind, caption string, isVoice bool) error {
	return c.send("send_media", map[string]any{
		"jid": jid, "fileBase64": fileBase64, "type": kind,
		"caption": caption, "isVoice": isVoice,
	})
}

// FetchMessages requests the newest page of a conversation.
func (c *Client) FetchMessages(jid string) error {
	return c.send("fetch_messages", jid)
}

// SendPresence pushes a typing indicator for a chat.
func (c *Client) SendPresence(jid, presence string) error {
	return c.send("send_presence", map[string]string{"jid": jid, "presence": presence})
}

// PostStatus publishes to the status-broadcast stream.
func (c *Client) PostStatus(fileBase64, kind, caption string) error {
	return c.send("post_status", map[string]string{
		"fileBase64": fileBase64, "type": kind, "caption": caption,
	})
}

// RequestPairingCode starts phone-number linking.
func (c *Client) RequestPairingCode(phone string) error {
	return c.send("request_pairing_code", phone)
}

// GetProfilePic asks for a chat's avatar; the answer arrives as a
// profile_pic event.
func (c *Client) GetProfilePic(jid string) error {
	return c.send("get_profile_pic", jid)
}

// GetGroupInfo requests group metadata.
func (c *Client) GetGroupInfo(jid string) error {
	return c.send("get_group_info", jid)
}

// GroupAction adds, removes, promotes or demotes participants.
func (c *Client) GroupAction(jid, action string, participants []string) error {
	return c.send("group_action", map[string]any{
		"jid": jid, "action": action, "participants": participants,
	})
}

// CheckNumber asks whether a phone number is registered.
func (c *Client) CheckNumber(phone string) error {
	return c.send("check_number", phone)
}
