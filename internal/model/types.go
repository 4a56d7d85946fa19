package model

// MessageType is the closed set of canonical message content types.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeAudio    MessageType = "audio"
	TypeSticker  MessageType = "sticker"
	TypeDocument MessageType = "document"
	TypeButtons  MessageType = "buttons"
	TypeList     MessageType = "list"
	TypeReaction MessageType = "reaction"
	TypeCall     MessageType = "call"
)

// MessageKey identifies a message within a conversation.
type MessageKey struct {
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	ID          string `json:"id"`
	Participant string `json:"participant,omitempty"`
}

// Button is one interactive option attached to a buttons/list message.
type Button struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Message is the canonical normalized message record consumed by all UI
// layers, independent of the provider's content-type variant.
type Message struct {
	ID        string      `json:"id"`
	Key       MessageKey  `json:"key"`
	Text      string      `json:"text"`
	SenderID  string      `json:"senderId"`
	Timestamp int64       `json:"timestamp"`
	Status    string      `json:"status"`
	Type      MessageType `json:"type"`
	PushName  string      `json:"pushName,omitempty"`
	MediaURL  string      `json:"mediaUrl,omitempty"`
	Buttons   []Button    `json:"buttons,omitempty"`
}

// User is a contact or the session owner.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Status string `json:"status,omitempty"`
}

// Chat is a conversation summary as exchanged on the wire.
// UnreadCount is a pointer so that an absent field on a re-emitted
// snapshot means "no change" rather than zero.
type Chat struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	IsGroup         bool   `json:"isGroup"`
	UnreadCount     *int   `json:"unreadCount,omitempty"`
	LastMessageTime int64  `json:"lastMessageTime"`
	Avatar          string `json:"avatar,omitempty"`
}

// GroupParticipant is one member of a group with its admin rank.
type GroupParticipant struct {
	ID    string `json:"id"`
	Admin string `json:"admin,omitempty"` // "", "admin" or "superadmin"
}

// GroupMetadata describes a group conversation. Fetched on demand and
// considered stale after any group action.
type GroupMetadata struct {
	ID           string             `json:"id"`
	Subject      string             `json:"subject"`
	Owner        string             `json:"owner"`
	Creation     int64              `json:"creation"`
	Participants []GroupParticipant `json:"participants"`
	Description  string             `json:"desc,omitempty"`
}

// Presence is the last known presence of a chat.
type Presence struct {
	ChatID   string `json:"id"`
	Kind     string `json:"presence"` // composing, recording, available, unavailable
	LastSeen int64  `json:"lastSeen,omitempty"`
}

// StatusUpdate is one ephemeral status-broadcast post.
type StatusUpdate struct {
	SenderID string  `json:"senderId"`
	Message  Message `json:"message"`
}

// Receipt reports a delivery/read state change for a set of messages.
// Tracked separately from Message.Status, which many provider paths
// only report best-effort.
type Receipt struct {
	ChatID     string   `json:"id"`
	MessageIDs []string `json:"messageIds"`
	Kind       string   `json:"kind"` // delivered or read
	Timestamp  int64    `json:"timestamp"`
}
