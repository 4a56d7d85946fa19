package store

// Chat is a snapshot row for one conversation.
type Chat struct {
	JID                string
	Name               string
	IsGroup            bool
	LastMessageAt      int64
	LastMessagePreview string
	AvatarURL          string
}

// Contact is a snapshot row for one contact.
type Contact struct {
	JID       string
	Name      string
	PushName  string
	AvatarURL string
}

// Message is a snapshot row for one message, flattened from the canonical
// record for storage.
type Message struct {
	ID          int64
	ChatJID     string
	MsgID       string
	SenderJID   string
	SenderName  string
	Body        string
	MessageType string
	FromMe      bool
	Status      string
	MediaURL    string
	Timestamp   int64
}

// StatusUpdate is a snapshot row for one status-broadcast post.
type StatusUpdate struct {
	ID          int64
	SenderJID   string
	MsgID       string
	Body        string
	MessageType string
	MediaURL    string
	Timestamp   int64
}
