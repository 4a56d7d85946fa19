// Package view maintains the client-side copy of chats, contacts and
// presence, merged from gateway events. The merge rules are defensive:
// a re-emitted snapshot must never clobber state accumulated from live
// events.
package view

import (
	"sort"
	"sync"

	"github.com/ovidiomatos/waweb/internal/model"
)

// ChatSession is one conversation as the UI sees it: the contact card,
// the accumulated message history and the unread counter.
type ChatSession struct {
	ID              string               `json:"id"`
	Contact         model.User           `json:"contact"`
	Messages        []model.Message      `json:"messages"`
	UnreadCount     int                  `json:"unreadCount"`
	LastMessageTime int64                `json:"lastMessageTime"`
	IsGroup         bool                 `json:"isGroup"`
	Group           *model.GroupMetadata `json:"groupMetadata,omitempty"`
}

// Store is the reconciled local state. All mutation goes through Apply*
// methods; a mutex keeps it safe for callers that read from a different
// goroutine than the event loop.
type Store struct {
	mu        sync.RWMutex
	self      model.User
	chats     map[string]*ChatSession
	contacts  map[string]model.User
	presences map[string]model.Presence
	statuses  map[string][]model.Message // per-sender reels, newest first
	active    string
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		chats:     make(map[string]*ChatSession),
		contacts:  make(map[string]model.User),
		presences: make(map[string]model.Presence),
		statuses:  make(map[string][]model.Message),
	}
}

// SetSelf records the session owner's identity.
func (s *Store) SetSelf(user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.Avatar == "" {
		user.Avatar = s.self.Avatar
	}
	s.self = user
}

// Self returns the session owner.
func (s *Store) Self() model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.self
}

// ApplyChats merges a chat snapshot. Existing history and avatars are
// preserved; an absent unread count means "no change", not zero; the
// last-message time never rewinds. Chats missing from the snapshot are
// kept — snapshots are additive, not authoritative.
func (s *Store) ApplyChats(chats []model.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range chats {
		existing, ok := s.chats[c.ID]
		if !ok {
			name := c.Name
			if name == "" {
				name = model.LocalPart(c.ID)
			}
			cs := &ChatSession{
				ID:              c.ID,
				Contact:         model.User{ID: c.ID, Name: name, Avatar: avatarOr(c.Avatar, name)},
				Messages:        []model.Message{},
				LastMessageTime: c.LastMessageTime,
				IsGroup:         c.IsGroup || model.IsGroupJID(c.ID),
			}
			if c.UnreadCount != nil {
				cs.UnreadCount = *c.UnreadCount
			}
			s.chats[c.ID] = cs
			continue
		}

		if c.Name != "" {
			existing.Contact.Name = c.Name
		}
		if c.Avatar != "" {
			existing.Contact.Avatar = c.Avatar
		}
		if c.UnreadCount != nil && *c.UnreadCount > existing.UnreadCount {
			existing.UnreadCount = *c.UnreadCount
		}
		if c.LastMessageTime > existing.LastMessageTime {
			existing.LastMessageTime = c.LastMessageTime
		}
	}
}

// ApplyMessage merges one live message. Unknown chats are synthesized
// from the message itself; a re-delivered id replaces the stored copy in
// place (that is how async media resolution lands) without touching the
// unread counter.
func (s *Store) ApplyMessage(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chatID := msg.Key.RemoteJID
	chat, ok := s.chats[chatID]
	if !ok {
		name := msg.PushName
		if name == "" {
			name = model.LocalPart(chatID)
		}
		chat = &ChatSession{
			ID:      chatID,
			Contact: model.User{ID: chatID, Name: name, Avatar: PlaceholderAvatar(name)},
			IsGroup: model.IsGroupJID(chatID),
		}
		s.chats[chatID] = chat
	}

	for i := range chat.Messages {
		if chat.Messages[i].ID == msg.ID {
			chat.Messages[i] = msg
			return
		}
	}

	chat.Messages = append(chat.Messages, msg)
	if msg.Timestamp > chat.LastMessageTime {
		chat.LastMessageTime = msg.Timestamp
	}
	if msg.Key.FromMe || s.active == chatID {
		chat.UnreadCount = 0
	} else {
		chat.UnreadCount++
	}
}

// ApplyMessages replaces a chat's history with a fetched page.
func (s *Store) ApplyMessages(chatID string, msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		chat.Messages = msgs
	}
}

// Select marks a chat active and zeroes its unread counter.
func (s *Store) Select(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = chatID
	if chat, ok := s.chats[chatID]; ok {
		chat.UnreadCount = 0
	}
}

// Active returns the selected chat id.
func (s *Store) Active() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// ApplyContacts merges a contact list, last-write-wins per field.
func (s *Store) ApplyContacts(users []model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range users {
		existing := s.contacts[u.ID]
		if u.Name == "" {
			u.Name = existing.Name
		}
		if u.Name == "" {
			u.Name = model.LocalPart(u.ID)
		}
		if u.Avatar == "" {
			u.Avatar = avatarOr(existing.Avatar, u.Name)
		}
		s.contacts[u.ID] = u
	}
}

// ApplyProfilePic patches the resolved avatar into the chat, the contact
// entry and, when the id is the session owner's (device suffixes
// ignored), the own profile. An empty url falls back to the placeholder.
func (s *Store) ApplyProfilePic(jid, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chat, ok := s.chats[jid]; ok {
		chat.Contact.Avatar = avatarOr(url, chat.Contact.Name)
	}
	if contact, ok := s.contacts[jid]; ok {
		contact.Avatar = avatarOr(url, contact.Name)
		s.contacts[jid] = contact
	}
	if url != "" && s.self.ID != "" && model.SameUser(jid, s.self.ID) {
		s.self.Avatar = url
	}
}

// ApplyGroupInfo attaches or refreshes a chat's group metadata.
func (s *Store) ApplyGroupInfo(meta *model.GroupMetadata) {
	if meta == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[meta.ID]
	if !ok {
		chat = &ChatSession{
			ID:      meta.ID,
			Contact: model.User{ID: meta.ID, Name: meta.Subject, Avatar: PlaceholderAvatar(meta.Subject)},
			IsGroup: true,
		}
		s.chats[meta.ID] = chat
	}
	chat.Group = meta
	if meta.Subject != "" {
		chat.Contact.Name = meta.Subject
	}
}

// ApplyPresence records the last known presence for a chat.
func (s *Store) ApplyPresence(p model.Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presences[p.ChatID] = p
}

// Presence returns the last known presence of a chat.
func (s *Store) Presence(chatID string) (model.Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presences[chatID]
	return p, ok
}

// ApplyStatusUpdate prepends a status post to its sender's reel.
// Reels are independent of the chat list and newest-first.
func (s *Store) ApplyStatusUpdate(su model.StatusUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	reel := s.statuses[su.SenderID]
	for _, existing := range reel {
		if existing.ID == su.Message.ID {
			return
		}
	}
	s.statuses[su.SenderID] = append([]model.Message{su.Message}, reel...)
}

// StatusReel returns a sender's status posts, newest first.
func (s *Store) StatusReel(senderID string) []model.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reel := s.statuses[senderID]
	out := make([]model.Message, len(reel))
	copy(out, reel)
	return out
}

// StatusSenders returns the ids that currently have a reel.
func (s *Store) StatusSenders() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	senders := make([]string, 0, len(s.statuses))
	for id := range s.statuses {
		senders = append(senders, id)
	}
	sort.Strings(senders)
	return senders
}

// ApplyReceipt upgrades message status for the named ids. Receipts only
// move forward: a late "delivered" never downgrades a "read".
func (s *Store) ApplyReceipt(r model.Receipt) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[r.ChatID]
	if !ok {
		return
	}
	ids := make(map[string]bool, len(r.MessageIDs))
	for _, id := range r.MessageIDs {
		ids[id] = true
	}
	for i := range chat.Messages {
		if !ids[chat.Messages[i].ID] {
			continue
		}
		if chat.Messages[i].Status == "read" && r.Kind == "delivered" {
			continue
		}
		chat.Messages[i].Status = r.Kind
	}
}

// Chat returns a copy of one chat session.
func (s *Store) Chat(chatID string) (ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return ChatSession{}, false
	}
	return copySession(chat), true
}

// Chats returns all chat sessions ordered by last activity, newest first.
func (s *Store) Chats() []ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ChatSession, 0, len(s.chats))
	for _, chat := range s.chats {
		out = append(out, copySession(chat))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastMessageTime > out[j].LastMessageTime
	})
	return out
}

// Contacts returns all known contacts sorted by id.
func (s *Store) Contacts() []model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.User, 0, len(s.contacts))
	for _, u := range s.contacts {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copySession(chat *ChatSession) ChatSession {
	cp := *chat
	cp.Messages = make([]model.Message, len(chat.Messages))
	copy(cp.Messages, chat.Messages)
	return cp
}

func avatarOr(url, name string) string {
	if url != "" {
		return url
	}
	return PlaceholderAvatar(name)
}
