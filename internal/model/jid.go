package model

import "strings"

const (
	// UserServer is the server part of direct-chat JIDs.
	UserServer = "s.whatsapp.net"
	// GroupServer is the server part of group JIDs.
	GroupServer = "g.us"
	// StatusBroadcastJID is the reserved id of the status-broadcast stream.
	StatusBroadcastJID = "status@broadcast"
)

// IsGroupJID reports whether jid identifies a group conversation.
func IsGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+GroupServer)
}

// IsBroadcastJID reports whether jid is the status stream or any other
// broadcast id. Must be checked before normalization: status messages are
// routed to a separate store.
func IsBroadcastJID(jid string) bool {
	return jid == StatusBroadcastJID || strings.HasSuffix(jid, "@broadcast")
}

// StripDevice removes a device suffix from the user part of a JID
// ("5585920@s.whatsapp.net:12" and "5585920:12@s.whatsapp.net" both
// normalize to "5585920@s.whatsapp.net").
func StripDevice(jid string) string {
	at := strings.Index(jid, "@")
	if at < 0 {
		return jid
	}
	user, server := jid[:at], jid[at+1:]
	if colon := strings.Index(user, ":"); colon >= 0 {
		user = user[:colon]
	}
	if colon := strings.Index(server, ":"); colon >= 0 {
		server = server[:colon]
	}
	return user + "@" + server
}

// SameUser compares two JIDs ignoring device suffixes.
func SameUser(a, b string) bool {
	return StripDevice(a) == StripDevice(b)
}

// LocalPart returns the user part of a JID, used as a display-name
// fallback when no contact name is known.
func LocalPart(jid string) string {
	if at := strings.Index(jid, "@"); at >= 0 {
		return jid[:at]
	}
	return jid
}
