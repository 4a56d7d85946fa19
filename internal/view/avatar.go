package view

import (
	"fmt"
	"net/url"
)

// PlaceholderAvatar returns a deterministic generated-avatar URL for a
// display name, shown until a real profile picture resolves.
func PlaceholderAvatar(name string) string {
	return fmt.Sprintf("https://ui-avatars.com/api/?name=%s&background=random&color=fff",
		url.QueryEscape(name))
}
