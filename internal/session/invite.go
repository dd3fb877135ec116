package session

import (
	"net/url"
	"strings"
)

// InviteURL is the link a host shares; opening it pre-fills the room code.
func InviteURL(base, roomID string) string {
	return strings.TrimRight(base, "/") + "/?room=" + url.QueryEscape(roomID)
}

// RoomFromURL reads the room code back out of an invite link.
func RoomFromURL(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}
	code := strings.ToUpper(strings.TrimSpace(u.Query().Get("room")))
	return code, code != ""
}
