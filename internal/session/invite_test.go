package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInviteURL(t *testing.T) {
	assert.Equal(t, "https://quiz.example/?room=AB12C", InviteURL("https://quiz.example/", "AB12C"))
	assert.Equal(t, "http://localhost:3000/?room=AB12C", InviteURL("http://localhost:3000", "AB12C"))

	code, ok := RoomFromURL(InviteURL("https://quiz.example", "ab12c"))
	assert.True(t, ok)
	assert.Equal(t, "AB12C", code)

	_, ok = RoomFromURL("https://quiz.example/")
	assert.False(t, ok)
}
