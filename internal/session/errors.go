package session

import (
	"errors"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport"
)

var (
	ErrOpponentLeft = errors.New("your opponent left the room")
	ErrClosed       = errors.New("session closed")
)

// IsFatal reports whether err ends the current game. Fatal errors reset the
// client to the lobby; anything else is only shown.
func IsFatal(err error) bool {
	return errors.Is(err, engine.ErrRoomClosed) ||
		errors.Is(err, transport.ErrPeerUnavailable) ||
		errors.Is(err, ErrOpponentLeft)
}
