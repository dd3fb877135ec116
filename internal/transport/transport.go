// Package transport hides how a client reaches the shared room state. All
// variants expose the same operations and deliver the same events.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/media"
	"github.com/DoyleJ11/tugquiz-backend/internal/room"
	"github.com/DoyleJ11/tugquiz-backend/internal/types"
)

var (
	ErrPeerUnavailable   = errors.New("peer unavailable")
	ErrConnectionTimeout = errors.New("connection timed out")
	ErrNotJoined         = errors.New("not in a room")
)

const DefaultJoinTimeout = 10 * time.Second

type Membership struct {
	RoomID string
	Player engine.Player
}

type EventKind string

const (
	EvPlayers      EventKind = "player_joined"
	EvReady        EventKind = "ready_to_start"
	EvGameStarted  EventKind = "game_started"
	EvState        EventKind = "state_update"
	EvRoundWon     EventKind = "round_won"
	EvGameOver     EventKind = "game_over"
	EvPlayerLeft   EventKind = "player_left"
	EvOpponentLeft EventKind = "opponent_left"
	EvRoomClosed   EventKind = "room_closed"
	EvSignal       EventKind = "signal"
	EvError        EventKind = "error"
)

type Event struct {
	Kind       EventKind
	Version    int
	State      engine.State
	WinnerName string
	Signal     *media.Signal
	Err        error
}

type Transport interface {
	Create(ctx context.Context, name string) (Membership, error)
	Join(ctx context.Context, roomID, name string) (Membership, error)
	// Send submits a command as the local player.
	Send(ctx context.Context, cmd engine.Command) error
	// Events is closed when the transport shuts down.
	Events() <-chan Event
	Signal(ctx context.Context, sig media.Signal) error
	Close() error
}

// WithJoinTimeout runs join under the acceptance window and reports an
// expired window as ErrConnectionTimeout.
func WithJoinTimeout(ctx context.Context, timeout time.Duration, join func(context.Context) (Membership, error)) (Membership, error) {
	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}
	jctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	m, err := join(jctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return Membership{}, ErrConnectionTimeout
	}
	return m, err
}

// FromUpdate converts an update from an in-process room.
func FromUpdate(u room.Update) Event {
	ev := Event{Version: u.Version, State: u.State, WinnerName: u.WinnerName, Signal: u.Signal, Err: u.Err}
	switch u.Kind {
	case room.UpdPlayers:
		ev.Kind = EvPlayers
	case room.UpdReady:
		ev.Kind = EvReady
	case room.UpdGameStarted:
		ev.Kind = EvGameStarted
	case room.UpdState:
		ev.Kind = EvState
	case room.UpdRoundWon:
		ev.Kind = EvRoundWon
	case room.UpdGameOver:
		ev.Kind = EvGameOver
	case room.UpdPlayerLeft:
		ev.Kind = EvPlayerLeft
	case room.UpdOpponentLeft:
		ev.Kind = EvOpponentLeft
	case room.UpdClosed:
		ev.Kind = EvRoomClosed
	case room.UpdSignal:
		ev.Kind = EvSignal
	default:
		ev.Kind = EvError
	}
	return ev
}

// FromMessage converts a server message. Join replies and the welcome frame
// are not events.
func FromMessage(m types.ServerMessage) (Event, bool) {
	ev := Event{Version: m.Version, WinnerName: m.WinnerName}
	if m.State != nil {
		ev.State = *m.State
	} else if m.Players != nil {
		ev.State.Players = m.Players
	}

	switch m.Type {
	case types.MsgPlayerJoined:
		ev.Kind = EvPlayers
	case types.MsgReadyToStart:
		ev.Kind = EvReady
	case types.MsgGameStarted:
		ev.Kind = EvGameStarted
	case types.MsgStateUpdate:
		ev.Kind = EvState
		if m.State == nil {
			ev.State.RopePosition = m.RopePosition
		}
	case types.MsgRoundWon:
		ev.Kind = EvRoundWon
	case types.MsgGameOver:
		ev.Kind = EvGameOver
	case types.MsgPlayerLeft:
		ev.Kind = EvPlayerLeft
	case types.MsgOpponentLeft:
		ev.Kind = EvOpponentLeft
	case types.MsgRoomClosed:
		ev.Kind = EvRoomClosed
		ev.Err = engine.ErrRoomClosed
	case types.MsgError, types.MsgRoomFull:
		ev.Kind = EvError
		ev.Err = types.ParseError(m)
	default:
		sig, ok := types.SignalFrom(m)
		if !ok {
			return Event{}, false
		}
		ev.Kind = EvSignal
		ev.Signal = &sig
	}
	return ev, true
}
