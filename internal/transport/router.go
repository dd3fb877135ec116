package transport

import (
	"context"
	"sync/atomic"

	"github.com/DoyleJ11/tugquiz-backend/internal/types"
)

// Router sorts the message stream of a remote room into join replies and
// events. One reader goroutine calls Dispatch and finally Close.
type Router struct {
	events  chan Event
	replies chan types.ServerMessage
	joining atomic.Bool
}

func NewRouter() *Router {
	return &Router{
		events:  make(chan Event, 64),
		replies: make(chan types.ServerMessage, 1),
	}
}

func (r *Router) Events() <-chan Event { return r.events }

func (r *Router) Dispatch(m types.ServerMessage) {
	if r.joining.Load() {
		switch m.Type {
		case types.MsgJoinedSuccess, types.MsgRoomFull, types.MsgError:
			select {
			case r.replies <- m:
			default:
			}
			return
		}
	}
	if ev, ok := FromMessage(m); ok {
		r.events <- ev
	}
}

// Close ends the event stream, reporting err first when it is not nil.
func (r *Router) Close(err error) {
	if err != nil {
		r.events <- Event{Kind: EvRoomClosed, Err: err}
	}
	close(r.events)
}

// AwaitJoin sends a join request and waits for the reply. A closed
// connection is reported as ErrPeerUnavailable.
func (r *Router) AwaitJoin(ctx context.Context, done <-chan struct{}, send func() error) (Membership, error) {
	r.joining.Store(true)
	defer r.joining.Store(false)

	select {
	case <-r.replies:
	default:
	}
	if err := send(); err != nil {
		return Membership{}, err
	}

	select {
	case m := <-r.replies:
		return joinReply(m)
	case <-done:
		// The reply may have arrived right before the connection dropped.
		select {
		case m := <-r.replies:
			return joinReply(m)
		default:
		}
		return Membership{}, ErrPeerUnavailable
	case <-ctx.Done():
		return Membership{}, ctx.Err()
	}
}

func joinReply(m types.ServerMessage) (Membership, error) {
	if m.Type != types.MsgJoinedSuccess || m.Player == nil {
		return Membership{}, types.ParseError(m)
	}
	return Membership{RoomID: m.RoomID, Player: *m.Player}, nil
}
