package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/room"
)

var ErrHubClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// CreateRoom opens a room under a fresh code.
type CreateRoom struct {
	State engine.State
	Reply chan *room.Room
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// EnsureRoom returns the room for Code, creating it when missing.
type EnsureRoom struct {
	Code  string
	State engine.State // only used if creation happens
	Reply chan *room.Room
}

// RemoveRoom forgets Code if it still maps to Room.
type RemoveRoom struct {
	Code string
	Room *room.Room
}

type CountRooms struct {
	Reply chan int
}

type reapIdle struct {
	Cutoff time.Time
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (CountRooms) isHubMsg()  {}
func (reapIdle) isHubMsg()    {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	// AutoStart is passed to every room the hub opens.
	AutoStart bool
	// IdleTimeout closes rooms with no traffic for that long. Zero disables it.
	IdleTimeout time.Duration
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	opts   Options
	logger *zap.SugaredLogger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		opts:   opts,
		logger: logging.FromContext(parent).Named("hub"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	if opts.IdleTimeout > 0 {
		go h.reaperLoop()
	}
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) loop() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				code, err := h.uniqueCode()
				if err != nil {
					h.logger.Errorw("failed to generate room code", "err", err)
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.open(code, msg.State)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case EnsureRoom:
				if rm := h.rooms[msg.Code]; rm != nil {
					msg.Reply <- rm
					break
				}
				msg.Reply <- h.open(msg.Code, msg.State)

			case RemoveRoom:
				if rm := h.rooms[msg.Code]; rm != nil && (msg.Room == nil || rm == msg.Room) {
					delete(h.rooms, msg.Code)
					h.logger.Infow("room removed", "room", msg.Code, "open", len(h.rooms))
				}

			case CountRooms:
				msg.Reply <- len(h.rooms)

			case reapIdle:
				for code, rm := range h.rooms {
					if rm.LastActive().Before(msg.Cutoff) {
						delete(h.rooms, code)
						h.logger.Infow("reaping idle room", "room", code)
						go rm.Send(context.Background(), room.Shutdown{})
					}
				}

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) open(code string, state engine.State) *room.Room {
	var rm *room.Room
	rm = room.NewRoom(h.ctx, code, state, room.Options{
		AutoStart: h.opts.AutoStart,
		OnEmpty: func(code string) {
			select {
			case h.inbox <- RemoveRoom{Code: code, Room: rm}:
			case <-h.ctx.Done():
			}
		},
	})
	h.rooms[code] = rm
	h.logger.Infow("room opened", "room", code, "open", len(h.rooms))
	return rm
}

func (h *Hub) shutdown() {
	for _, rm := range h.rooms {
		go rm.Send(context.Background(), room.Shutdown{})
	}
	clear(h.rooms)
}

func (h *Hub) uniqueCode() (string, error) {
	for {
		c, err := room.GenerateCode()
		if err != nil {
			return "", err
		}
		if _, taken := h.rooms[c]; !taken {
			return c, nil
		}
		h.logger.Debugw("collision on code, regenerating", "code", c)
	}
}

// reaperLoop periodically asks the hub to close rooms idle longer than IdleTimeout.
func (h *Hub) reaperLoop() {
	ticker := time.NewTicker(h.opts.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case now := <-ticker.C:
			select {
			case h.inbox <- reapIdle{Cutoff: now.Add(-h.opts.IdleTimeout)}:
			case <-h.ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) ask(ctx context.Context, msg HubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) await(ctx context.Context, reply chan *room.Room) (*room.Room, error) {
	select {
	case rm := <-reply:
		return rm, nil
	case <-h.done:
		return nil, ErrHubClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Create opens a room with a generated code.
func (h *Hub) Create(ctx context.Context, state engine.State) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.ask(ctx, CreateRoom{State: state, Reply: reply}); err != nil {
		return nil, err
	}
	rm, err := h.await(ctx, reply)
	if err != nil {
		return nil, err
	}
	if rm == nil {
		return nil, ErrHubClosed
	}
	return rm, nil
}

// Get returns engine.ErrRoomNotFound for unknown codes.
func (h *Hub) Get(ctx context.Context, code string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.ask(ctx, GetRoom{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	rm, err := h.await(ctx, reply)
	if err != nil {
		return nil, err
	}
	if rm == nil {
		return nil, engine.ErrRoomNotFound
	}
	return rm, nil
}

func (h *Hub) Ensure(ctx context.Context, code string, state engine.State) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.ask(ctx, EnsureRoom{Code: code, State: state, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.ask(ctx, CountRooms{Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-h.done:
		return 0, ErrHubClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
