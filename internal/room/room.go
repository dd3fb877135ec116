package room

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/media"
)

type Msg interface{ isRoomMsg() }

// Join registers a connection for a player. ClientID identifies the
// connection, PlayerID the session; a second connection for the same
// PlayerID replaces the first one.
type Join struct {
	ClientID string
	PlayerID string
	Name     string
	Outbox   chan Update // where this client wants to receive updates
	Reply    chan JoinResult
}

func (Join) isRoomMsg() {}

type JoinResult struct {
	Player engine.Player
	Err    error
}

// Leave removes the player only if ClientID is still its current connection.
type Leave struct {
	ClientID string
	PlayerID string
}

func (Leave) isRoomMsg() {}

type FromClient struct {
	ClientID string
	Cmd      engine.Command
}

func (FromClient) isRoomMsg() {}

// Relay forwards a media signal to another member untouched.
type Relay struct {
	From   string
	Signal media.Signal
}

func (Relay) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type UpdateKind string

const (
	UpdPlayers      UpdateKind = "players"
	UpdReady        UpdateKind = "ready"
	UpdGameStarted  UpdateKind = "game_started"
	UpdState        UpdateKind = "state"
	UpdRoundWon     UpdateKind = "round_won"
	UpdGameOver     UpdateKind = "game_over"
	UpdPlayerLeft   UpdateKind = "player_left"
	UpdOpponentLeft UpdateKind = "opponent_left"
	UpdSignal       UpdateKind = "signal"
	UpdError        UpdateKind = "error"
	UpdClosed       UpdateKind = "closed"
)

type Update struct {
	Kind       UpdateKind
	Version    int
	State      engine.State
	WinnerName string
	Signal     *media.Signal
	Err        error
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
	History    []engine.Event
}

type Options struct {
	// AutoStart starts the game as soon as the second player joins.
	AutoStart bool
	// OnEmpty runs once when the last member leaves, after the room stopped.
	OnEmpty func(code string)
}

type client struct {
	playerID string
	outbox   chan Update
}

type Room struct {
	code       string
	inbox      chan Msg
	state      engine.State
	version    int
	history    []engine.Event
	clients    map[string]*client
	players    map[string]string // playerID -> current clientID
	opts       Options
	lastActive atomic.Int64
	logger     *zap.SugaredLogger
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

func NewRoom(parent context.Context, code string, initial engine.State, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)

	initial.RoomID = code
	r := &Room{
		code:    code,
		inbox:   make(chan Msg, 64), // Small buffer
		state:   initial,
		version: 0,
		clients: make(map[string]*client),
		players: make(map[string]string),
		opts:    opts,
		logger:  logging.FromContext(parent).Named("room").With("room", code),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.touch()

	go r.loop()
	return r
}

func (r *Room) loop() {
	defer close(r.done)

	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			r.touch()

			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Leave:
				if r.handleLeave(msg) {
					r.shutdown()
					if r.opts.OnEmpty != nil {
						go r.opts.OnEmpty(r.code)
					}
					return
				}

			case FromClient:
				r.apply(msg.ClientID, msg.Cmd)

			case Relay:
				r.relay(msg)

			case GetState:
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					State:      r.state.Clone(),
					History:    append([]engine.Event(nil), r.history...),
				}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	events, next, err := engine.Apply(r.state, engine.Command{Type: engine.CmdJoin, PlayerID: msg.PlayerID, Name: msg.Name})
	if err != nil {
		msg.Reply <- JoinResult{Err: err}
		return
	}

	// A fresh connection for a known session takes over the old one.
	if old, ok := r.players[msg.PlayerID]; ok && old != msg.ClientID {
		if c, ok := r.clients[old]; ok {
			close(c.outbox)
			delete(r.clients, old)
		}
	}
	// Same connection joining again: the previous outbox's reader must end.
	if c, ok := r.clients[msg.ClientID]; ok && c.outbox != msg.Outbox {
		close(c.outbox)
	}
	r.clients[msg.ClientID] = &client{playerID: msg.PlayerID, outbox: msg.Outbox}
	r.players[msg.PlayerID] = msg.ClientID

	r.commit(events, next)
	p, _ := r.state.Player(msg.PlayerID)
	msg.Reply <- JoinResult{Player: p}

	r.logger.Infow("player joined", "player", p.ID, "team", p.Team, "rejoin", engine.ContainsEvent(events, engine.EvtPlayerRejoined))

	r.broadcast(Update{Kind: UpdPlayers})
	if !r.state.Full() {
		return
	}
	r.broadcast(Update{Kind: UpdReady})

	if r.opts.AutoStart && !r.state.GameStarted && r.state.Phase == engine.PhaseLobby {
		if host, ok := r.state.Host(); ok {
			r.apply("", engine.Command{Type: engine.CmdStartGame, PlayerID: host.ID})
		}
	}
}

// handleLeave reports whether the room is now empty.
func (r *Room) handleLeave(msg Leave) bool {
	current, ok := r.players[msg.PlayerID]
	if !ok || current != msg.ClientID {
		// Stale connection for a session that already reconnected.
		if c, ok := r.clients[msg.ClientID]; ok {
			close(c.outbox)
			delete(r.clients, msg.ClientID)
		}
		return false
	}

	events, next, err := engine.Apply(r.state, engine.Command{Type: engine.CmdLeave, PlayerID: msg.PlayerID})
	if c, ok := r.clients[msg.ClientID]; ok {
		close(c.outbox)
		delete(r.clients, msg.ClientID)
	}
	delete(r.players, msg.PlayerID)
	if err != nil {
		return len(r.players) == 0
	}

	r.commit(events, next)
	r.logger.Infow("player left", "player", msg.PlayerID, "remaining", len(r.state.Players))

	if engine.ContainsEvent(events, engine.EvtRoomEmptied) {
		return true
	}
	r.broadcast(Update{Kind: UpdPlayerLeft})
	r.broadcast(Update{Kind: UpdOpponentLeft})
	return false
}

func (r *Room) apply(clientID string, cmd engine.Command) {
	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		r.logger.Debugw("command rejected", "cmd", cmd.Type, "player", cmd.PlayerID, "err", err)
		if c, ok := r.clients[clientID]; ok {
			r.send(clientID, c, Update{Kind: UpdError, Version: r.version, State: r.state.Clone(), Err: err})
		}
		return
	}
	r.commit(events, next)

	for _, ev := range events {
		switch ev.Type {
		case engine.EvtGameStarted:
			r.broadcast(Update{Kind: UpdGameStarted})
		case engine.EvtRopeMoved, engine.EvtQuestionChanged:
			r.broadcast(Update{Kind: UpdState})
		case engine.EvtRoundWon:
			r.broadcast(Update{Kind: UpdRoundWon, WinnerName: ev.WinnerName})
		case engine.EvtGameOver:
			r.logger.Infow("game over", "winner", ev.WinnerName)
			r.broadcast(Update{Kind: UpdGameOver, WinnerName: ev.WinnerName})
		}
	}
}

func (r *Room) relay(msg Relay) {
	target := msg.Signal.Target
	if target == "" {
		for _, p := range r.state.Players {
			if p.ID != msg.From {
				target = p.ID
			}
		}
	}

	clientID, ok := r.players[target]
	if !ok {
		r.logger.Debugw("signal target not in room", "target", target, "kind", msg.Signal.Kind)
		return
	}
	sig := msg.Signal
	sig.Target = target
	if sig.Caller == "" {
		sig.Caller = msg.From
	}
	if c, ok := r.clients[clientID]; ok {
		r.send(clientID, c, Update{Kind: UpdSignal, Version: r.version, State: r.state.Clone(), Signal: &sig})
	}
}

func (r *Room) commit(events []engine.Event, next engine.State) {
	r.state = next
	r.version++
	r.history = append(r.history, events...)
}

func (r *Room) shutdown() {
	for id, c := range r.clients {
		select {
		case c.outbox <- Update{Kind: UpdClosed, Version: r.version, Err: engine.ErrRoomClosed}:
		default:
		}
		close(c.outbox) // Tell client no more updates
		delete(r.clients, id)
	}
	r.cancel()
}

func (r *Room) broadcast(u Update) {
	u.Version = r.version
	for id, c := range r.clients {
		u.State = r.state.Clone()
		r.send(id, c, u)
	}
}

func (r *Room) send(id string, c *client, u Update) {
	select {
	case c.outbox <- u:
		//ok
	default:
		// Client is slow/full - drop them. Its connection's Leave cleans up
		// the seat.
		r.logger.Warnw("dropping slow client", "client", id, "player", c.playerID)
		close(c.outbox)
		delete(r.clients, id)
	}
}

func (r *Room) touch() {
	r.lastActive.Store(time.Now().UnixNano())
}

// Expose the inbox so tests or WS layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Code() string { return r.code }

// Done is closed once the room goroutine has stopped.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) LastActive() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

// Send delivers msg unless the room has already stopped.
func (r *Room) Send(ctx context.Context, msg Msg) error {
	select {
	case r.inbox <- msg:
		return nil
	case <-r.done:
		return engine.ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// JoinPlayer sends a Join and waits for the room's answer.
func (r *Room) JoinPlayer(ctx context.Context, clientID, playerID, name string, outbox chan Update) (engine.Player, error) {
	reply := make(chan JoinResult, 1)
	if err := r.Send(ctx, Join{ClientID: clientID, PlayerID: playerID, Name: name, Outbox: outbox, Reply: reply}); err != nil {
		return engine.Player{}, err
	}
	select {
	case res := <-reply:
		return res.Player, res.Err
	case <-r.done:
		return engine.Player{}, engine.ErrRoomClosed
	case <-ctx.Done():
		return engine.Player{}, ctx.Err()
	}
}

func (r *Room) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := r.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, engine.ErrRoomClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
