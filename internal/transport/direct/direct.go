// Package direct links two players without a relay server. The creator hosts
// the room in-process and accepts the other player on a websocket listener.
package direct

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/media"
	"github.com/DoyleJ11/tugquiz-backend/internal/room"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport"
	"github.com/DoyleJ11/tugquiz-backend/internal/types"
)

const (
	peerPath     = "/peer"
	writeTimeout = 3 * time.Second
)

var ErrAlreadyLinked = errors.New("link already in use")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Options struct {
	// Addr is where the host listens and the guest dials.
	Addr        string
	Rules       engine.Rules
	AutoStart   bool
	JoinTimeout time.Duration
}

type Link struct {
	sessionID string
	clientID  string
	opts      Options
	router    *transport.Router
	logger    *zap.SugaredLogger
	used      atomic.Bool
	closing   atomic.Bool

	// host side
	room     *room.Room
	server   *http.Server
	listener net.Listener
	forward  chan struct{}

	// guest side
	conn    *websocket.Conn
	writeMu sync.Mutex
	done    chan struct{}

	// The guest read loop owns the event stream only after a join succeeded,
	// so a failed attempt leaves the link ready for another Join.
	streamMu     sync.Mutex
	attached     bool
	lost         bool
	streamClosed bool

	ctx    context.Context
	cancel context.CancelFunc
}

var _ transport.Transport = (*Link)(nil)

func New(ctx context.Context, sessionID string, opts Options) *Link {
	lctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logging.FromContext(ctx)))
	return &Link{
		sessionID: sessionID,
		clientID:  uuid.NewString(),
		opts:      opts,
		router:    transport.NewRouter(),
		logger:    logging.FromContext(ctx).Named("direct").With("session", sessionID),
		done:      make(chan struct{}),
		ctx:       lctx,
		cancel:    cancel,
	}
}

func (l *Link) Events() <-chan transport.Event { return l.router.Events() }

// Create hosts a new room and starts accepting the guest on Addr.
func (l *Link) Create(ctx context.Context, name string) (transport.Membership, error) {
	if l.used.Swap(true) {
		return transport.Membership{}, ErrAlreadyLinked
	}

	ln, err := net.Listen("tcp", l.opts.Addr)
	if err != nil {
		return transport.Membership{}, fmt.Errorf("listen for peer: %w", err)
	}

	code, err := room.GenerateCode()
	if err != nil {
		ln.Close()
		return transport.Membership{}, err
	}
	l.room = room.NewRoom(l.ctx, code, engine.NewState("", l.opts.Rules), room.Options{AutoStart: l.opts.AutoStart})

	out := make(chan room.Update, 64)
	p, err := l.room.JoinPlayer(ctx, l.clientID, l.sessionID, name, out)
	if err != nil {
		ln.Close()
		_ = l.room.Send(ctx, room.Shutdown{})
		return transport.Membership{}, err
	}

	l.forward = make(chan struct{})
	go func() {
		defer close(l.forward)
		for u := range out {
			l.router.Dispatch(types.FromUpdate(u))
		}
		l.router.Close(nil)
	}()

	mux := http.NewServeMux()
	mux.HandleFunc(peerPath, l.serveGuest)
	l.listener = ln
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.logger.Warnw("peer listener stopped", "err", err)
		}
	}()

	l.logger.Infow("hosting room", "room", code, "addr", ln.Addr().String())
	return transport.Membership{RoomID: code, Player: p}, nil
}

// Addr is the host's listening address once Create succeeded.
func (l *Link) Addr() string {
	if l.listener == nil {
		return ""
	}
	return l.listener.Addr().String()
}

func (l *Link) serveGuest(w http.ResponseWriter, r *http.Request) {
	session := r.URL.Query().Get("session")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Debugw("upgrade error", "err", err)
		return
	}
	defer conn.Close()

	var mu sync.Mutex
	write := func(m types.ServerMessage) error {
		mu.Lock()
		defer mu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(m)
	}

	var hello types.ClientMessage
	if err := conn.ReadJSON(&hello); err != nil {
		return
	}
	if session == "" || hello.Type != types.MsgJoinRoom || hello.RoomID != l.room.Code() {
		_ = write(types.ErrorMessage(engine.ErrRoomNotFound))
		return
	}

	clientID := uuid.NewString()
	out := make(chan room.Update, 16)
	p, err := l.room.JoinPlayer(r.Context(), clientID, session, hello.Name, out)
	if err != nil {
		_ = write(types.ErrorMessage(err))
		return
	}
	defer func() { _ = l.room.Send(context.Background(), room.Leave{ClientID: clientID, PlayerID: session}) }()

	if err := write(types.ServerMessage{Type: types.MsgJoinedSuccess, RoomID: l.room.Code(), Player: &p}); err != nil {
		return
	}

	// Writer goroutine; closing the socket ends the reader below.
	go func() {
		for u := range out {
			if err := write(types.FromUpdate(u)); err != nil {
				break
			}
		}
		conn.Close()
	}()

	for {
		var cm types.ClientMessage
		if err := conn.ReadJSON(&cm); err != nil {
			return
		}
		if cm.Type == types.MsgLeave {
			return
		}
		if sig, ok := types.ToSignal(cm); ok {
			_ = l.room.Send(r.Context(), room.Relay{From: session, Signal: sig})
			continue
		}
		cmd, ok := types.ToCommand(cm, session)
		if !ok {
			_ = write(types.ServerMessage{Type: types.MsgError, Error: "unknown type"})
			continue
		}
		if err := l.room.Send(r.Context(), room.FromClient{ClientID: clientID, Cmd: cmd}); err != nil {
			return
		}
	}
}

// Join dials the host at Addr and takes the free seat in roomID. A failed
// join closes the socket, so the same link can try again.
func (l *Link) Join(ctx context.Context, roomID, name string) (transport.Membership, error) {
	if l.used.Swap(true) {
		return transport.Membership{}, ErrAlreadyLinked
	}

	m, err := transport.WithJoinTimeout(ctx, l.opts.JoinTimeout, func(ctx context.Context) (transport.Membership, error) {
		u := url.URL{Scheme: "ws", Host: l.opts.Addr, Path: peerPath, RawQuery: url.Values{"session": {l.sessionID}}.Encode()}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			if ctx.Err() != nil {
				return transport.Membership{}, ctx.Err()
			}
			return transport.Membership{}, fmt.Errorf("%w: %v", transport.ErrPeerUnavailable, err)
		}
		done := make(chan struct{})
		l.conn, l.done = conn, done
		go l.readLoop(conn, done)

		return l.router.AwaitJoin(ctx, done, func() error {
			return l.write(types.ClientMessage{Type: types.MsgJoinRoom, RoomID: roomID, Name: name})
		})
	})
	if err != nil {
		l.detach()
		l.used.Store(false)
		return transport.Membership{}, err
	}

	l.streamMu.Lock()
	l.attached = true
	if l.lost {
		l.closeStream(transport.ErrPeerUnavailable)
	}
	l.streamMu.Unlock()
	return m, nil
}

// detach drops the socket of a failed join attempt.
func (l *Link) detach() {
	if l.conn == nil {
		return
	}
	_ = l.conn.Close()
	<-l.done
	l.conn = nil

	l.streamMu.Lock()
	l.lost = false
	l.streamMu.Unlock()
}

// closeStream ends the event stream once. Callers hold streamMu.
func (l *Link) closeStream(err error) {
	if l.streamClosed {
		return
	}
	l.streamClosed = true
	l.router.Close(err)
}

func (l *Link) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var m types.ServerMessage
		if err := conn.ReadJSON(&m); err != nil {
			l.streamMu.Lock()
			defer l.streamMu.Unlock()
			switch {
			case !l.attached:
				l.lost = true
			case l.closing.Load():
				l.closeStream(nil)
			default:
				l.logger.Debugw("host connection lost", "err", err)
				l.closeStream(transport.ErrPeerUnavailable)
			}
			return
		}
		l.router.Dispatch(m)
	}
}

func (l *Link) write(m types.ClientMessage) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := l.conn.WriteJSON(m); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrPeerUnavailable, err)
	}
	return nil
}

func (l *Link) Send(ctx context.Context, cmd engine.Command) error {
	switch {
	case l.room != nil:
		cmd.PlayerID = l.sessionID
		return l.room.Send(ctx, room.FromClient{ClientID: l.clientID, Cmd: cmd})
	case l.conn != nil:
		m, ok := types.FromCommand(cmd)
		if !ok {
			return engine.ErrUnsupportedCommand
		}
		return l.write(m)
	default:
		return transport.ErrNotJoined
	}
}

func (l *Link) Signal(ctx context.Context, sig media.Signal) error {
	switch {
	case l.room != nil:
		return l.room.Send(ctx, room.Relay{From: l.sessionID, Signal: sig})
	case l.conn != nil:
		return l.write(types.SignalMessage(sig))
	default:
		return transport.ErrNotJoined
	}
}

// Close stops hosting or leaves the host. A hosted room closes for the guest.
func (l *Link) Close() error {
	if l.closing.Swap(true) {
		return nil
	}
	var err error

	switch {
	case l.room != nil:
		_ = l.room.Send(context.Background(), room.Shutdown{})
		<-l.room.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err = multierr.Append(err, l.server.Shutdown(ctx))
		cancel()
		<-l.forward

	case l.conn != nil:
		_ = l.write(types.ClientMessage{Type: types.MsgLeave})
		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		l.writeMu.Unlock()
		err = multierr.Append(err, l.conn.Close())
		<-l.done
		l.streamMu.Lock()
		l.closeStream(nil)
		l.streamMu.Unlock()

	default:
		l.streamMu.Lock()
		l.closeStream(nil)
		l.streamMu.Unlock()
	}

	l.cancel()
	return err
}
