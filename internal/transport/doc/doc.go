// Package doc reaches rooms through a shared document store. Every write
// replaces the room document and every subscriber sees the whole document.
package doc

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tugquiz-backend/internal/docstore"
	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/media"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport"
)

var (
	ErrSignallingUnsupported = errors.New("document store does not carry media signals")
	ErrClientUsed            = errors.New("client already joined or closed")
)

type Options struct {
	JoinTimeout time.Duration
}

type Client struct {
	store     *docstore.Store
	sessionID string
	opts      Options
	events    chan transport.Event
	logger    *zap.SugaredLogger

	mu      sync.Mutex
	roomID  string
	started bool
	removed <-chan struct{}
	closing atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var _ transport.Transport = (*Client)(nil)

func New(ctx context.Context, store *docstore.Store, sessionID string, opts Options) *Client {
	cctx, cancel := context.WithCancel(logging.WithLogger(context.Background(), logging.FromContext(ctx)))
	return &Client{
		store:     store,
		sessionID: sessionID,
		opts:      opts,
		events:    make(chan transport.Event, 64),
		logger:    logging.FromContext(ctx).Named("doc").With("session", sessionID),
		ctx:       cctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (c *Client) Create(ctx context.Context, name string) (transport.Membership, error) {
	return transport.WithJoinTimeout(ctx, c.opts.JoinTimeout, func(ctx context.Context) (transport.Membership, error) {
		roomID, p, err := c.store.CreateRoom(ctx, c.sessionID, name)
		if err != nil {
			return transport.Membership{}, err
		}
		return c.start(ctx, roomID, p)
	})
}

func (c *Client) Join(ctx context.Context, roomID, name string) (transport.Membership, error) {
	return transport.WithJoinTimeout(ctx, c.opts.JoinTimeout, func(ctx context.Context) (transport.Membership, error) {
		p, err := c.store.JoinRoom(ctx, roomID, c.sessionID, name)
		if err != nil {
			return transport.Membership{}, err
		}
		return c.start(ctx, roomID, p)
	})
}

// start subscribes to the room and arranges for the player to be removed
// when the client goes away.
func (c *Client) start(ctx context.Context, roomID string, p engine.Player) (transport.Membership, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.closing.Load() {
		_ = c.store.Leave(ctx, roomID, c.sessionID)
		return transport.Membership{}, ErrClientUsed
	}

	states, err := c.store.Subscribe(c.ctx, roomID)
	if err != nil {
		_ = c.store.Leave(ctx, roomID, c.sessionID)
		return transport.Membership{}, err
	}
	c.roomID = roomID
	c.started = true
	c.removed = c.store.RemoveOnDisconnect(c.ctx, roomID, c.sessionID)

	go c.watch(roomID, states)
	return transport.Membership{RoomID: roomID, Player: p}, nil
}

func (c *Client) watch(roomID string, states <-chan engine.State) {
	defer close(c.done)
	defer close(c.events)

	// The first document is diffed against an empty room, so a late joiner
	// hears about everyone already there.
	prev := engine.NewState(roomID, engine.DefaultRules())
	for st := range states {
		for _, ev := range transport.Diff(prev, st) {
			select {
			case c.events <- ev:
			case <-c.ctx.Done():
				return
			}
		}
		prev = st
	}

	if !c.closing.Load() {
		c.logger.Warnw("room subscription ended", "room", roomID)
		c.events <- transport.Event{Kind: transport.EvRoomClosed, Err: transport.ErrPeerUnavailable}
	}
}

func (c *Client) room() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return "", transport.ErrNotJoined
	}
	return c.roomID, nil
}

// Send applies cmd to the document as the local player. Rejections come
// back as the returned error.
func (c *Client) Send(ctx context.Context, cmd engine.Command) error {
	roomID, err := c.room()
	if err != nil {
		return err
	}
	cmd.PlayerID = c.sessionID
	_, err = c.store.Apply(ctx, roomID, cmd)
	return err
}

// Mutate writes raw fields without validation, last write wins.
func (c *Client) Mutate(ctx context.Context, p docstore.Patch) error {
	roomID, err := c.room()
	if err != nil {
		return err
	}
	return c.store.Mutate(ctx, roomID, p)
}

func (c *Client) Events() <-chan transport.Event { return c.events }

func (c *Client) Signal(context.Context, media.Signal) error {
	return ErrSignallingUnsupported
}

// Close leaves the room and stops the subscription.
func (c *Client) Close() error {
	if c.closing.Swap(true) {
		return nil
	}
	c.cancel()

	c.mu.Lock()
	started, removed := c.started, c.removed
	c.mu.Unlock()

	if !started {
		close(c.events)
		return nil
	}
	<-removed
	<-c.done
	return nil
}
