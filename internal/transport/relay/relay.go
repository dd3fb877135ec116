// Package relay reaches rooms through the relay server's websocket.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/media"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport"
	"github.com/DoyleJ11/tugquiz-backend/internal/types"
)

const writeTimeout = 3 * time.Second

type Options struct {
	JoinTimeout time.Duration
}

type Client struct {
	conn      *websocket.Conn
	sessionID string
	opts      Options
	router    *transport.Router
	logger    *zap.SugaredLogger
	closing   atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var _ transport.Transport = (*Client)(nil)

// Dial connects to the relay at serverURL as sessionID.
func Dial(ctx context.Context, serverURL, sessionID string, opts Options) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	q := u.Query()
	q.Set("session", sessionID)
	u.RawQuery = q.Encode()

	dctx, dcancel := context.WithTimeout(ctx, joinTimeout(opts))
	defer dcancel()
	conn, _, err := websocket.Dial(dctx, u.String(), nil)
	if err != nil {
		if dctx.Err() != nil && ctx.Err() == nil {
			return nil, transport.ErrConnectionTimeout
		}
		return nil, fmt.Errorf("%w: %v", transport.ErrPeerUnavailable, err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:      conn,
		sessionID: sessionID,
		opts:      opts,
		router:    transport.NewRouter(),
		logger:    logging.FromContext(ctx).Named("relay").With("session", sessionID),
		ctx:       cctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func joinTimeout(opts Options) time.Duration {
	if opts.JoinTimeout <= 0 {
		return transport.DefaultJoinTimeout
	}
	return opts.JoinTimeout
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			if c.closing.Load() || c.ctx.Err() != nil {
				c.router.Close(nil)
			} else {
				c.logger.Debugw("relay connection lost", "err", err)
				c.router.Close(transport.ErrPeerUnavailable)
			}
			return
		}

		var m types.ServerMessage
		if err := json.Unmarshal(data, &m); err != nil {
			c.logger.Warnw("bad message from relay", "err", err)
			continue
		}
		c.router.Dispatch(m)
	}
}

func (c *Client) write(ctx context.Context, m types.ClientMessage) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, payload); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrPeerUnavailable, err)
	}
	return nil
}

func (c *Client) Create(ctx context.Context, name string) (transport.Membership, error) {
	return transport.WithJoinTimeout(ctx, c.opts.JoinTimeout, func(ctx context.Context) (transport.Membership, error) {
		return c.router.AwaitJoin(ctx, c.done, func() error {
			return c.write(ctx, types.ClientMessage{Type: types.MsgCreateRoom, Name: name})
		})
	})
}

func (c *Client) Join(ctx context.Context, roomID, name string) (transport.Membership, error) {
	return transport.WithJoinTimeout(ctx, c.opts.JoinTimeout, func(ctx context.Context) (transport.Membership, error) {
		return c.router.AwaitJoin(ctx, c.done, func() error {
			return c.write(ctx, types.ClientMessage{Type: types.MsgJoinRoom, RoomID: roomID, Name: name})
		})
	})
}

// Send forwards cmd; the relay stamps the player id itself.
func (c *Client) Send(ctx context.Context, cmd engine.Command) error {
	m, ok := types.FromCommand(cmd)
	if !ok {
		return engine.ErrUnsupportedCommand
	}
	return c.write(ctx, m)
}

func (c *Client) Events() <-chan transport.Event { return c.router.Events() }

func (c *Client) Signal(ctx context.Context, sig media.Signal) error {
	return c.write(ctx, types.SignalMessage(sig))
}

func (c *Client) Close() error {
	if c.closing.Swap(true) {
		return nil
	}
	_ = c.write(context.Background(), types.ClientMessage{Type: types.MsgLeave})
	if err := c.conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		c.logger.Debugw("close handshake failed", "err", err)
	}
	c.cancel()
	<-c.done
	return nil
}
