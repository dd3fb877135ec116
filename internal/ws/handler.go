package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/hub"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/room"
	"github.com/DoyleJ11/tugquiz-backend/internal/types"
)

const (
	outboxSize   = 16
	writeTimeout = 3 * time.Second
)

type Options struct {
	Rules engine.Rules
	// OriginPatterns restricts browser origins. Empty accepts any origin.
	OriginPatterns []string
}

// Handler serves one websocket per client. The session query parameter is the
// player id; reconnecting with the same session rejoins the same seat.
func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     opts.OriginPatterns,
			InsecureSkipVerify: len(opts.OriginPatterns) == 0,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		c := &connection{
			hub:       h,
			rules:     opts.Rules,
			conn:      conn,
			clientID:  uuid.NewString(),
			sessionID: sessionID,
			logger:    logging.FromContext(r.Context()).Named("ws").With("session", sessionID),
		}
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		defer c.leave(context.Background())

		c.write(ctx, types.ServerMessage{Type: types.MsgWelcome, SessionID: sessionID})
		c.logger.Debugw("client connected")

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					c.logger.Debugw("read failed", "err", err)
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				c.write(ctx, types.ServerMessage{Type: types.MsgError, Error: "bad json"})
				continue
			}
			c.handle(ctx, cm)
		}
	}
}

type connection struct {
	hub       *hub.Hub
	rules     engine.Rules
	conn      *websocket.Conn
	clientID  string
	sessionID string
	logger    *zap.SugaredLogger

	room *room.Room
}

func (c *connection) handle(ctx context.Context, cm types.ClientMessage) {
	switch cm.Type {
	case types.MsgCreateRoom:
		c.leave(ctx)
		rm, err := c.hub.Create(ctx, engine.NewState("", c.rules))
		if err != nil {
			c.write(ctx, types.ErrorMessage(err))
			return
		}
		c.join(ctx, rm, cm.Name)

	case types.MsgJoinRoom:
		if cm.RoomID == "" {
			c.write(ctx, types.ErrorMessage(engine.ErrRoomNotFound))
			return
		}
		if c.room != nil && c.room.Code() != cm.RoomID {
			c.leave(ctx)
		}
		rm, err := c.hub.Ensure(ctx, cm.RoomID, engine.NewState("", c.rules))
		if err != nil {
			c.write(ctx, types.ErrorMessage(err))
			return
		}
		c.join(ctx, rm, cm.Name)

	case types.MsgLeave:
		c.leave(ctx)

	default:
		if c.room == nil {
			c.write(ctx, types.ErrorMessage(engine.ErrNotMember))
			return
		}
		if sig, ok := types.ToSignal(cm); ok {
			c.send(ctx, room.Relay{From: c.sessionID, Signal: sig})
			return
		}
		cmd, ok := types.ToCommand(cm, c.sessionID)
		if !ok {
			c.write(ctx, types.ServerMessage{Type: types.MsgError, Error: "unknown type"})
			return
		}
		c.send(ctx, room.FromClient{ClientID: c.clientID, Cmd: cmd})
	}
}

func (c *connection) join(ctx context.Context, rm *room.Room, name string) {
	out := make(chan room.Update, outboxSize)
	p, err := rm.JoinPlayer(ctx, c.clientID, c.sessionID, name, out)
	if err != nil {
		if errors.Is(err, engine.ErrRoomFull) {
			c.logger.Infow("room full", "room", rm.Code())
		}
		c.write(ctx, types.ErrorMessage(err))
		return
	}
	c.room = rm

	c.write(ctx, types.ServerMessage{Type: types.MsgJoinedSuccess, RoomID: rm.Code(), Player: &p})

	// Writer goroutine; ends when the room closes the outbox.
	go func() {
		for u := range out {
			c.write(ctx, types.FromUpdate(u))
		}
	}()
}

func (c *connection) send(ctx context.Context, msg room.Msg) {
	if err := c.room.Send(ctx, msg); err != nil {
		c.room = nil
		c.write(ctx, types.ErrorMessage(err))
	}
}

func (c *connection) leave(ctx context.Context) {
	if c.room == nil {
		return
	}
	_ = c.room.Send(ctx, room.Leave{ClientID: c.clientID, PlayerID: c.sessionID})
	c.room = nil
}

func (c *connection) write(ctx context.Context, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.logger.Errorw("failed to encode message", "type", msg.Type, "err", err)
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = c.conn.Write(wctx, websocket.MessageText, payload)
}
