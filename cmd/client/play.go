package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tugquiz-backend/internal/config"
	"github.com/DoyleJ11/tugquiz-backend/internal/docstore"
	"github.com/DoyleJ11/tugquiz-backend/internal/identity"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/media"
	"github.com/DoyleJ11/tugquiz-backend/internal/quiz"
	"github.com/DoyleJ11/tugquiz-backend/internal/session"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport/direct"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport/doc"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport/relay"
)

func play(parent context.Context, cfg *config.Config, in io.Reader, out io.Writer) (err error) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.NewLogger(cfg.Verbose).Named("client")
	defer func() { _ = logger.Sync() }()
	ctx = logging.WithLogger(ctx, logger)

	sessionID, err := identity.Load(cfg.SessionFile)
	if err != nil {
		return err
	}
	bank, err := quiz.Load(cfg.Questions)
	if err != nil {
		return err
	}

	tr, closeTransport, err := openTransport(ctx, cfg, sessionID)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, closeTransport()) }()

	ctrl := session.New(ctx, tr, session.Options{
		Bank:          bank,
		CountdownTick: cfg.CountdownTick,
		AnswerDelay:   cfg.AnswerDelay,
		Media:         media.NewLoopback(sessionID, tr.Signal),
		AutoStart:     cfg.AutoStart && cfg.Transport == config.TransportDoc,
	})
	defer func() { err = multierr.Append(err, ctrl.Close()) }()

	name := cfg.Name
	if name == "" {
		name = "Player"
	}

	var m transport.Membership
	if code := roomCode(cfg.Room); code != "" {
		m, err = ctrl.Join(ctx, code, name)
	} else {
		m, err = ctrl.Create(ctx, name)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "room %s, you are %s (%s)\n", m.RoomID, m.Player.Name, m.Player.Team)
	if cfg.Transport == config.TransportRelay {
		fmt.Fprintf(out, "invite: %s\n", session.InviteURL(inviteBase(cfg.Server), m.RoomID))
	}

	go render(ctx, ctrl, out)
	return readCommands(ctx, ctrl, in, out, logger)
}

// roomCode accepts a bare code or an invite link.
func roomCode(s string) string {
	if code, ok := session.RoomFromURL(s); ok {
		return code
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// inviteBase turns the relay's websocket URL into the page URL players open.
func inviteBase(server string) string {
	u, err := url.Parse(server)
	if err != nil {
		return server
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path, u.RawQuery = "", ""
	return u.String()
}

func openTransport(ctx context.Context, cfg *config.Config, sessionID string) (transport.Transport, func() error, error) {
	switch cfg.Transport {
	case config.TransportDirect:
		l := direct.New(ctx, sessionID, direct.Options{
			Addr:        cfg.PeerAddr,
			Rules:       cfg.Rules(),
			AutoStart:   cfg.AutoStart,
			JoinTimeout: cfg.JoinTimeout,
		})
		return l, l.Close, nil

	case config.TransportDoc:
		// Both players need the same database; config.Validate requires it.
		pg, err := docstore.NewPostgres(ctx, cfg.Database, docstore.PostgresOptions{})
		if err != nil {
			return nil, nil, err
		}
		store := docstore.NewStore(ctx, pg, cfg.Rules())
		c := doc.New(ctx, store, sessionID, doc.Options{JoinTimeout: cfg.JoinTimeout})
		return c, func() error { return multierr.Combine(c.Close(), store.Close()) }, nil

	default:
		c, err := relay.Dial(ctx, cfg.Server, sessionID, relay.Options{JoinTimeout: cfg.JoinTimeout})
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
}

func readCommands(ctx context.Context, ctrl *session.Controller, in io.Reader, out io.Writer, logger *zap.SugaredLogger) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()

	for {
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case <-ctrl.Done():
			return nil
		case line, ok = <-lines:
			if !ok {
				return nil
			}
		}

		var err error
		if src, ok := strings.CutPrefix(line, "camera "); ok {
			err = ctrl.SwitchTrack(ctx, media.TrackVideo, strings.TrimSpace(src))
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			continue
		}
		switch line {
		case "":
			continue
		case "quit", "q":
			return nil
		case "start":
			err = ctrl.Start(ctx)
		case "reset":
			err = ctrl.Reset(ctx)
		case "voice":
			err = ctrl.StartVoice(ctx)
		case "mute":
			err = ctrl.ToggleMute(ctx)
		case "video":
			err = ctrl.ToggleVideo(ctx)
		default:
			err = answer(ctx, ctrl, line)
		}
		if err != nil {
			logger.Debugw("command failed", "command", line, "err", err)
			fmt.Fprintf(out, "! %v\n", err)
		}
	}
}

func answer(ctx context.Context, ctrl *session.Controller, line string) error {
	n, err := strconv.Atoi(line)
	if err != nil {
		return fmt.Errorf("unknown command %q", line)
	}
	v, err := ctrl.View(ctx)
	if err != nil {
		return err
	}
	if n < 1 || n > len(v.Options) {
		return fmt.Errorf("pick 1-%d", len(v.Options))
	}
	return ctrl.Answer(ctx, v.Options[n-1])
}
