// Package session is the client-side game state machine. It consumes the
// events of any transport and produces the view a player sees:
// lobby, countdown, game, win.
package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/media"
	"github.com/DoyleJ11/tugquiz-backend/internal/quiz"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport"
)

const sendTimeout = 5 * time.Second

type ctrlMsg interface{ isCtrlMsg() }

type joined struct{ m transport.Membership }

type command struct {
	kind   commandKind
	option string
	track  media.TrackKind
	reply  chan error
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdAnswer
	cmdReset
	cmdVoice
	cmdMute
	cmdVideo
	cmdTrack
)

type getView struct{ reply chan View }

type notice struct{ err error }

func (joined) isCtrlMsg()  {}
func (command) isCtrlMsg() {}
func (getView) isCtrlMsg() {}
func (notice) isCtrlMsg()  {}

type Options struct {
	Bank *quiz.Bank
	// Rand defaults to quiz.DefaultRand.
	Rand          quiz.Rand
	CountdownTick time.Duration
	AnswerDelay   time.Duration
	// Media is optional; without it the voice controls report ErrNoLocalStream.
	Media media.Channel
	// AutoStart makes the host start the game once the room is full. Use it
	// with transports that have no server to do that.
	AutoStart bool
}

type Controller struct {
	tr     transport.Transport
	opts   Options
	logger *zap.SugaredLogger

	inbox   chan ctrlMsg
	updates chan View

	view        View
	rules       engine.Rules
	selfID      string
	correct     string
	lastVersion int
	called      bool
	autoStarted bool

	ticker *time.Ticker
	next   *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(ctx context.Context, tr transport.Transport, opts Options) *Controller {
	if opts.Bank == nil {
		opts.Bank = quiz.Default()
	}
	if opts.Rand == nil {
		opts.Rand = quiz.DefaultRand
	}
	if opts.CountdownTick <= 0 {
		opts.CountdownTick = time.Second
	}
	if opts.AnswerDelay <= 0 {
		opts.AnswerDelay = time.Second
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		tr:      tr,
		opts:    opts,
		logger:  logging.FromContext(ctx).Named("session"),
		inbox:   make(chan ctrlMsg, 16),
		updates: make(chan View, 16),
		rules:   engine.DefaultRules(),
		ctx:     cctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.view = c.lobbyView()
	go c.loop()
	return c
}

// Updates delivers the view after every change. A slow reader only misses
// intermediate views, never the latest one.
func (c *Controller) Updates() <-chan View { return c.updates }

func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) loop() {
	defer close(c.done)
	defer c.stopTimers()

	events := c.tr.Events()
	for {
		select {
		case <-c.ctx.Done():
			return

		case m := <-c.inbox:
			c.handle(m)

		case ev, ok := <-events:
			if !ok {
				events = nil
				if c.view.InRoom() {
					c.fail(transport.ErrPeerUnavailable)
				}
				break
			}
			c.handleEvent(ev)

		case <-c.tickC():
			c.tick()

		case <-c.nextC():
			c.next = nil
			if c.view.Stage == StageGame {
				c.loadQuestion()
			}
		}
		c.publish()
	}
}

func (c *Controller) handle(m ctrlMsg) {
	switch msg := m.(type) {
	case joined:
		c.selfID = msg.m.Player.ID
		c.lastVersion = 0
		c.view.RoomID = msg.m.RoomID
		c.view.Notice = ""
		if len(c.view.Players) == 0 {
			c.view.Players = []engine.Player{msg.m.Player}
		}
		c.setPlayers(c.view.Players)

	case command:
		c.view.Notice = ""
		msg.reply <- c.run(msg)

	case getView:
		msg.reply <- c.view.clone()

	case notice:
		c.view.Notice = msg.err.Error()
	}
}

func (c *Controller) run(cmd command) error {
	switch cmd.kind {
	case cmdStart:
		if !c.view.InRoom() {
			return transport.ErrNotJoined
		}
		return c.send(engine.Command{Type: engine.CmdStartGame})

	case cmdAnswer:
		return c.answer(cmd.option)

	case cmdReset:
		c.resetGame()
		return nil

	case cmdVoice:
		if c.opts.Media == nil {
			return media.ErrNoLocalStream
		}
		if err := c.opts.Media.RequestLocalStream(c.ctx, true, true); err != nil {
			// Voice is optional; the game goes on without it.
			c.view.Notice = err.Error()
			return err
		}
		c.view.Voice = true
		c.maybeCall()
		return nil

	case cmdMute:
		if !c.view.Voice {
			return media.ErrNoLocalStream
		}
		c.view.Muted = !c.view.Muted
		c.opts.Media.SetMuted(c.view.Muted)
		return nil

	case cmdVideo:
		if !c.view.Voice {
			return media.ErrNoLocalStream
		}
		c.view.VideoOff = !c.view.VideoOff
		c.opts.Media.SetVideoEnabled(!c.view.VideoOff)
		return nil

	case cmdTrack:
		if !c.view.Voice {
			return media.ErrNoLocalStream
		}
		return c.opts.Media.ReplaceTrack(cmd.track, cmd.option)
	}
	return engine.ErrUnsupportedCommand
}

func (c *Controller) handleEvent(ev transport.Event) {
	if ev.Version > 0 {
		if ev.Version < c.lastVersion {
			c.logger.Debugw("dropping stale event", "kind", ev.Kind, "version", ev.Version, "seen", c.lastVersion)
			return
		}
		c.lastVersion = ev.Version
	}
	full := ev.State.RoomID != ""
	if full {
		c.rules = ev.State.Rules
	}

	switch ev.Kind {
	case transport.EvPlayers, transport.EvPlayerLeft:
		if ev.State.Players != nil {
			c.setPlayers(ev.State.Players)
		}

	case transport.EvReady:
		if full {
			c.setPlayers(ev.State.Players)
		}

	case transport.EvGameStarted:
		if c.view.Stage == StageWin {
			// The host restarted before we reset.
			c.resetGame()
		}
		if c.view.Stage != StageLobby {
			return
		}
		c.view.RopePosition = c.rules.Start
		if full {
			c.view.RopePosition = ev.State.RopePosition
			c.view.Round = ev.State.Round
			c.setPlayers(ev.State.Players)
		}
		c.startCountdown()

	case transport.EvState:
		if c.view.Stage == StageWin {
			return
		}
		c.view.RopePosition = ev.State.RopePosition
		if full {
			c.syncRound(ev.State)
		}

	case transport.EvRoundWon:
		c.view.RoundWinner = ev.WinnerName
		if full {
			c.view.RopePosition = ev.State.RopePosition
			c.syncRound(ev.State)
		}

	case transport.EvGameOver:
		c.stopTimers()
		c.view.Stage = StageWin
		c.view.Countdown = 0
		c.view.WinnerName = ev.WinnerName
		if full {
			c.view.Scores = ev.State.Scores()
		}

	case transport.EvOpponentLeft:
		c.fail(ErrOpponentLeft)

	case transport.EvRoomClosed:
		err := ev.Err
		if err == nil {
			err = engine.ErrRoomClosed
		}
		c.fail(err)

	case transport.EvSignal:
		if c.opts.Media == nil || ev.Signal == nil {
			return
		}
		if err := c.opts.Media.HandleSignal(c.ctx, *ev.Signal); err != nil {
			c.logger.Debugw("signal not handled", "kind", ev.Signal.Kind, "err", err)
		}

	case transport.EvError:
		c.fail(ev.Err)
	}
}

// fail shows err and, when it is fatal, drops back to the lobby.
func (c *Controller) fail(err error) {
	if err == nil {
		return
	}
	c.view.Notice = err.Error()
	if !IsFatal(err) {
		return
	}
	c.logger.Infow("resetting after fatal error", "err", err)

	if errors.Is(err, ErrOpponentLeft) {
		c.resetGame()
		return
	}
	// The room is gone; forget it as well.
	c.resetGame()
	c.view.RoomID = ""
	c.view.Players = nil
	c.view.Self = engine.Player{}
	c.lastVersion = 0
	c.called = false
	c.autoStarted = false
}

func (c *Controller) setPlayers(players []engine.Player) {
	c.view.Players = append([]engine.Player(nil), players...)
	for _, p := range players {
		if p.ID == c.selfID {
			c.view.Self = p
		}
	}
	if len(players) < 2 {
		c.called = false
		c.autoStarted = false
	}
	c.maybeCall()

	if c.opts.AutoStart && c.view.Self.IsHost && len(players) == 2 && c.view.Stage == StageLobby && !c.autoStarted {
		c.autoStarted = true
		_ = c.send(engine.Command{Type: engine.CmdStartGame})
	}
}

// maybeCall places the media call. Only the host calls, so there is never
// more than one call between the two players.
func (c *Controller) maybeCall() {
	if c.opts.Media == nil || !c.view.Voice || c.called || !c.view.Self.IsHost {
		return
	}
	other, ok := c.view.Opponent()
	if !ok || len(c.view.Players) < 2 {
		return
	}
	if err := c.opts.Media.Call(c.ctx, other.ID); err != nil {
		c.logger.Warnw("call failed", "remote", other.ID, "err", err)
		return
	}
	c.called = true
}

func (c *Controller) startCountdown() {
	c.stopTimers()
	c.view.Stage = StageCountdown
	c.view.Countdown = CountdownFrom
	c.view.WinnerName = ""
	c.view.RoundWinner = ""
	c.ticker = time.NewTicker(c.opts.CountdownTick)
}

func (c *Controller) tick() {
	c.view.Countdown--
	if c.view.Countdown > 0 {
		return
	}
	c.stopTimers()
	c.view.Stage = StageGame
	c.loadQuestion()
}

func (c *Controller) syncRound(st engine.State) {
	if st.Round <= c.view.Round {
		return
	}
	prev := c.view.Round
	c.view.Round = st.Round
	c.view.Scores = st.Scores()
	if prev > 0 && c.view.Stage == StageGame {
		// A won round resets both teams' questions.
		c.loadQuestion()
	}
}

func (c *Controller) loadQuestion() {
	if c.next != nil {
		c.next.Stop()
		c.next = nil
	}
	idx, q := c.opts.Bank.Random(c.opts.Rand)
	options := quiz.Shuffle(q.Options, c.opts.Rand)

	c.view.Question = q.Text
	c.view.Options = options
	c.view.QuestionIndex = idx
	c.view.IsAnswered = false
	c.view.SelectedOption = ""
	c.view.IsCorrect = false
	c.correct = q.CorrectAnswer

	if err := c.send(engine.Command{Type: engine.CmdSetQuestion, QuestionIndex: idx, Options: options}); err != nil {
		c.logger.Debugw("question not recorded", "err", err)
	}
}

func (c *Controller) answer(option string) error {
	if c.view.Stage != StageGame || c.view.Question == "" || c.view.IsAnswered {
		return nil
	}
	correct := option == c.correct
	c.view.IsAnswered = true
	c.view.SelectedOption = option
	c.view.IsCorrect = correct

	err := c.send(engine.Command{Type: engine.CmdSubmitAnswer, Correct: correct})
	if c.view.Stage == StageGame && c.next == nil {
		c.next = time.NewTimer(c.opts.AnswerDelay)
	}
	return err
}

func (c *Controller) send(cmd engine.Command) error {
	ctx, cancel := context.WithTimeout(c.ctx, sendTimeout)
	defer cancel()
	err := c.tr.Send(ctx, cmd)
	if err != nil {
		c.fail(err)
	}
	return err
}

// resetGame returns to the lobby and keeps the room.
func (c *Controller) resetGame() {
	c.stopTimers()
	room, self, players := c.view.RoomID, c.view.Self, c.view.Players
	voice, muted, videoOff, notice := c.view.Voice, c.view.Muted, c.view.VideoOff, c.view.Notice

	c.view = c.lobbyView()
	c.view.RoomID, c.view.Self, c.view.Players = room, self, players
	c.view.Voice, c.view.Muted, c.view.VideoOff, c.view.Notice = voice, muted, videoOff, notice
	c.correct = ""
}

func (c *Controller) lobbyView() View {
	return View{Stage: StageLobby, RopePosition: c.rules.Start, QuestionIndex: -1}
}

func (c *Controller) stopTimers() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.next != nil {
		c.next.Stop()
		c.next = nil
	}
}

func (c *Controller) tickC() <-chan time.Time {
	if c.ticker == nil {
		return nil
	}
	return c.ticker.C
}

func (c *Controller) nextC() <-chan time.Time {
	if c.next == nil {
		return nil
	}
	return c.next.C
}

func (c *Controller) publish() {
	v := c.view.clone()
	for {
		select {
		case c.updates <- v:
			return
		default:
		}
		select {
		case <-c.updates:
		default:
		}
	}
}

func (c *Controller) post(ctx context.Context, m ctrlMsg) error {
	select {
	case c.inbox <- m:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) do(ctx context.Context, cmd command) error {
	cmd.reply = make(chan error, 1)
	if err := c.post(ctx, cmd); err != nil {
		return err
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Create opens a room as host. Failures are also shown as a notice.
func (c *Controller) Create(ctx context.Context, name string) (transport.Membership, error) {
	m, err := c.tr.Create(ctx, name)
	return c.afterJoin(ctx, m, err)
}

// Join takes the free seat in roomID. There is no retry; the player repeats
// the action.
func (c *Controller) Join(ctx context.Context, roomID, name string) (transport.Membership, error) {
	m, err := c.tr.Join(ctx, roomID, name)
	return c.afterJoin(ctx, m, err)
}

func (c *Controller) afterJoin(ctx context.Context, m transport.Membership, err error) (transport.Membership, error) {
	if err != nil {
		_ = c.post(ctx, notice{err: err})
		return transport.Membership{}, err
	}
	return m, c.post(ctx, joined{m: m})
}

func (c *Controller) Start(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdStart})
}

// Answer picks option for the current question. It does nothing when there
// is no question or it was already answered.
func (c *Controller) Answer(ctx context.Context, option string) error {
	return c.do(ctx, command{kind: cmdAnswer, option: option})
}

// Reset is the only way out of the win screen.
func (c *Controller) Reset(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdReset})
}

func (c *Controller) StartVoice(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdVoice})
}

func (c *Controller) ToggleMute(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdMute})
}

func (c *Controller) ToggleVideo(ctx context.Context) error {
	return c.do(ctx, command{kind: cmdVideo})
}

// SwitchTrack swaps the outgoing audio or video source, for example to
// another camera, without renegotiating the call.
func (c *Controller) SwitchTrack(ctx context.Context, kind media.TrackKind, source string) error {
	return c.do(ctx, command{kind: cmdTrack, track: kind, option: source})
}

func (c *Controller) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.post(ctx, getView{reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Close stops the controller and the media channel. The transport belongs
// to the caller.
func (c *Controller) Close() error {
	c.cancel()
	<-c.done
	if c.opts.Media != nil {
		return c.opts.Media.Close()
	}
	return nil
}
