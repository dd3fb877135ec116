package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/media"
	"github.com/DoyleJ11/tugquiz-backend/internal/quiz"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	events  chan transport.Event
	member  transport.Membership
	joinErr error
	sendErr error
	sent    []engine.Command
	signals []media.Signal
}

func newFake(self engine.Player) *fakeTransport {
	return &fakeTransport{
		events: make(chan transport.Event, 64),
		member: transport.Membership{RoomID: "AB12C", Player: self},
	}
}

func (f *fakeTransport) Create(context.Context, string) (transport.Membership, error) {
	return f.member, f.joinErr
}

func (f *fakeTransport) Join(context.Context, string, string) (transport.Membership, error) {
	return f.member, f.joinErr
}

func (f *fakeTransport) Send(_ context.Context, cmd engine.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, cmd)
	return f.sendErr
}

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) Signal(_ context.Context, sig media.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, sig)
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) sentOf(t engine.CommandType) []engine.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []engine.Command
	for _, c := range f.sent {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) signalKinds() []media.Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []media.Kind
	for _, s := range f.signals {
		out = append(out, s.Kind)
	}
	return out
}

// firstRand always picks index 0.
type firstRand struct{}

func (firstRand) Intn(int) int { return 0 }

var (
	anna = engine.Player{ID: "anna", Name: "Anna", Team: engine.TeamBlue, IsHost: true}
	omar = engine.Player{ID: "omar", Name: "Omar", Team: engine.TeamRed}
)

func testBank(t *testing.T) *quiz.Bank {
	t.Helper()
	b, err := quiz.NewBank([]quiz.Question{
		{Text: "2 + 2?", Options: []string{"3", "4", "5", "22"}, CorrectAnswer: "4"},
	})
	require.NoError(t, err)
	return b
}

func newController(t *testing.T, tr transport.Transport, ch media.Channel) *Controller {
	t.Helper()
	c := New(context.Background(), tr, Options{
		Bank:          testBank(t),
		Rand:          firstRand{},
		CountdownTick: 5 * time.Millisecond,
		AnswerDelay:   100 * time.Millisecond,
		Media:         ch,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// waitView polls the controller until ok holds.
func waitView(t *testing.T, c *Controller, what string, ok func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		v, err := c.View(context.Background())
		require.NoError(t, err)
		if ok(v) {
			return v
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, view is %+v", what, v)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func stateWith(players ...engine.Player) engine.State {
	st := engine.NewState("AB12C", engine.DefaultRules())
	st.Players = players
	return st
}

// inGame drives a created room through the countdown into the first question.
func inGame(t *testing.T, f *fakeTransport, c *Controller) View {
	t.Helper()
	_, err := c.Create(context.Background(), "Anna")
	require.NoError(t, err)

	st := stateWith(anna, omar)
	f.events <- transport.Event{Kind: transport.EvPlayers, Version: 2, State: st}
	st.GameStarted, st.Phase, st.Round = true, engine.PhasePlaying, 1
	f.events <- transport.Event{Kind: transport.EvGameStarted, Version: 3, State: st}

	return waitView(t, c, "first question", func(v View) bool {
		return v.Stage == StageGame && v.Question != ""
	})
}

func TestController_CreateShowsLobby(t *testing.T) {
	f := newFake(anna)
	c := newController(t, f, nil)

	m, err := c.Create(context.Background(), "Anna")
	require.NoError(t, err)
	assert.Equal(t, "AB12C", m.RoomID)

	v, err := c.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageLobby, v.Stage)
	assert.Equal(t, "AB12C", v.RoomID)
	assert.True(t, v.Self.IsHost)
	assert.Equal(t, 50, v.RopePosition)
}

func TestController_JoinFailureIsANotice(t *testing.T) {
	f := newFake(omar)
	f.joinErr = engine.ErrRoomFull
	c := newController(t, f, nil)

	_, err := c.Join(context.Background(), "AB12C", "Omar")
	assert.ErrorIs(t, err, engine.ErrRoomFull)

	v := waitView(t, c, "notice", func(v View) bool { return v.Notice != "" })
	assert.Equal(t, engine.ErrRoomFull.Error(), v.Notice)
	assert.False(t, v.InRoom())
}

func TestController_CountdownThenQuestion(t *testing.T) {
	f := newFake(anna)
	c := newController(t, f, nil)

	v := inGame(t, f, c)
	assert.Equal(t, 0, v.Countdown)
	assert.ElementsMatch(t, []string{"3", "4", "5", "22"}, v.Options)
	assert.False(t, v.IsAnswered)

	set := f.sentOf(engine.CmdSetQuestion)
	require.Len(t, set, 1)
	assert.Equal(t, v.Options, set[0].Options)
	assert.Equal(t, 0, set[0].QuestionIndex)
}

func TestController_StartSendsCommand(t *testing.T) {
	f := newFake(anna)
	c := newController(t, f, nil)

	assert.ErrorIs(t, c.Start(context.Background()), transport.ErrNotJoined)

	_, err := c.Create(context.Background(), "Anna")
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	assert.Len(t, f.sentOf(engine.CmdStartGame), 1)
}

func TestController_AutoStartByHost(t *testing.T) {
	f := newFake(anna)
	c := New(context.Background(), f, Options{Bank: testBank(t), Rand: firstRand{}, AutoStart: true})
	t.Cleanup(func() { _ = c.Close() })

	_, err := c.Create(context.Background(), "Anna")
	require.NoError(t, err)
	f.events <- transport.Event{Kind: transport.EvPlayers, Version: 2, State: stateWith(anna, omar)}
	f.events <- transport.Event{Kind: transport.EvReady, Version: 2, State: stateWith(anna, omar)}

	waitView(t, c, "two players", func(v View) bool { return len(v.Players) == 2 && v.Self.IsHost })
	require.Eventually(t, func() bool { return len(f.sentOf(engine.CmdStartGame)) == 1 }, time.Second, 2*time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, f.sentOf(engine.CmdStartGame), 1)
}

func TestController_AnswerOnceThenNextQuestion(t *testing.T) {
	f := newFake(anna)
	c := newController(t, f, nil)
	inGame(t, f, c)
	ctx := context.Background()

	require.NoError(t, c.Answer(ctx, "4"))
	require.NoError(t, c.Answer(ctx, "5")) // already answered

	v, err := c.View(ctx)
	require.NoError(t, err)
	assert.True(t, v.IsAnswered)
	assert.True(t, v.IsCorrect)
	assert.Equal(t, "4", v.SelectedOption)

	answers := f.sentOf(engine.CmdSubmitAnswer)
	require.Len(t, answers, 1)
	assert.True(t, answers[0].Correct)

	waitView(t, c, "next question", func(v View) bool { return !v.IsAnswered })
	assert.Len(t, f.sentOf(engine.CmdSetQuestion), 2)

	require.NoError(t, c.Answer(ctx, "22"))
	answers = f.sentOf(engine.CmdSubmitAnswer)
	require.Len(t, answers, 2)
	assert.False(t, answers[1].Correct)
}

func TestController_AnswerIgnoredOutsideGame(t *testing.T) {
	f := newFake(anna)
	c := newController(t, f, nil)
	_, err := c.Create(context.Background(), "Anna")
	require.NoError(t, err)

	require.NoError(t, c.Answer(context.Background(), "4"))
	assert.Empty(t, f.sentOf(engine.CmdSubmitAnswer))
}

func TestController_RopeFollowsStateAndDropsStale(t *testing.T) {
	f := newFake(anna)
	c := newController(t, f, nil)
	inGame(t, f, c)

	st := stateWith(anna, omar)
	st.GameStarted, st.Phase, st.Round = true, engine.PhasePlaying, 1
	st.RopePosition = 60
	f.events <- transport.Event{Kind: transport.EvState, Version: 6, State: st}
	st.RopePosition = 55
	f.events <- transport.Event{Kind: transport.EvState, Version: 5, State: st}
	// Events are handled in order, so once this shows the others are done.
	f.events <- transport.Event{Kind: transport.EvError, Err: engine.ErrNotHost}

	v := waitView(t, c, "marker", func(v View) bool { return v.Notice != "" })
	assert.Equal(t, 60, v.RopePosition)
}

func TestController_GameOverThenReset(t *testing.T) {
	f := newFake(anna)
	c := newController(t, f, nil)
	inGame(t, f, c)

	st := stateWith(anna, omar)
	st.RopePosition, st.Phase, st.WinnerName = 90, engine.PhaseFinished, "Anna"
	f.events <- transport.Event{Kind: transport.EvState, Version: 10, State: st}
	f.events <- transport.Event{Kind: transport.EvGameOver, Version: 10, State: st, WinnerName: "Anna"}

	v := waitView(t, c, "win", func(v View) bool { return v.Stage == StageWin })
	assert.Equal(t, "Anna", v.WinnerName)
	assert.Equal(t, 90, v.RopePosition)

	// Nothing but Reset leaves the win screen.
	f.events <- transport.Event{Kind: transport.EvState, Version: 11, State: st}
	require.NoError(t, c.Answer(context.Background(), "4"))
	v, err := c.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageWin, v.Stage)

	require.NoError(t, c.Reset(context.Background()))
	v, err = c.View(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StageLobby, v.Stage)
	assert.Equal(t, "AB12C", v.RoomID)
	assert.Equal(t, 50, v.RopePosition)
	assert.Empty(t, v.WinnerName)
}

func TestController_RoundWonReloadsQuestion(t *testing.T) {
	f := newFake(anna)
	c := newController(t, f, nil)
	inGame(t, f, c)

	st := stateWith(anna, omar)
	st.Rules.Mode = engine.ModeRounds
	st.GameStarted, st.Phase, st.Round = true, engine.PhasePlaying, 2
	st.Teams[engine.TeamBlue].Score = 1
	f.events <- transport.Event{Kind: transport.EvRoundWon, Version: 7, State: st, WinnerName: "Anna"}

	v := waitView(t, c, "round two", func(v View) bool { return v.Round == 2 })
	assert.Equal(t, "Anna", v.RoundWinner)
	assert.Equal(t, 1, v.Scores[engine.TeamBlue])
	assert.Equal(t, StageGame, v.Stage)
	assert.Len(t, f.sentOf(engine.CmdSetQuestion), 2)
}

func TestController_OpponentLeftResetsButKeepsRoom(t *testing.T) {
	f := newFake(omar)
	c := newController(t, f, nil)
	inGame(t, f, c)

	promoted := omar
	promoted.IsHost = true
	f.events <- transport.Event{Kind: transport.EvPlayerLeft, Version: 8, State: stateWith(promoted)}
	f.events <- transport.Event{Kind: transport.EvOpponentLeft, Version: 8}

	v := waitView(t, c, "lobby", func(v View) bool { return v.Stage == StageLobby })
	assert.Equal(t, ErrOpponentLeft.Error(), v.Notice)
	assert.Equal(t, "AB12C", v.RoomID)
	assert.True(t, v.Self.IsHost)
	assert.Empty(t, v.Question)
}

func TestController_RoomClosedForgetsRoom(t *testing.T) {
	f := newFake(omar)
	c := newController(t, f, nil)
	inGame(t, f, c)

	f.events <- transport.Event{Kind: transport.EvRoomClosed, Err: transport.ErrPeerUnavailable}

	v := waitView(t, c, "closed", func(v View) bool { return !v.InRoom() })
	assert.Equal(t, StageLobby, v.Stage)
	assert.Equal(t, transport.ErrPeerUnavailable.Error(), v.Notice)
}

func TestController_NonFatalErrorOnlyShown(t *testing.T) {
	f := newFake(omar)
	c := newController(t, f, nil)
	inGame(t, f, c)

	f.events <- transport.Event{Kind: transport.EvError, Err: engine.ErrNotHost}

	v := waitView(t, c, "notice", func(v View) bool { return v.Notice != "" })
	assert.Equal(t, StageGame, v.Stage)
	assert.Equal(t, engine.ErrNotHost.Error(), v.Notice)
}

func TestController_HostCallsOnceBothPresent(t *testing.T) {
	f := newFake(anna)
	lb := media.NewLoopback("anna", f.Signal)
	c := newController(t, f, lb)
	ctx := context.Background()

	_, err := c.Create(ctx, "Anna")
	require.NoError(t, err)
	require.NoError(t, c.StartVoice(ctx))
	assert.Empty(t, f.signalKinds())

	f.events <- transport.Event{Kind: transport.EvPlayers, Version: 2, State: stateWith(anna, omar)}
	waitView(t, c, "two players", func(v View) bool { return len(v.Players) == 2 })
	f.events <- transport.Event{Kind: transport.EvReady, Version: 2, State: stateWith(anna, omar)}
	_, err = c.View(ctx)
	require.NoError(t, err)

	assert.Equal(t, []media.Kind{media.KindOffer}, f.signalKinds())
	assert.Equal(t, "omar", lb.Status().Remote)
}

func TestController_GuestAnswersCalls(t *testing.T) {
	f := newFake(omar)
	lb := media.NewLoopback("omar", f.Signal)
	c := newController(t, f, lb)
	ctx := context.Background()

	_, err := c.Join(ctx, "AB12C", "Omar")
	require.NoError(t, err)
	require.NoError(t, c.StartVoice(ctx))
	f.events <- transport.Event{Kind: transport.EvPlayers, Version: 2, State: stateWith(anna, omar)}
	f.events <- transport.Event{Kind: transport.EvSignal, Signal: &media.Signal{Kind: media.KindOffer, Target: "omar", Caller: "anna"}}

	require.Eventually(t, func() bool { return len(f.signalKinds()) > 0 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, []media.Kind{media.KindAnswer}, f.signalKinds())
	assert.True(t, lb.Status().Connected)
}

func TestController_VoiceControls(t *testing.T) {
	f := newFake(anna)
	lb := media.NewLoopback("anna", f.Signal)
	c := newController(t, f, lb)
	ctx := context.Background()

	assert.ErrorIs(t, c.ToggleMute(ctx), media.ErrNoLocalStream)
	assert.ErrorIs(t, c.SwitchTrack(ctx, media.TrackVideo, "back-camera"), media.ErrNoLocalStream)

	require.NoError(t, c.StartVoice(ctx))
	require.NoError(t, c.ToggleMute(ctx))
	require.NoError(t, c.ToggleVideo(ctx))

	v, err := c.View(ctx)
	require.NoError(t, err)
	assert.True(t, v.Muted)
	assert.True(t, v.VideoOff)
	assert.True(t, lb.Status().Muted)
	assert.False(t, lb.Status().VideoOn)

	require.NoError(t, c.SwitchTrack(ctx, media.TrackVideo, "back-camera"))
	assert.Equal(t, "back-camera", lb.Status().Tracks[media.TrackVideo])
}

func TestController_PermissionDeniedIsNotFatal(t *testing.T) {
	f := newFake(anna)
	lb := media.NewLoopback("anna", f.Signal)
	lb.Deny = true
	c := newController(t, f, lb)
	inGame(t, f, c)

	assert.ErrorIs(t, c.StartVoice(context.Background()), media.ErrPermissionDenied)
	v, err := c.View(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Voice)
	assert.Equal(t, StageGame, v.Stage)
	assert.Equal(t, media.ErrPermissionDenied.Error(), v.Notice)
}

func TestController_UpdatesCarryLatestView(t *testing.T) {
	f := newFake(anna)
	c := newController(t, f, nil)

	_, err := c.Create(context.Background(), "Anna")
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case v := <-c.Updates():
			if v.RoomID == "AB12C" {
				assert.Equal(t, StageLobby, v.Stage)
				return
			}
		case <-deadline:
			t.Fatalf("no update with the room")
		}
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(engine.ErrRoomClosed))
	assert.True(t, IsFatal(transport.ErrPeerUnavailable))
	assert.True(t, IsFatal(ErrOpponentLeft))
	assert.False(t, IsFatal(media.ErrPermissionDenied))
	assert.False(t, IsFatal(engine.ErrRoomFull))
	assert.False(t, IsFatal(transport.ErrConnectionTimeout))
}
