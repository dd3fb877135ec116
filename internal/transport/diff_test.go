package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
)

func apply(t *testing.T, s engine.State, cmd engine.Command) engine.State {
	t.Helper()
	_, next, err := engine.Apply(s, cmd)
	require.NoError(t, err)
	return next
}

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Kind)
	}
	return out
}

func TestDiff_Lobby(t *testing.T) {
	empty := engine.NewState("AB12C", engine.DefaultRules())
	one := apply(t, empty, engine.Command{Type: engine.CmdJoin, PlayerID: "anna", Name: "Anna"})
	two := apply(t, one, engine.Command{Type: engine.CmdJoin, PlayerID: "omar", Name: "Omar"})

	assert.Equal(t, []EventKind{EvPlayers}, kinds(Diff(empty, one)))
	assert.Equal(t, []EventKind{EvPlayers, EvReady}, kinds(Diff(one, two)))
	// A subscriber that arrives late sees both at once.
	assert.Equal(t, []EventKind{EvPlayers, EvReady}, kinds(Diff(empty, two)))
	assert.Empty(t, Diff(two, two))

	left := apply(t, two, engine.Command{Type: engine.CmdLeave, PlayerID: "anna"})
	assert.Equal(t, []EventKind{EvPlayerLeft, EvOpponentLeft}, kinds(Diff(two, left)))
}

func TestDiff_Game(t *testing.T) {
	s := engine.NewState("AB12C", engine.DefaultRules())
	s = apply(t, s, engine.Command{Type: engine.CmdJoin, PlayerID: "anna", Name: "Anna"})
	s = apply(t, s, engine.Command{Type: engine.CmdJoin, PlayerID: "omar", Name: "Omar"})

	started := apply(t, s, engine.Command{Type: engine.CmdStartGame, PlayerID: "anna"})
	assert.Contains(t, kinds(Diff(s, started)), EvGameStarted)

	moved := apply(t, started, engine.Command{Type: engine.CmdSubmitAnswer, PlayerID: "anna", Correct: true})
	evs := Diff(started, moved)
	assert.Equal(t, []EventKind{EvState}, kinds(evs))
	assert.Equal(t, 55, evs[0].State.RopePosition)

	end := moved
	for end.Phase != engine.PhaseFinished {
		end = apply(t, end, engine.Command{Type: engine.CmdSubmitAnswer, PlayerID: "anna", Correct: true})
	}
	evs = Diff(moved, end)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, EvGameOver, last.Kind)
	assert.Equal(t, "Anna", last.WinnerName)
}
