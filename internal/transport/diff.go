package transport

import (
	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
)

// Diff derives the events that turn prev into next. It lets a transport that
// only sees whole documents report the same events as one that is told.
func Diff(prev, next engine.State) []Event {
	var out []Event
	add := func(kind EventKind) {
		out = append(out, Event{Kind: kind, State: next})
	}

	switch {
	case len(next.Players) > len(prev.Players):
		add(EvPlayers)
		if next.Full() && !prev.Full() {
			add(EvReady)
		}
	case len(next.Players) < len(prev.Players):
		add(EvPlayerLeft)
		if len(next.Players) > 0 {
			add(EvOpponentLeft)
		}
	case !samePlayers(prev.Players, next.Players):
		add(EvPlayers)
	}

	if next.GameStarted && !prev.GameStarted {
		add(EvGameStarted)
	}

	if next.RopePosition != prev.RopePosition || questionsChanged(prev, next) {
		add(EvState)
	}

	if next.Round > prev.Round && prev.Round > 0 {
		if team, ok := scored(prev, next); ok {
			out = append(out, Event{Kind: EvRoundWon, State: next, WinnerName: next.TeamName(team)})
		}
	}

	if next.Phase == engine.PhaseFinished && prev.Phase != engine.PhaseFinished {
		if next.Rules.Mode == engine.ModeRounds {
			if team, ok := scored(prev, next); ok {
				out = append(out, Event{Kind: EvRoundWon, State: next, WinnerName: next.TeamName(team)})
			}
		}
		out = append(out, Event{Kind: EvGameOver, State: next, WinnerName: next.WinnerName})
	}
	return out
}

func samePlayers(a, b []engine.Player) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func questionsChanged(prev, next engine.State) bool {
	for _, team := range []engine.Team{engine.TeamBlue, engine.TeamRed} {
		if prev.TeamState(team).QuestionIndex != next.TeamState(team).QuestionIndex {
			return true
		}
	}
	return false
}

func scored(prev, next engine.State) (engine.Team, bool) {
	for _, team := range []engine.Team{engine.TeamBlue, engine.TeamRed} {
		if next.TeamState(team).Score > prev.TeamState(team).Score {
			return team, true
		}
	}
	return 0, false
}
