package session

import (
	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
)

type Stage string

const (
	StageLobby     Stage = "lobby"
	StageCountdown Stage = "countdown"
	StageGame      Stage = "game"
	StageWin       Stage = "win"
)

// CountdownFrom is where every countdown starts.
const CountdownFrom = 3

// View is what a client renders. Every field is a copy.
type View struct {
	Stage   Stage
	RoomID  string
	Self    engine.Player
	Players []engine.Player

	RopePosition int
	Countdown    int
	Round        int
	Scores       map[engine.Team]int
	RoundWinner  string
	WinnerName   string

	Question       string
	Options        []string
	QuestionIndex  int
	IsAnswered     bool
	SelectedOption string
	IsCorrect      bool

	// Notice is the last user-facing problem, cleared by the next action.
	Notice string

	Voice    bool
	Muted    bool
	VideoOff bool
}

func (v View) clone() View {
	v.Players = append([]engine.Player(nil), v.Players...)
	v.Options = append([]string(nil), v.Options...)
	if v.Scores != nil {
		scores := make(map[engine.Team]int, len(v.Scores))
		for k, n := range v.Scores {
			scores[k] = n
		}
		v.Scores = scores
	}
	return v
}

func (v View) Opponent() (engine.Player, bool) {
	for _, p := range v.Players {
		if p.ID != v.Self.ID {
			return p, true
		}
	}
	return engine.Player{}, false
}

func (v View) InRoom() bool { return v.RoomID != "" }
