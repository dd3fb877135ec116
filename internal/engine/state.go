package engine

import (
	"time"
)

type Team int

const (
	TeamBlue Team = 1 // room creator, pulls towards WinHigh
	TeamRed  Team = 2 // first joiner, pulls towards WinLow
)

func (t Team) String() string {
	switch t {
	case TeamBlue:
		return "blue"
	case TeamRed:
		return "red"
	default:
		return "unknown"
	}
}

func (t Team) Other() Team {
	if t == TeamBlue {
		return TeamRed
	}
	return TeamBlue
}

// Fallback is the winner label used when no player name is known for t.
func (t Team) Fallback() string {
	if t == TeamRed {
		return "Team 2"
	}
	return "Team 1"
}

type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhasePlaying  Phase = "playing"
	PhaseFinished Phase = "finished"
)

type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Team   Team   `json:"team"`
	IsHost bool   `json:"isHost"`
}

type TeamState struct {
	QuestionIndex   int      `json:"questionIndex"`
	ShuffledOptions []string `json:"shuffledOptions,omitempty"`
	Score           int      `json:"score"`
	Answered        int      `json:"answered"`
}

// State is the whole room document. Every subscriber receives it in full.
type State struct {
	RoomID       string              `json:"roomId"`
	Players      []Player            `json:"players"`
	RopePosition int                 `json:"ropePosition"`
	WinnerName   string              `json:"winnerName,omitempty"`
	GameStarted  bool                `json:"gameStarted"`
	Phase        Phase               `json:"phase"`
	Round        int                 `json:"round"`
	Teams        map[Team]*TeamState `json:"teams"`
	Rules        Rules               `json:"rules"`
	CreatedAt    time.Time           `json:"createdAt"`
}

func (s State) Player(id string) (Player, bool) {
	if i := s.indexOf(id); i >= 0 {
		return s.Players[i], true
	}
	return Player{}, false
}

func (s State) PlayerOnTeam(team Team) (Player, bool) {
	for _, p := range s.Players {
		if p.Team == team {
			return p, true
		}
	}
	return Player{}, false
}

func (s State) Host() (Player, bool) {
	for _, p := range s.Players {
		if p.IsHost {
			return p, true
		}
	}
	return Player{}, false
}

// TeamName is the display name of the player on team, or the team fallback.
func (s State) TeamName(team Team) string {
	if p, ok := s.PlayerOnTeam(team); ok && p.Name != "" {
		return p.Name
	}
	return team.Fallback()
}

func (s State) Full() bool {
	return len(s.Players) >= s.Rules.MaxPlayers
}

func (s State) Scores() map[Team]int {
	out := make(map[Team]int, len(s.Teams))
	for team, ts := range s.Teams {
		out[team] = ts.Score
	}
	return out
}

func (s State) TeamState(team Team) TeamState {
	if ts, ok := s.Teams[team]; ok && ts != nil {
		return *ts
	}
	return TeamState{QuestionIndex: -1}
}

// Clone returns a deep copy, so callers can mutate it without touching s.
func (s State) Clone() State {
	c := s
	c.Players = append([]Player(nil), s.Players...)
	c.Teams = make(map[Team]*TeamState, len(s.Teams))
	for team, ts := range s.Teams {
		if ts == nil {
			continue
		}
		cp := *ts
		cp.ShuffledOptions = append([]string(nil), ts.ShuffledOptions...)
		c.Teams[team] = &cp
	}
	return c
}

func (s State) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, p := range s.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *State) team(t Team) *TeamState {
	if s.Teams == nil {
		s.Teams = map[Team]*TeamState{}
	}
	ts, ok := s.Teams[t]
	if !ok || ts == nil {
		ts = &TeamState{QuestionIndex: -1}
		s.Teams[t] = ts
	}
	return ts
}

func (s *State) resetQuestions() {
	for _, t := range []Team{TeamBlue, TeamRed} {
		ts := s.team(t)
		ts.QuestionIndex = -1
		ts.ShuffledOptions = nil
		ts.Answered = 0
	}
}

func (s *State) resetGame() {
	s.GameStarted = false
	s.RopePosition = s.Rules.Start
	s.WinnerName = ""
	s.Round = 0
	s.resetQuestions()
}
