package engine

import (
	"errors"
)

var ErrRoomFull = errors.New("room is full")
var ErrRoomNotFound = errors.New("room not found")
var ErrRoomClosed = errors.New("room closed")
var ErrNotMember = errors.New("not a member of this room")
var ErrNotHost = errors.New("only the host can do that")
var ErrInvalidName = errors.New("invalid player name")
var ErrMissingPlayerID = errors.New("missing player id")
var ErrNotEnoughPlayers = errors.New("waiting for a second player")
var ErrGameNotStarted = errors.New("game not started")
var ErrGameAlreadyStarted = errors.New("game already started")
var ErrUnsupportedCommand = errors.New("unsupported command")

type CommandType string

const (
	CmdJoin         CommandType = "Join"
	CmdLeave        CommandType = "Leave"
	CmdStartGame    CommandType = "StartGame"
	CmdSubmitAnswer CommandType = "SubmitAnswer"
	CmdSetRope      CommandType = "SetRope"
	CmdSetQuestion  CommandType = "SetQuestion"
)

/*
	CmdJoin         -> EvtPlayerJoined | EvtPlayerRejoined
	CmdLeave        -> EvtPlayerLeft -> EvtOpponentLeft | EvtRoomEmptied
	CmdStartGame    -> EvtGameStarted
	CmdSubmitAnswer -> EvtRopeMoved -> (EvtRoundWon) -> (EvtGameOver)
	CmdSetRope      -> EvtRopeMoved -> (EvtRoundWon) -> (EvtGameOver)
	CmdSetQuestion  -> EvtQuestionChanged

	Answers carry only "correct or not"; the delta is computed here so that
	whoever owns the state applies every answer against the current rope.
*/

type Command struct {
	Type          CommandType
	PlayerID      string
	Name          string
	Correct       bool
	Position      int
	QuestionIndex int
	Options       []string
}

type EventType string

const (
	EvtPlayerJoined    EventType = "PlayerJoined"
	EvtPlayerRejoined  EventType = "PlayerRejoined"
	EvtPlayerLeft      EventType = "PlayerLeft"
	EvtOpponentLeft    EventType = "OpponentLeft"
	EvtRoomEmptied     EventType = "RoomEmptied"
	EvtGameStarted     EventType = "GameStarted"
	EvtRopeMoved       EventType = "RopeMoved"
	EvtQuestionChanged EventType = "QuestionChanged"
	EvtRoundWon        EventType = "RoundWon"
	EvtGameOver        EventType = "GameOver"
)

type Event struct {
	Type       EventType
	PlayerID   string
	Name       string
	Team       Team
	Host       bool
	Delta      int
	Position   int
	WinnerName string
}

// Apply validates cmd against s and returns the resulting events and state.
// s is never modified; on error the returned state is s.
func Apply(s State, cmd Command) ([]Event, State, error) {
	newState := s.Clone()

	switch cmd.Type {
	case CmdJoin:
		if cmd.PlayerID == "" {
			return nil, s, ErrMissingPlayerID
		}
		name, err := NormalizeName(cmd.Name)
		if err != nil {
			return nil, s, err
		}

		// Idempotent rejoin: same id keeps its slot
		if i := newState.indexOf(cmd.PlayerID); i >= 0 {
			newState.Players[i].Name = name
			p := newState.Players[i]
			return []Event{{Type: EvtPlayerRejoined, PlayerID: p.ID, Name: p.Name, Team: p.Team, Host: p.IsHost}}, newState, nil
		}

		if len(newState.Players) >= newState.Rules.MaxPlayers {
			return nil, s, ErrRoomFull
		}

		p := Player{ID: cmd.PlayerID, Name: name, Team: TeamBlue, IsHost: len(newState.Players) == 0}
		if len(newState.Players) > 0 {
			p.Team = newState.Players[0].Team.Other()
		}
		newState.Players = append(newState.Players, p)

		return []Event{{Type: EvtPlayerJoined, PlayerID: p.ID, Name: p.Name, Team: p.Team, Host: p.IsHost}}, newState, nil

	case CmdLeave:
		i := newState.indexOf(cmd.PlayerID)
		if i < 0 {
			return nil, s, ErrNotMember
		}
		left := newState.Players[i]
		newState.Players = append(newState.Players[:i:i], newState.Players[i+1:]...)

		events := []Event{{Type: EvtPlayerLeft, PlayerID: left.ID, Name: left.Name, Team: left.Team}}
		if len(newState.Players) == 0 {
			events = append(events, Event{Type: EvtRoomEmptied})
			return events, newState, nil
		}

		// A lone player cannot keep playing; the room drops back to the lobby.
		if left.IsHost {
			newState.Players[0].IsHost = true
		}
		newState.resetGame()
		newState.Phase = PhaseLobby
		events = append(events, Event{Type: EvtOpponentLeft, PlayerID: left.ID})
		return events, newState, nil

	case CmdStartGame:
		p, ok := newState.Player(cmd.PlayerID)
		if !ok {
			return nil, s, ErrNotMember
		}
		if !p.IsHost {
			return nil, s, ErrNotHost
		}
		if len(newState.Players) < newState.Rules.MaxPlayers {
			return nil, s, ErrNotEnoughPlayers
		}
		if newState.GameStarted {
			return nil, s, ErrGameAlreadyStarted
		}

		newState.resetGame()
		for _, ts := range newState.Teams {
			ts.Score = 0
		}
		newState.GameStarted = true
		newState.Phase = PhasePlaying
		newState.Round = 1

		return []Event{{Type: EvtGameStarted, Position: newState.RopePosition}}, newState, nil

	case CmdSubmitAnswer:
		p, ok := newState.Player(cmd.PlayerID)
		if !ok {
			return nil, s, ErrNotMember
		}
		if !newState.GameStarted {
			return nil, s, ErrGameNotStarted
		}

		delta := Delta(p.Team, cmd.Correct, newState.Rules.Step)
		newState.team(p.Team).Answered++
		events := newState.moveRope(newState.RopePosition+delta, p)
		return events, newState, nil

	case CmdSetRope:
		events := newState.moveRope(cmd.Position, Player{ID: cmd.PlayerID})
		return events, newState, nil

	case CmdSetQuestion:
		p, ok := newState.Player(cmd.PlayerID)
		if !ok {
			return nil, s, ErrNotMember
		}
		if !newState.GameStarted {
			return nil, s, ErrGameNotStarted
		}

		ts := newState.team(p.Team)
		ts.QuestionIndex = cmd.QuestionIndex
		ts.ShuffledOptions = append([]string(nil), cmd.Options...)
		return []Event{{Type: EvtQuestionChanged, PlayerID: p.ID, Team: p.Team, Position: cmd.QuestionIndex}}, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// moveRope clamps target into the rope range and resolves a threshold
// crossing. Resolution only happens here, so re-reading a state that sits on
// a threshold never resolves it twice.
func (s *State) moveRope(target int, by Player) []Event {
	from := s.RopePosition
	s.RopePosition = Clamp(target, s.Rules.Min, s.Rules.Max)

	events := []Event{{
		Type:     EvtRopeMoved,
		PlayerID: by.ID,
		Team:     by.Team,
		Delta:    s.RopePosition - from,
		Position: s.RopePosition,
	}}

	if !s.GameStarted {
		return events
	}

	team, ok := s.Rules.Winner(s.RopePosition)
	if !ok {
		return events
	}
	name := s.TeamName(team)

	if s.Rules.Mode == ModeRounds {
		ts := s.team(team)
		ts.Score++
		events = append(events, Event{Type: EvtRoundWon, Team: team, WinnerName: name, Position: ts.Score})
		if ts.Score < s.Rules.RoundsToWin {
			s.RopePosition = s.Rules.Start
			s.Round++
			s.resetQuestions()
			return events
		}
		s.RopePosition = s.Rules.Start
	}

	s.WinnerName = name
	s.GameStarted = false
	s.Phase = PhaseFinished
	events = append(events, Event{Type: EvtGameOver, Team: team, WinnerName: name, Position: s.RopePosition})
	return events
}

// Reduce replays an event log onto an empty state with the given rules.
func Reduce(rules Rules, events []Event) State {
	s := NewState("", rules)
	for _, event := range events {
		switch event.Type {
		case EvtPlayerJoined:
			s.Players = append(s.Players, Player{ID: event.PlayerID, Name: event.Name, Team: event.Team, IsHost: event.Host})
		case EvtPlayerRejoined:
			if i := s.indexOf(event.PlayerID); i >= 0 {
				s.Players[i].Name = event.Name
			}
		case EvtPlayerLeft:
			if i := s.indexOf(event.PlayerID); i >= 0 {
				s.Players = append(s.Players[:i:i], s.Players[i+1:]...)
			}
		case EvtOpponentLeft:
			if len(s.Players) > 0 {
				s.Players[0].IsHost = true
			}
			s.resetGame()
			s.Phase = PhaseLobby
		case EvtGameStarted:
			s.resetGame()
			for _, ts := range s.Teams {
				ts.Score = 0
			}
			s.GameStarted = true
			s.Phase = PhasePlaying
			s.Round = 1
		case EvtRopeMoved:
			s.RopePosition = event.Position
		case EvtQuestionChanged:
			s.team(event.Team).QuestionIndex = event.Position
		case EvtRoundWon:
			s.team(event.Team).Score = event.Position
			if event.Position < s.Rules.RoundsToWin {
				s.RopePosition = s.Rules.Start
				s.Round++
				s.resetQuestions()
			}
		case EvtGameOver:
			s.RopePosition = event.Position
			s.WinnerName = event.WinnerName
			s.GameStarted = false
			s.Phase = PhaseFinished
		}
	}
	return s
}
