package types

import (
	"encoding/json"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
)

// Client -> Server
// create_room:   name: string
// join_room:     roomId: string, name: string
// start_game:    {}
// submit_answer: correct: boolean
// mutate:        ropePosition: number   (raw write, last one wins)
// set_question:  index: number, options: string[]
// leave:         {}
// offer | answer | ice-candidate:
//   target: string, caller: string, sdp | candidate: object (opaque)
//
// Server -> Client
// welcome:        sessionId
// joined_success: roomId, player
// player_joined:  players
// ready_to_start: {}
// game_started:   state
// state_update:   ropePosition, version, state
// round_won:      winnerName, scores
// game_over:      winnerName, state
// player_left:    players
// opponent_left:  {}
// room_closed:    {}
// room_full:      error
// error:          error
// offer | answer | ice-candidate: relayed untouched

const (
	MsgCreateRoom   = "create_room"
	MsgJoinRoom     = "join_room"
	MsgStartGame    = "start_game"
	MsgSubmitAnswer = "submit_answer"
	MsgMutate       = "mutate"
	MsgSetQuestion  = "set_question"
	MsgLeave        = "leave"

	MsgWelcome       = "welcome"
	MsgJoinedSuccess = "joined_success"
	MsgPlayerJoined  = "player_joined"
	MsgReadyToStart  = "ready_to_start"
	MsgGameStarted   = "game_started"
	MsgStateUpdate   = "state_update"
	MsgRoundWon      = "round_won"
	MsgGameOver      = "game_over"
	MsgPlayerLeft    = "player_left"
	MsgOpponentLeft  = "opponent_left"
	MsgRoomClosed    = "room_closed"
	MsgRoomFull      = "room_full"
	MsgError         = "error"
)

type ClientMessage struct {
	Type         string          `json:"type"`
	RoomID       string          `json:"roomId,omitempty"`
	Name         string          `json:"name,omitempty"`
	Correct      bool            `json:"correct,omitempty"`
	RopePosition int             `json:"ropePosition,omitempty"`
	Index        int             `json:"index,omitempty"`
	Options      []string        `json:"options,omitempty"`
	Target       string          `json:"target,omitempty"`
	Caller       string          `json:"caller,omitempty"`
	SDP          json.RawMessage `json:"sdp,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

type ServerMessage struct {
	Type         string          `json:"type"`
	SessionID    string          `json:"sessionId,omitempty"`
	RoomID       string          `json:"roomId,omitempty"`
	Player       *engine.Player  `json:"player,omitempty"`
	Players      []engine.Player `json:"players,omitempty"`
	RopePosition int             `json:"ropePosition,omitempty"`
	Version      int             `json:"version,omitempty"`
	State        *engine.State   `json:"state,omitempty"`
	WinnerName   string          `json:"winnerName,omitempty"`
	Scores       map[string]int  `json:"scores,omitempty"`
	Error        string          `json:"error,omitempty"`
	Target       string          `json:"target,omitempty"`
	Caller       string          `json:"caller,omitempty"`
	SDP          json.RawMessage `json:"sdp,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
}

// Scores renders per-team round scores keyed by team name.
func Scores(s engine.State) map[string]int {
	out := make(map[string]int, len(s.Teams))
	for team, score := range s.Scores() {
		out[team.String()] = score
	}
	return out
}
