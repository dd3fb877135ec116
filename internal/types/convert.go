package types

import (
	"errors"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/media"
	"github.com/DoyleJ11/tugquiz-backend/internal/room"
)

// ToCommand maps a game message onto an engine command issued by playerID.
// Room management and signalling messages are not commands.
func ToCommand(m ClientMessage, playerID string) (engine.Command, bool) {
	switch m.Type {
	case MsgStartGame:
		return engine.Command{Type: engine.CmdStartGame, PlayerID: playerID}, true
	case MsgSubmitAnswer:
		return engine.Command{Type: engine.CmdSubmitAnswer, PlayerID: playerID, Correct: m.Correct}, true
	case MsgMutate:
		return engine.Command{Type: engine.CmdSetRope, PlayerID: playerID, Position: m.RopePosition}, true
	case MsgSetQuestion:
		return engine.Command{Type: engine.CmdSetQuestion, PlayerID: playerID, QuestionIndex: m.Index, Options: m.Options}, true
	default:
		return engine.Command{}, false
	}
}

// FromCommand is the inverse of ToCommand, used by clients.
func FromCommand(cmd engine.Command) (ClientMessage, bool) {
	switch cmd.Type {
	case engine.CmdStartGame:
		return ClientMessage{Type: MsgStartGame}, true
	case engine.CmdSubmitAnswer:
		return ClientMessage{Type: MsgSubmitAnswer, Correct: cmd.Correct}, true
	case engine.CmdSetRope:
		return ClientMessage{Type: MsgMutate, RopePosition: cmd.Position}, true
	case engine.CmdSetQuestion:
		return ClientMessage{Type: MsgSetQuestion, Index: cmd.QuestionIndex, Options: cmd.Options}, true
	case engine.CmdLeave:
		return ClientMessage{Type: MsgLeave}, true
	default:
		return ClientMessage{}, false
	}
}

// SignalMessage wraps a media signal; its kind is the message type.
func SignalMessage(sig media.Signal) ClientMessage {
	return ClientMessage{
		Type:      string(sig.Kind),
		Target:    sig.Target,
		Caller:    sig.Caller,
		SDP:       sig.SDP,
		Candidate: sig.Candidate,
	}
}

// ToSignal reports whether m is a signalling message.
func ToSignal(m ClientMessage) (media.Signal, bool) {
	kind, ok := media.ParseKind(m.Type)
	if !ok {
		return media.Signal{}, false
	}
	return media.Signal{Kind: kind, Target: m.Target, Caller: m.Caller, SDP: m.SDP, Candidate: m.Candidate}, true
}

// SignalFrom is the client side of ToSignal.
func SignalFrom(m ServerMessage) (media.Signal, bool) {
	kind, ok := media.ParseKind(m.Type)
	if !ok {
		return media.Signal{}, false
	}
	return media.Signal{Kind: kind, Target: m.Target, Caller: m.Caller, SDP: m.SDP, Candidate: m.Candidate}, true
}

// FromUpdate renders a room update as the message sent to the client.
func FromUpdate(u room.Update) ServerMessage {
	st := u.State
	switch u.Kind {
	case room.UpdPlayers:
		return ServerMessage{Type: MsgPlayerJoined, Players: st.Players, Version: u.Version, State: &st}
	case room.UpdReady:
		return ServerMessage{Type: MsgReadyToStart, Version: u.Version}
	case room.UpdGameStarted:
		return ServerMessage{Type: MsgGameStarted, RopePosition: st.RopePosition, Version: u.Version, State: &st}
	case room.UpdState:
		return ServerMessage{Type: MsgStateUpdate, RopePosition: st.RopePosition, Version: u.Version, State: &st}
	case room.UpdRoundWon:
		return ServerMessage{Type: MsgRoundWon, WinnerName: u.WinnerName, Scores: Scores(st), Version: u.Version, State: &st}
	case room.UpdGameOver:
		return ServerMessage{Type: MsgGameOver, WinnerName: u.WinnerName, Version: u.Version, State: &st}
	case room.UpdPlayerLeft:
		return ServerMessage{Type: MsgPlayerLeft, Players: st.Players, Version: u.Version, State: &st}
	case room.UpdOpponentLeft:
		return ServerMessage{Type: MsgOpponentLeft, Version: u.Version}
	case room.UpdClosed:
		return ServerMessage{Type: MsgRoomClosed}
	case room.UpdSignal:
		if u.Signal == nil {
			break
		}
		return ServerMessage{
			Type:      string(u.Signal.Kind),
			Target:    u.Signal.Target,
			Caller:    u.Signal.Caller,
			SDP:       u.Signal.SDP,
			Candidate: u.Signal.Candidate,
		}
	}
	return ErrorMessage(u.Err)
}

// ErrorMessage maps errors onto error frames; a full room gets its own type.
func ErrorMessage(err error) ServerMessage {
	if err == nil {
		err = engine.ErrUnsupportedCommand
	}
	if errors.Is(err, engine.ErrRoomFull) {
		return ServerMessage{Type: MsgRoomFull, Error: err.Error()}
	}
	return ServerMessage{Type: MsgError, Error: err.Error()}
}

// ParseError maps an error frame back onto the sentinel it was built from, so
// clients can match it with errors.Is.
func ParseError(m ServerMessage) error {
	if m.Type == MsgRoomFull {
		return engine.ErrRoomFull
	}
	for _, known := range []error{
		engine.ErrRoomFull,
		engine.ErrRoomNotFound,
		engine.ErrRoomClosed,
		engine.ErrNotMember,
		engine.ErrNotHost,
		engine.ErrInvalidName,
		engine.ErrMissingPlayerID,
		engine.ErrNotEnoughPlayers,
		engine.ErrGameNotStarted,
		engine.ErrGameAlreadyStarted,
		engine.ErrUnsupportedCommand,
	} {
		if m.Error == known.Error() {
			return known
		}
	}
	return errors.New(m.Error)
}
