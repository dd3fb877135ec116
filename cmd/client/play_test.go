package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/session"
)

func TestRoomCode(t *testing.T) {
	assert.Equal(t, "AB12C", roomCode(" ab12c "))
	assert.Equal(t, "AB12C", roomCode("https://quiz.example/?room=AB12C"))
	assert.Equal(t, "", roomCode(""))
}

func TestInviteBase(t *testing.T) {
	assert.Equal(t, "http://localhost:3000", inviteBase("ws://localhost:3000/ws"))
	assert.Equal(t, "https://quiz.example", inviteBase("wss://quiz.example/ws?x=1"))
}

func TestRope(t *testing.T) {
	assert.Equal(t, "red |#----------------------------------------| blue  0", rope(0))
	assert.Contains(t, rope(50), "--------------------#--------------------")
}

func TestChanges(t *testing.T) {
	lobby := session.View{Stage: session.StageLobby, RopePosition: 50}
	countdown := session.View{Stage: session.StageCountdown, Countdown: 3, RopePosition: 50}
	assert.Equal(t, []string{"3..."}, changes(lobby, countdown))

	game := session.View{Stage: session.StageGame, RopePosition: 50, Question: "2 + 2?", Options: []string{"4", "5"}}
	assert.Equal(t, []string{"2 + 2?", "  1) 4", "  2) 5"}, changes(countdown, game))

	answered := game
	answered.IsAnswered, answered.IsCorrect = true, true
	assert.Equal(t, []string{"correct!"}, changes(game, answered))

	win := session.View{Stage: session.StageWin, RopePosition: 90, WinnerName: "Anna"}
	lines := changes(answered, win)
	assert.Contains(t, lines, "Anna wins! type reset to play again")

	withNotice := lobby
	withNotice.Notice = engine.ErrRoomFull.Error()
	withNotice.Players = []engine.Player{{Name: "Anna", Team: engine.TeamBlue}}
	assert.Equal(t, []string{"! room is full", "players: Anna (blue)"}, changes(lobby, withNotice))
}
