package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/DoyleJ11/tugquiz-backend/internal/session"
)

const ropeWidth = 40

func render(ctx context.Context, ctrl *session.Controller, out io.Writer) {
	var last session.View
	for {
		select {
		case <-ctx.Done():
			return
		case <-ctrl.Done():
			return
		case v := <-ctrl.Updates():
			for _, line := range changes(last, v) {
				fmt.Fprintln(out, line)
			}
			last = v
		}
	}
}

// changes lists what a player should be told about going from prev to next.
func changes(prev, next session.View) []string {
	var out []string
	if next.Notice != "" && next.Notice != prev.Notice {
		out = append(out, "! "+next.Notice)
	}
	if len(next.Players) != len(prev.Players) {
		names := make([]string, 0, len(next.Players))
		for _, p := range next.Players {
			names = append(names, fmt.Sprintf("%s (%s)", p.Name, p.Team))
		}
		out = append(out, "players: "+strings.Join(names, ", "))
	}

	switch {
	case next.Stage == session.StageCountdown && next.Countdown != prev.Countdown:
		out = append(out, fmt.Sprintf("%d...", next.Countdown))
	case next.Stage == session.StageWin && prev.Stage != session.StageWin:
		out = append(out, rope(next.RopePosition), fmt.Sprintf("%s wins! type reset to play again", next.WinnerName))
	case next.Stage == session.StageLobby && prev.Stage != session.StageLobby:
		out = append(out, "back in the lobby")
	}

	if next.Stage != session.StageGame {
		return out
	}
	if next.RoundWinner != "" && next.Round != prev.Round {
		out = append(out, fmt.Sprintf("%s took the round, now round %d", next.RoundWinner, next.Round))
	}
	if next.RopePosition != prev.RopePosition {
		out = append(out, rope(next.RopePosition))
	}
	if next.Question != "" && (next.Question != prev.Question || prev.IsAnswered && !next.IsAnswered) {
		out = append(out, next.Question)
		for i, o := range next.Options {
			out = append(out, fmt.Sprintf("  %d) %s", i+1, o))
		}
	}
	if next.IsAnswered && !prev.IsAnswered {
		if next.IsCorrect {
			out = append(out, "correct!")
		} else {
			out = append(out, "wrong")
		}
	}
	return out
}

// rope draws the marker between the red end (left) and the blue end (right).
func rope(pos int) string {
	at := pos * ropeWidth / 100
	return fmt.Sprintf("red |%s#%s| blue  %d", strings.Repeat("-", at), strings.Repeat("-", ropeWidth-at), pos)
}
