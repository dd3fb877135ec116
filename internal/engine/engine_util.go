package engine

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const MaxNameLength = 24

type Mode string

const (
	ModeSingle Mode = "single" // threshold ends the game
	ModeRounds Mode = "rounds" // threshold scores a round, first to RoundsToWin
)

type Rules struct {
	Mode        Mode `json:"mode"`
	Step        int  `json:"step"`
	Min         int  `json:"min"`
	Max         int  `json:"max"`
	WinLow      int  `json:"winLow"`
	WinHigh     int  `json:"winHigh"`
	Start       int  `json:"start"`
	RoundsToWin int  `json:"roundsToWin"`
	MaxPlayers  int  `json:"maxPlayers"`
}

func DefaultRules() Rules {
	return Rules{
		Mode:        ModeSingle,
		Step:        5,
		Min:         5,
		Max:         95,
		WinLow:      10,
		WinHigh:     90,
		Start:       50,
		RoundsToWin: 3,
		MaxPlayers:  2,
	}
}

func (r Rules) Validate() error {
	if r.Mode != ModeSingle && r.Mode != ModeRounds {
		return fmt.Errorf("unknown game mode %q", r.Mode)
	}
	if r.Step <= 0 {
		return fmt.Errorf("step must be positive, got %d", r.Step)
	}
	if !(r.Min <= r.WinLow && r.WinLow < r.Start && r.Start < r.WinHigh && r.WinHigh <= r.Max) {
		return fmt.Errorf("rope bounds out of order: min=%d winLow=%d start=%d winHigh=%d max=%d",
			r.Min, r.WinLow, r.Start, r.WinHigh, r.Max)
	}
	if r.RoundsToWin < 1 {
		return fmt.Errorf("rounds to win must be at least 1, got %d", r.RoundsToWin)
	}
	if r.MaxPlayers != 2 {
		return fmt.Errorf("rooms hold exactly 2 players, got %d", r.MaxPlayers)
	}
	return nil
}

// Winner reports which team a rope position resolves for, if any.
func (r Rules) Winner(pos int) (Team, bool) {
	switch {
	case pos >= r.WinHigh:
		return TeamBlue, true
	case pos <= r.WinLow:
		return TeamRed, true
	default:
		return 0, false
	}
}

func NewState(roomID string, rules Rules) State {
	s := State{
		RoomID:       roomID,
		Players:      []Player{},
		RopePosition: rules.Start,
		Phase:        PhaseLobby,
		Rules:        rules,
		CreatedAt:    time.Now().UTC(),
	}
	s.resetQuestions()
	return s
}

func Clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Delta is the rope movement for one answer. Blue pulls up, Red pulls down:
// a correct Blue answer and a wrong Red answer both move the rope by +step.
func Delta(team Team, correct bool, step int) int {
	if (team == TeamBlue) == correct {
		return step
	}
	return -step
}

func NormalizeName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	if name == "" {
		return "", ErrInvalidName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = string([]rune(name)[:MaxNameLength])
	}
	return name, nil
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func FindEvent(events []Event, eventType EventType) (Event, bool) {
	for _, event := range events {
		if event.Type == eventType {
			return event, true
		}
	}
	return Event{}, false
}
