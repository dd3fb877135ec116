// Package media describes the voice/video side channel. Signalling messages
// travel next to game state but are never interpreted by the room.
package media

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrPermissionDenied = errors.New("microphone or camera permission denied")
var ErrNoLocalStream = errors.New("local stream not started")

type Kind string

const (
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"
)

func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindOffer, KindAnswer, KindICECandidate:
		return Kind(s), true
	default:
		return "", false
	}
}

type Signal struct {
	Kind      Kind            `json:"kind"`
	Target    string          `json:"target"`
	Caller    string          `json:"caller,omitempty"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Channel is the real-time media stack. Implementations wrap whatever WebRTC
// library the client runs on.
type Channel interface {
	RequestLocalStream(ctx context.Context, audio, video bool) error
	Call(ctx context.Context, remote string) error
	// HandleSignal consumes an inbound signal. Offers are answered
	// automatically.
	HandleSignal(ctx context.Context, sig Signal) error
	ReplaceTrack(kind TrackKind, track string) error
	SetMuted(muted bool)
	SetVideoEnabled(enabled bool)
	Close() error
}

// SendFunc delivers an outbound signal over the game transport.
type SendFunc func(ctx context.Context, sig Signal) error
