package media

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Loopback is an in-memory Channel. It performs the offer/answer exchange
// with placeholder descriptions and keeps track of the local toggles, which is
// all the game needs from a media stack.
type Loopback struct {
	mu sync.Mutex

	self string
	send SendFunc

	// Deny makes RequestLocalStream fail with ErrPermissionDenied.
	Deny bool

	streaming    bool
	audio, video bool
	muted        bool
	videoOn      bool
	remote       string
	connected    bool
	candidates   int
	tracks       map[TrackKind]string
	closed       bool
}

func NewLoopback(self string, send SendFunc) *Loopback {
	return &Loopback{self: self, send: send, tracks: map[TrackKind]string{}}
}

var _ Channel = (*Loopback)(nil)

func (l *Loopback) RequestLocalStream(ctx context.Context, audio, video bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.Deny {
		return ErrPermissionDenied
	}
	l.streaming = true
	l.audio, l.video = audio, video
	l.videoOn = video
	return nil
}

func (l *Loopback) Call(ctx context.Context, remote string) error {
	l.mu.Lock()
	if !l.streaming {
		l.mu.Unlock()
		return ErrNoLocalStream
	}
	l.remote = remote
	l.mu.Unlock()

	return l.send(ctx, Signal{
		Kind:   KindOffer,
		Target: remote,
		Caller: l.self,
		SDP:    description("offer", l.self),
	})
}

func (l *Loopback) HandleSignal(ctx context.Context, sig Signal) error {
	switch sig.Kind {
	case KindOffer:
		l.mu.Lock()
		l.remote = sig.Caller
		l.connected = true
		l.mu.Unlock()

		return l.send(ctx, Signal{
			Kind:   KindAnswer,
			Target: sig.Caller,
			Caller: l.self,
			SDP:    description("answer", l.self),
		})

	case KindAnswer:
		l.mu.Lock()
		l.connected = true
		l.mu.Unlock()
		return nil

	case KindICECandidate:
		l.mu.Lock()
		if len(sig.Candidate) > 0 {
			l.candidates++
		}
		l.mu.Unlock()
		return nil

	default:
		return fmt.Errorf("unknown signal kind %q", sig.Kind)
	}
}

func (l *Loopback) ReplaceTrack(kind TrackKind, track string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.streaming {
		return ErrNoLocalStream
	}
	l.tracks[kind] = track
	return nil
}

func (l *Loopback) SetMuted(muted bool) {
	l.mu.Lock()
	l.muted = muted
	l.mu.Unlock()
}

func (l *Loopback) SetVideoEnabled(enabled bool) {
	l.mu.Lock()
	l.videoOn = enabled
	l.mu.Unlock()
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	l.closed = true
	l.connected = false
	l.mu.Unlock()
	return nil
}

type LoopbackStatus struct {
	Streaming  bool
	Connected  bool
	Remote     string
	Muted      bool
	VideoOn    bool
	Tracks     map[TrackKind]string
	Candidates int
	Closed     bool
}

func (l *Loopback) Status() LoopbackStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	tracks := make(map[TrackKind]string, len(l.tracks))
	for k, v := range l.tracks {
		tracks[k] = v
	}
	return LoopbackStatus{
		Streaming:  l.streaming,
		Connected:  l.connected,
		Remote:     l.remote,
		Muted:      l.muted,
		VideoOn:    l.videoOn,
		Tracks:     tracks,
		Candidates: l.candidates,
		Closed:     l.closed,
	}
}

func description(kind, from string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"type": kind, "sdp": "loopback:" + from})
	return b
}
