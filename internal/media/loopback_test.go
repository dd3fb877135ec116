package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pair wires two loopbacks to each other through their send functions.
func pair() (*Loopback, *Loopback) {
	var a, b *Loopback
	a = NewLoopback("anna", func(ctx context.Context, sig Signal) error { return b.HandleSignal(ctx, sig) })
	b = NewLoopback("omar", func(ctx context.Context, sig Signal) error { return a.HandleSignal(ctx, sig) })
	return a, b
}

func TestLoopback_CallIsAnsweredAutomatically(t *testing.T) {
	ctx := context.Background()
	a, b := pair()

	require.NoError(t, a.RequestLocalStream(ctx, true, false))
	require.NoError(t, a.Call(ctx, "omar"))

	assert.True(t, a.Status().Connected)
	assert.True(t, b.Status().Connected)
	assert.Equal(t, "anna", b.Status().Remote)
}

func TestLoopback_CallNeedsStream(t *testing.T) {
	a, _ := pair()
	assert.ErrorIs(t, a.Call(context.Background(), "omar"), ErrNoLocalStream)
}

func TestLoopback_PermissionDenied(t *testing.T) {
	a, _ := pair()
	a.Deny = true
	assert.ErrorIs(t, a.RequestLocalStream(context.Background(), true, true), ErrPermissionDenied)
}

func TestLoopback_Toggles(t *testing.T) {
	a, _ := pair()
	require.NoError(t, a.RequestLocalStream(context.Background(), true, true))

	a.SetMuted(true)
	a.SetVideoEnabled(false)
	st := a.Status()
	assert.True(t, st.Muted)
	assert.False(t, st.VideoOn)

	require.NoError(t, a.ReplaceTrack(TrackVideo, "screen"))
	require.NoError(t, a.HandleSignal(context.Background(), Signal{Kind: KindICECandidate, Candidate: []byte(`{"candidate":"x"}`)}))
	assert.Equal(t, 1, a.Status().Candidates)
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("ice-candidate")
	assert.True(t, ok)
	assert.Equal(t, KindICECandidate, k)

	_, ok = ParseKind("hangup")
	assert.False(t, ok)
}
