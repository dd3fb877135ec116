package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/tugquiz-backend/internal/docstore"
	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/transport/doc"
)

func TestFlow_TwoPlayersOverSharedDocument(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewStore(ctx, docstore.NewMemory(), engine.DefaultRules())
	t.Cleanup(func() { _ = store.Close() })

	player := func(session string) *Controller {
		tr := doc.New(ctx, store, session, doc.Options{JoinTimeout: time.Second})
		c := New(ctx, tr, Options{
			Bank:          testBank(t),
			Rand:          firstRand{},
			CountdownTick: 2 * time.Millisecond,
			AnswerDelay:   5 * time.Millisecond,
		})
		t.Cleanup(func() {
			_ = c.Close()
			_ = tr.Close()
		})
		return c
	}
	host, guest := player("anna"), player("omar")

	m, err := host.Create(ctx, "Anna")
	require.NoError(t, err)
	_, err = guest.Join(ctx, m.RoomID, "Omar")
	require.NoError(t, err)

	waitView(t, host, "opponent", func(v View) bool { return len(v.Players) == 2 })
	require.NoError(t, host.Start(ctx))

	for i := 0; i < 8; i++ {
		waitView(t, host, "a fresh question", func(v View) bool {
			return v.Stage == StageGame && v.Question != "" && !v.IsAnswered
		})
		require.NoError(t, host.Answer(ctx, "4"))
	}

	for _, c := range []*Controller{host, guest} {
		v := waitView(t, c, "win", func(v View) bool { return v.Stage == StageWin })
		assert.Equal(t, "Anna", v.WinnerName)
		assert.Equal(t, 90, v.RopePosition)
	}
}
