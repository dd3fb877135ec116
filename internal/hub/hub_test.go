package hub

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/room"
)

func newTestHub(t *testing.T, opts Options) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHub(ctx, opts)
}

func waitCount(t *testing.T, h *Hub, want int, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for {
		n, err := h.Count(context.Background())
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("want %d rooms, have %d", want, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := newTestHub(t, Options{})
	reply := make(chan *room.Room, 1)

	state := engine.NewState("", engine.DefaultRules())
	h.Inbox() <- CreateRoom{State: state, Reply: reply}
	rm1 := <-reply

	h.Inbox() <- GetRoom{Code: rm1.Code(), Reply: reply}
	rm2 := <-reply

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected same room pointer")
	}
}

func TestHub_CodesAreShortUppercaseAndUnique(t *testing.T) {
	h := newTestHub(t, Options{})
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rm, err := h.Create(ctx, engine.NewState("", engine.DefaultRules()))
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		code := rm.Code()
		if len(code) != room.CodeLength || strings.ToUpper(code) != code {
			t.Fatalf("bad code %q", code)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
	waitCount(t, h, 50, time.Second)
}

func TestHub_Get_UnknownCode(t *testing.T) {
	h := newTestHub(t, Options{})

	_, err := h.Get(context.Background(), "NOPE1")
	if !errors.Is(err, engine.ErrRoomNotFound) {
		t.Fatalf("want ErrRoomNotFound, got %v", err)
	}
}

func TestHub_Ensure_CreatesOnce(t *testing.T) {
	h := newTestHub(t, Options{})
	ctx := context.Background()

	a, err := h.Ensure(ctx, "ZED12", engine.NewState("", engine.DefaultRules()))
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	b, err := h.Ensure(ctx, "ZED12", engine.NewState("", engine.DefaultRules()))
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if a != b {
		t.Fatalf("ensure created a second room for the same code")
	}
}

func TestHub_EmptyRoomIsRemoved(t *testing.T) {
	h := newTestHub(t, Options{})
	ctx := context.Background()

	rm, err := h.Create(ctx, engine.NewState("", engine.DefaultRules()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := rm.JoinPlayer(ctx, "c1", "anna", "Anna", make(chan room.Update, 8)); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitCount(t, h, 1, time.Second)

	rm.Inbox() <- room.Leave{ClientID: "c1", PlayerID: "anna"}
	waitCount(t, h, 0, time.Second)

	if _, err := h.Get(ctx, rm.Code()); !errors.Is(err, engine.ErrRoomNotFound) {
		t.Fatalf("want ErrRoomNotFound after empty, got %v", err)
	}
}

func TestHub_ReaperClosesIdleRooms(t *testing.T) {
	h := newTestHub(t, Options{IdleTimeout: 40 * time.Millisecond})

	rm, err := h.Create(context.Background(), engine.NewState("", engine.DefaultRules()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case <-rm.Done():
	case <-time.After(time.Second):
		t.Fatalf("idle room was not reaped")
	}
	waitCount(t, h, 0, time.Second)
}

func TestHub_Shutdown_StopsRooms(t *testing.T) {
	h := newTestHub(t, Options{})

	rm, err := h.Create(context.Background(), engine.NewState("", engine.DefaultRules()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	h.Inbox() <- ShutdownHub{}

	select {
	case <-rm.Done():
	case <-time.After(time.Second):
		t.Fatalf("room still running after hub shutdown")
	}
	<-h.Done()

	if _, err := h.Create(context.Background(), engine.NewState("", engine.DefaultRules())); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("want ErrHubClosed, got %v", err)
	}
}
