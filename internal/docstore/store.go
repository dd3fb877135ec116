package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
	"github.com/DoyleJ11/tugquiz-backend/internal/logging"
	"github.com/DoyleJ11/tugquiz-backend/internal/room"
)

const createAttempts = 8

// Patch is a shallow write to a room document. Nil fields are left alone; each
// set field overwrites whatever is stored, so the last write to a field wins.
// The rope still goes through the engine, which clamps it and resolves a
// threshold crossing.
type Patch struct {
	RopePosition *int
	GameStarted  *bool
	WinnerName   *string
	Phase        *engine.Phase
}

func (p Patch) apply(s engine.State) engine.State {
	if p.GameStarted != nil {
		s.GameStarted = *p.GameStarted
	}
	if p.WinnerName != nil {
		s.WinnerName = *p.WinnerName
	}
	if p.Phase != nil {
		s.Phase = *p.Phase
	}
	if p.RopePosition != nil {
		// SetRope never fails.
		_, s, _ = engine.Apply(s, engine.Command{Type: engine.CmdSetRope, Position: *p.RopePosition})
	}
	return s
}

// Store is the room store on top of a shared document backend.
type Store struct {
	backend Backend
	rules   engine.Rules
	logger  *zap.SugaredLogger
}

func NewStore(ctx context.Context, backend Backend, rules engine.Rules) *Store {
	return &Store{
		backend: backend,
		rules:   rules,
		logger:  logging.FromContext(ctx).Named("docstore"),
	}
}

// CreateRoom opens a document under a fresh code with the caller as host.
func (s *Store) CreateRoom(ctx context.Context, sessionID, name string) (string, engine.Player, error) {
	for i := 0; i < createAttempts; i++ {
		code, err := room.GenerateCode()
		if err != nil {
			return "", engine.Player{}, err
		}
		err = s.backend.Create(ctx, Document{ID: code, State: engine.NewState(code, s.rules), UpdatedAt: time.Now()})
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return "", engine.Player{}, fmt.Errorf("create room: %w", err)
		}

		p, err := s.JoinRoom(ctx, code, sessionID, name)
		if err != nil {
			return "", engine.Player{}, err
		}
		s.logger.Infow("room created", "room", code, "player", sessionID)
		return code, p, nil
	}
	return "", engine.Player{}, fmt.Errorf("create room: no free code after %d attempts", createAttempts)
}

func (s *Store) JoinRoom(ctx context.Context, roomID, sessionID, name string) (engine.Player, error) {
	_, doc, err := s.apply(ctx, roomID, engine.Command{Type: engine.CmdJoin, PlayerID: sessionID, Name: name})
	if err != nil {
		return engine.Player{}, err
	}
	p, _ := doc.State.Player(sessionID)
	return p, nil
}

func (s *Store) Get(ctx context.Context, roomID string) (Document, error) {
	return s.backend.Get(ctx, roomID)
}

// Subscribe streams the full room state, first the current one and then after
// every write, until ctx ends.
func (s *Store) Subscribe(ctx context.Context, roomID string) (<-chan engine.State, error) {
	docs, err := s.backend.Watch(ctx, roomID)
	if err != nil {
		return nil, err
	}
	out := make(chan engine.State, 1)
	go func() {
		defer close(out)
		for doc := range docs {
			select {
			case out <- doc.State:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Mutate writes p without membership or turn checks. The rope keeps its
// range and thresholds.
func (s *Store) Mutate(ctx context.Context, roomID string, p Patch) error {
	_, err := s.backend.Update(ctx, roomID, func(d *Document) error {
		d.State = p.apply(d.State)
		return nil
	})
	return err
}

// Apply runs cmd through the game engine inside the document's write, so
// concurrent answers are applied one after another.
func (s *Store) Apply(ctx context.Context, roomID string, cmd engine.Command) ([]engine.Event, error) {
	events, _, err := s.apply(ctx, roomID, cmd)
	return events, err
}

func (s *Store) apply(ctx context.Context, roomID string, cmd engine.Command) ([]engine.Event, Document, error) {
	var events []engine.Event
	doc, err := s.backend.Update(ctx, roomID, func(d *Document) error {
		evs, next, err := engine.Apply(d.State, cmd)
		if err != nil {
			return err
		}
		events = evs
		d.State = next
		return nil
	})
	return events, doc, err
}

func (s *Store) Leave(ctx context.Context, roomID, playerID string) error {
	_, err := s.Apply(ctx, roomID, engine.Command{Type: engine.CmdLeave, PlayerID: playerID})
	if errors.Is(err, engine.ErrNotMember) {
		return nil
	}
	return err
}

// RemoveOnDisconnect removes playerID from the room once ctx ends. The
// returned channel closes after the removal was attempted.
func (s *Store) RemoveOnDisconnect(ctx context.Context, roomID, playerID string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()

		lctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Leave(lctx, roomID, playerID); err != nil {
			s.logger.Warnw("remove on disconnect failed", "room", roomID, "player", playerID, "err", err)
		}
	}()
	return done
}

func (s *Store) Close() error {
	return s.backend.Close()
}
