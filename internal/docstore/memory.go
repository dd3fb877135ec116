package docstore

import (
	"context"
	"sync"
	"time"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
)

// Memory is an in-process Backend.
type Memory struct {
	mu       sync.Mutex
	docs     map[string]Document
	watchers map[string]map[chan Document]struct{}
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]Document),
		watchers: make(map[string]map[chan Document]struct{}),
	}
}

var _ Backend = (*Memory)(nil)

func (m *Memory) Create(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[doc.ID]; ok {
		return ErrExists
	}
	doc.State = doc.State.Clone()
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}
	m.docs[doc.ID] = doc
	m.notify(doc)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return Document{}, engine.ErrRoomNotFound
	}
	doc.State = doc.State.Clone()
	return doc, nil
}

func (m *Memory) Update(_ context.Context, id string, fn func(*Document) error) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return Document{}, engine.ErrRoomNotFound
	}
	doc.State = doc.State.Clone()
	if err := fn(&doc); err != nil {
		return Document{}, err
	}
	doc.ID = id
	doc.Version++
	doc.UpdatedAt = time.Now()
	m.docs[id] = doc
	m.notify(doc)

	doc.State = doc.State.Clone()
	return doc, nil
}

func (m *Memory) Watch(ctx context.Context, id string) (<-chan Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[id]
	if !ok {
		return nil, engine.ErrRoomNotFound
	}

	ch := make(chan Document, 1)
	if m.watchers[id] == nil {
		m.watchers[id] = make(map[chan Document]struct{})
	}
	m.watchers[id][ch] = struct{}{}
	doc.State = doc.State.Clone()
	ch <- doc

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.watchers[id][ch]; ok {
			delete(m.watchers[id], ch)
			close(ch)
		}
	}()
	return ch, nil
}

// notify must run with mu held.
func (m *Memory) notify(doc Document) {
	for ch := range m.watchers[doc.ID] {
		d := doc
		d.State = doc.State.Clone()
		offer(ch, d)
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for id, set := range m.watchers {
		for ch := range set {
			close(ch)
		}
		delete(m.watchers, id)
	}
	return nil
}
