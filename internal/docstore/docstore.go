// Package docstore keeps each room as one shared document that every member
// reads and writes directly. Writes go through a backend's serialised
// read-modify-write; every watcher eventually sees the latest version.
package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/tugquiz-backend/internal/engine"
)

var ErrExists = errors.New("document already exists")

type Document struct {
	ID        string       `json:"id"`
	State     engine.State `json:"state"`
	Version   int          `json:"version"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Backend stores documents. Get and Update return engine.ErrRoomNotFound for
// unknown ids.
type Backend interface {
	Create(ctx context.Context, doc Document) error
	Get(ctx context.Context, id string) (Document, error)
	// Update runs fn on the current document while holding it exclusively
	// and stores the result with the next version. If fn fails nothing is
	// written.
	Update(ctx context.Context, id string, fn func(*Document) error) (Document, error)
	// Watch delivers the current document, then newer ones, until ctx ends.
	// A slow reader skips intermediate versions.
	Watch(ctx context.Context, id string) (<-chan Document, error)
	Close() error
}

// offer replaces whatever is waiting in a one-slot channel with d.
func offer(ch chan Document, d Document) {
	select {
	case ch <- d:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- d:
	default:
	}
}
