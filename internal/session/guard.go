package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Guard serializes turns per conversation while letting distinct
// conversations proceed fully in parallel. It is a reference-counted
// keyed mutex: entries exist only while a conversation has waiters, so
// the map does not grow with the total number of conversations seen.
//
// The database row lock in Store.AppendMessages protects the final
// append; Guard additionally serializes the whole turn (read history,
// reason, append) so a second turn cannot read stale history while the
// first is still running.
type Guard struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*guardEntry
}

type guardEntry struct {
	ch   chan struct{} // capacity 1; holding the token = holding the lock
	refs int
}

// NewGuard creates an empty Guard.
func NewGuard() *Guard {
	return &Guard{locks: make(map[uuid.UUID]*guardEntry)}
}

// Acquire blocks until the conversation's lock is held or ctx is done.
// On success the caller must call the returned release function exactly once.
func (g *Guard) Acquire(ctx context.Context, id uuid.UUID) (release func(), err error) {
	g.mu.Lock()
	e, ok := g.locks[id]
	if !ok {
		e = &guardEntry{ch: make(chan struct{}, 1)}
		g.locks[id] = e
	}
	e.refs++
	g.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			g.put(id, e)
		}, nil
	case <-ctx.Done():
		g.put(id, e)
		return nil, ctx.Err()
	}
}

// put drops one reference and deletes the entry when unused.
func (g *Guard) put(id uuid.UUID, e *guardEntry) {
	g.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(g.locks, id)
	}
	g.mu.Unlock()
}
