package auction

import (
	"context"
	"sync"

	"github.com/roach88/stigmergy/internal/entity"
)

// lockTable hands out one mutual-exclusion slot per entity. Slots are
// reference counted and dropped when no round holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	slots map[entity.Entity]*slot
}

type slot struct {
	ch   chan struct{} // buffered, size 1; holding the token means holding the lock
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{slots: map[entity.Entity]*slot{}}
}

// acquire blocks until the entity's lock is held or ctx is done. The
// returned release must be called exactly once.
func (t *lockTable) acquire(ctx context.Context, e entity.Entity) (func(), error) {
	t.mu.Lock()
	s, ok := t.slots[e]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		t.slots[e] = s
	}
	s.refs++
	t.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			t.unref(e, s)
		}, nil
	case <-ctx.Done():
		t.unref(e, s)
		return nil, ctx.Err()
	}
}

func (t *lockTable) unref(e entity.Entity, s *slot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(t.slots, e)
	}
}

// held returns the number of entities with a live slot.
func (t *lockTable) held() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
