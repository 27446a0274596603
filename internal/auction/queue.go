package auction

import (
	"sync"

	"github.com/roach88/stigmergy/internal/entity"
)

// roundQueue is a thread-safe FIFO of entities awaiting a round.
//
// An entity appears at most once: enqueuing an entity that is already
// waiting is a no-op, so repeated ticks coalesce instead of piling up.
//
// The queue signals through a buffered channel so workers can wait on it
// alongside ctx.Done().
type roundQueue struct {
	mu      sync.Mutex
	items   []entity.Entity
	pending map[entity.Entity]bool
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newRoundQueue() *roundQueue {
	return &roundQueue{
		items:   make([]entity.Entity, 0, 64),
		pending: map[entity.Entity]bool{},
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds e to the back of the queue. Returns false if the queue is
// closed or e is already waiting.
func (q *roundQueue) Enqueue(e entity.Entity) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.pending[e] {
		return false
	}
	q.items = append(q.items, e)
	q.pending[e] = true
	q.notify()
	return true
}

// TryDequeue removes the front entity without blocking.
func (q *roundQueue) TryDequeue() (entity.Entity, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return entity.Nil, false
	}
	e := q.items[0]
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	delete(q.pending, e)

	// Pass the wakeup on so an idle worker picks up the rest.
	if len(q.items) > 0 && !q.closed {
		q.notify()
	}
	return e, true
}

// notify signals without blocking; the buffer coalesces signals.
// Caller holds q.mu and the queue is open.
func (q *roundQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Wait returns a channel that signals when entities may be available.
// It is closed by Close.
func (q *roundQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of waiting entities.
func (q *roundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drained reports whether the queue is closed and empty.
func (q *roundQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Close stops further enqueues and wakes every waiter. Entities already
// queued can still be dequeued.
func (q *roundQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
