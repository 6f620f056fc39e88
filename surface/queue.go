// Package surface pushes shadowcaster state to the things that draw it
package surface

import (
	"sync"

	"github.com/subtlepseudonym/shadowcaster"
)

// Queue holds back updates until the wrapped surface reports that it
// has finished loading. Only the newest pending state is kept, and it is
// delivered as soon as Ready is called.
type Queue struct {
	mu      sync.Mutex
	next    shadowcaster.Surface
	ready   bool
	pending *shadowcaster.State
}

func NewQueue(next shadowcaster.Surface) *Queue {
	return &Queue{next: next}
}

func (q *Queue) Update(state shadowcaster.State) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.ready {
		q.pending = &state
		return nil
	}
	return q.next.Update(state)
}

// Ready marks the surface as loaded and flushes any pending state
func (q *Queue) Ready() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ready = true
	if q.pending == nil {
		return nil
	}

	state := *q.pending
	q.pending = nil
	return q.next.Update(state)
}

func (q *Queue) IsReady() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready
}
