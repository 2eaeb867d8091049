package iteration

import (
	"sync"
)

// Tracker records the iterations handed out by an owner so the owner can
// close them all when it shuts down.
type Tracker struct {
	mu   sync.Mutex
	open map[*trackedHandle]struct{}
}

type trackedHandle struct {
	close func() error
}

func NewTracker() *Tracker {
	return &Tracker{open: make(map[*trackedHandle]struct{})}
}

// Track registers it with t. Closing the returned iteration unregisters it.
func Track[T any](t *Tracker, it Iteration[T]) Iteration[T] {
	h := &trackedHandle{}
	la := NewLookAhead(func() (T, bool, error) {
		return Pull(it)
	}, func() error {
		t.forget(h)
		return it.Close()
	})
	h.close = la.Close

	t.mu.Lock()
	t.open[h] = struct{}{}
	t.mu.Unlock()
	return la
}

func (t *Tracker) forget(h *trackedHandle) {
	t.mu.Lock()
	delete(t.open, h)
	t.mu.Unlock()
}

// Len returns the number of open tracked iterations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// CloseAll closes every open tracked iteration and returns the first
// error.
func (t *Tracker) CloseAll() error {
	t.mu.Lock()
	handles := make([]*trackedHandle, 0, len(t.open))
	for h := range t.open {
		handles = append(handles, h)
	}
	t.mu.Unlock()

	var first error
	for _, h := range handles {
		if err := h.close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
