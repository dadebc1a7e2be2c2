package engine

import (
	"context"
	"sync"
)

// Events is a broadcast of named, payload-free events. A waiter only sees
// events emitted after it started waiting.
type Events struct {
	mu      sync.Mutex
	waiters map[string]map[chan struct{}]struct{}
}

// NewEvents creates an Events hub.
func NewEvents() *Events {
	return &Events{waiters: make(map[string]map[chan struct{}]struct{})}
}

// Emit wakes every current waiter of name.
func (e *Events) Emit(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.waiters[name] {
		close(ch)
	}
	delete(e.waiters, name)
}

// Wait blocks until name is emitted or ctx ends.
func (e *Events) Wait(ctx context.Context, name string) error {
	ch := make(chan struct{})
	e.mu.Lock()
	if e.waiters[name] == nil {
		e.waiters[name] = make(map[chan struct{}]struct{})
	}
	e.waiters[name][ch] = struct{}{}
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		if set, ok := e.waiters[name]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(e.waiters, name)
			}
		}
		e.mu.Unlock()
		return ctx.Err()
	}
}
