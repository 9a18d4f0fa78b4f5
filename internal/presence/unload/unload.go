// Package unload collects the teardown handlers that must run when the agent
// process goes away, the way a page registers for its own unload.
package unload

import "sync"

type Registry struct {
	mu       sync.Mutex
	next     int
	handlers []handler
	fired    bool
}

type handler struct {
	id int
	fn func()
}

func New() *Registry { return &Registry{} }

// Register adds fn and returns a function that removes it. Registering after
// Fire is a no-op.
func (r *Registry) Register(fn func()) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fn == nil || r.fired {
		return func() {}
	}
	r.next++
	id := r.next
	r.handlers = append(r.handlers, handler{id: id, fn: fn})
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, h := range r.handlers {
			if h.id == id {
				r.handlers = append(r.handlers[:i:i], r.handlers[i+1:]...)
				return
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// Fire runs every registered handler once, in registration order. Handlers may
// block.
func (r *Registry) Fire() {
	r.mu.Lock()
	if r.fired {
		r.mu.Unlock()
		return
	}
	r.fired = true
	handlers := r.handlers
	r.handlers = nil
	r.mu.Unlock()

	for _, h := range handlers {
		h.fn()
	}
}
