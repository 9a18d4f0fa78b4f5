// Package tabs keeps one live presence session per identity across every
// agent process that signs in as it. The newest claim wins and the others
// stop themselves.
package tabs

import (
	"context"
	"slices"
	"sync"
)

// Shared is a last-writer-wins key/value space whose writes are broadcast to
// every watcher, including the writer's own.
type Shared interface {
	Set(ctx context.Context, key, value string) error
	// Watch calls fn for every write until the returned stop func is called or
	// ctx ends. fn may be called from any goroutine.
	Watch(ctx context.Context, fn func(key, value string)) (func(), error)
}

// Memory is an in-process Shared store; watchers are notified synchronously
// from Set.
type Memory struct {
	mu       sync.Mutex
	values   map[string]string
	next     int
	watchers map[int]func(key, value string)
}

func NewMemory() *Memory {
	return &Memory{
		values:   map[string]string{},
		watchers: map[int]func(key, value string){},
	}
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.values[key] = value
	ids := make([]int, 0, len(m.watchers))
	for id := range m.watchers {
		ids = append(ids, id)
	}
	fns := make([]func(string, string), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, m.watchers[id])
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(key, value)
	}
	return nil
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Watch(ctx context.Context, fn func(key, value string)) (func(), error) {
	m.mu.Lock()
	m.next++
	id := m.next
	m.watchers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers, id)
			m.mu.Unlock()
		})
	}
	if ctx.Done() != nil {
		context.AfterFunc(ctx, stop)
	}
	return stop, nil
}
