// Package store holds observable state containers. A Store is not safe for
// concurrent use; it lives on the presence loop like everything that reads it.
package store

type Listener[T any] func(prev, next T)

type Store[T any] struct {
	value T
	subs  []subscription[T]
	next  int

	dispatching bool
	pending     [][2]T
}

type subscription[T any] struct {
	id int
	fn Listener[T]
}

func New[T any](initial T) *Store[T] {
	return &Store[T]{value: initial}
}

func (s *Store[T]) Get() T { return s.value }

// Update applies fn to a copy of the current value and notifies subscribers.
// Updates made from inside a listener are applied immediately but their
// notifications are queued behind the one in progress, so every listener sees
// transitions in order.
func (s *Store[T]) Update(fn func(*T)) {
	prev := s.value
	next := prev
	fn(&next)
	s.value = next
	s.pending = append(s.pending, [2]T{prev, next})
	if s.dispatching {
		return
	}
	s.dispatching = true
	defer func() { s.dispatching = false }()
	for len(s.pending) > 0 {
		change := s.pending[0]
		s.pending = s.pending[1:]
		subs := make([]subscription[T], len(s.subs))
		copy(subs, s.subs)
		for _, sub := range subs {
			if !s.subscribed(sub.id) {
				continue
			}
			sub.fn(change[0], change[1])
		}
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store[T]) Subscribe(fn Listener[T]) func() {
	s.next++
	id := s.next
	s.subs = append(s.subs, subscription[T]{id: id, fn: fn})
	return func() {
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store[T]) subscribed(id int) bool {
	for _, sub := range s.subs {
		if sub.id == id {
			return true
		}
	}
	return false
}
