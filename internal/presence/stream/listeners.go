package stream

import (
	domain "github.com/yungbote/neurobridge-presence/internal/domain/presence"
)

type Handler func(domain.Event)

// Listeners fans one event out to every handler registered for its type, in
// registration order. It is not safe for concurrent use.
type Listeners struct {
	next int
	subs map[domain.EventType][]listener
}

type listener struct {
	id int
	fn Handler
}

func NewListeners() *Listeners {
	return &Listeners{subs: map[domain.EventType][]listener{}}
}

// On registers fn for typ and returns a function that removes it.
func (l *Listeners) On(typ domain.EventType, fn Handler) func() {
	if fn == nil {
		return func() {}
	}
	l.next++
	id := l.next
	l.subs[typ] = append(l.subs[typ], listener{id: id, fn: fn})
	return func() {
		list := l.subs[typ]
		for i, sub := range list {
			if sub.id == id {
				l.subs[typ] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

func (l *Listeners) has(typ domain.EventType) bool {
	return len(l.subs[typ]) > 0
}

func (l *Listeners) types() []domain.EventType {
	out := make([]domain.EventType, 0, len(l.subs))
	for _, typ := range domain.AllEventTypes {
		if l.has(typ) {
			out = append(out, typ)
		}
	}
	return out
}

// Dispatch delivers ev synchronously. Handlers added during dispatch see the
// next event, not this one.
func (l *Listeners) Dispatch(ev domain.Event) {
	list := l.subs[ev.Type]
	if len(list) == 0 {
		return
	}
	snapshot := make([]listener, len(list))
	copy(snapshot, list)
	for _, sub := range snapshot {
		sub.fn(ev)
	}
}
