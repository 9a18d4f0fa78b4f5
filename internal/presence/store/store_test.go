package store

import "testing"

type flags struct {
	A bool
	N int
}

func TestStoreNotifiesInOrder(t *testing.T) {
	s := New(flags{})
	var seen []int
	s.Subscribe(func(prev, next flags) {
		seen = append(seen, next.N)
		if next.N == 1 {
			s.Update(func(f *flags) { f.N = 2 })
		}
	})
	var second []int
	s.Subscribe(func(prev, next flags) { second = append(second, next.N) })

	s.Update(func(f *flags) { f.N = 1 })

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("first listener saw %v", seen)
	}
	if len(second) != 2 || second[0] != 1 || second[1] != 2 {
		t.Fatalf("second listener saw %v", second)
	}
	if s.Get().N != 2 {
		t.Fatalf("value=%+v", s.Get())
	}
}

func TestStoreUnsubscribe(t *testing.T) {
	s := New(flags{})
	calls := 0
	unsub := s.Subscribe(func(prev, next flags) { calls++ })
	s.Update(func(f *flags) { f.A = true })
	unsub()
	s.Update(func(f *flags) { f.A = false })
	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestStoreUnsubscribeDuringDispatch(t *testing.T) {
	s := New(flags{})
	var unsubB func()
	calls := 0
	s.Subscribe(func(prev, next flags) { unsubB() })
	unsubB = s.Subscribe(func(prev, next flags) { calls++ })
	s.Update(func(f *flags) { f.N = 1 })
	if calls != 0 {
		t.Fatalf("removed listener was called %d times", calls)
	}
}
