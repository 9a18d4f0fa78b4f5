package unload

import "testing"

func TestFireRunsOnceInOrder(t *testing.T) {
	r := New()
	var got []int
	r.Register(func() { got = append(got, 1) })
	off := r.Register(func() { got = append(got, 2) })
	r.Register(func() { got = append(got, 3) })
	off()

	r.Fire()
	r.Fire()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("got=%v", got)
	}
	r.Register(func() { t.Fatalf("registered after fire") })
	if r.Len() != 0 {
		t.Fatalf("len=%d", r.Len())
	}
}
