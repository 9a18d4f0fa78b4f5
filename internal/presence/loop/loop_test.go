package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func TestLoopRunsPostsInOrder(t *testing.T) {
	l := startLoop(t)
	got := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		l.Post(func() { got <- i })
	}
	for want := 1; want <= 3; want++ {
		select {
		case v := <-got:
			if v != want {
				t.Fatalf("order: want=%d got=%d", want, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for post %d", want)
		}
	}
}

func TestLoopStoppedTimerNeverFires(t *testing.T) {
	l := startLoop(t)
	fired := make(chan struct{}, 1)
	var timer Timer
	if err := l.Invoke(context.Background(), func() {
		timer = l.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} })
	}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	var stopped bool
	_ = l.Invoke(context.Background(), func() { stopped = timer.Stop() })
	if !stopped {
		t.Fatal("expected Stop to report true")
	}
	select {
	case <-fired:
		t.Fatal("stopped timer fired")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestCallDeliversTypedResultOnLoop(t *testing.T) {
	l := startLoop(t)
	type result struct {
		v   string
		err error
	}
	out := make(chan result, 1)
	l.Post(func() {
		Call(l, func(ctx context.Context) (string, error) {
			return "ok", errors.New("boom")
		}, func(v string, err error) {
			out <- result{v: v, err: err}
		})
	})
	select {
	case r := <-out:
		if r.v != "ok" || r.err == nil || r.err.Error() != "boom" {
			t.Fatalf("unexpected result: %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Call continuation")
	}
}

func TestLoopRecoversPanics(t *testing.T) {
	l := startLoop(t)
	l.Post(func() { panic("bad callback") })
	if err := l.Invoke(context.Background(), func() {}); err != nil {
		t.Fatalf("loop should survive panic: %v", err)
	}
}

func TestManualAdvanceFiresInDeadlineOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var order []string
	m.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	m.AfterFunc(time.Second, func() { order = append(order, "a") })
	b := m.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	b.Stop()
	m.AfterFunc(time.Second, func() { order = append(order, "a2") })

	m.Advance(2 * time.Second)
	if len(order) != 2 || order[0] != "a" || order[1] != "a2" {
		t.Fatalf("order after 2s: %v", order)
	}
	m.Advance(time.Second)
	if len(order) != 3 || order[2] != "c" {
		t.Fatalf("order after 3s: %v", order)
	}
	if !m.Now().Equal(time.Unix(3, 0)) {
		t.Fatalf("now=%s", m.Now())
	}
}

func TestManualHoldsInflightUntilComplete(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	calls := 0
	finished := 0
	m.Go(func(ctx context.Context) error {
		calls++
		return nil
	}, func(err error) { finished++ })
	if calls != 1 || finished != 0 || m.Pending() != 1 {
		t.Fatalf("calls=%d finished=%d pending=%d", calls, finished, m.Pending())
	}
	m.Complete()
	if finished != 1 || m.Pending() != 0 {
		t.Fatalf("finished=%d pending=%d", finished, m.Pending())
	}
}
