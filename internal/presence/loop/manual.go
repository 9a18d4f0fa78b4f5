package loop

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a deterministic Scheduler driven by the caller. Time only moves
// on Advance. Work passed to Go runs inline, but its continuation is held as
// "in flight" until Complete or Settle releases it.
type Manual struct {
	mu       sync.Mutex
	now      time.Time
	seq      int
	queue    []func()
	inflight []func()
	timers   []*manualTimer
}

type manualTimer struct {
	m       *Manual
	at      time.Time
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Post(fn func()) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.queue = append(m.queue, fn)
	m.mu.Unlock()
}

func (m *Manual) AfterFunc(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, at: m.now.Add(d), seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

func (m *Manual) Go(work func(ctx context.Context) error, done func(err error)) {
	err := work(context.Background())
	if done == nil {
		return
	}
	m.mu.Lock()
	m.inflight = append(m.inflight, func() { done(err) })
	m.mu.Unlock()
}

func (m *Manual) Invoke(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	m.Flush()
	return nil
}

// Pending is the number of Go continuations not yet released.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// PendingTimers is the number of armed, unfired timers.
func (m *Manual) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// NextTimer returns the delay until the earliest armed timer.
func (m *Manual) NextTimer() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.earliestLocked()
	if t == nil {
		return 0, false
	}
	return t.at.Sub(m.now), true
}

// Flush runs posted callbacks until the queue is empty.
func (m *Manual) Flush() {
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		fn := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		fn()
	}
}

// Complete releases every in-flight continuation (in start order) and flushes.
func (m *Manual) Complete() {
	m.mu.Lock()
	done := m.inflight
	m.inflight = nil
	m.mu.Unlock()
	for _, fn := range done {
		fn()
	}
	m.Flush()
}

// Settle completes in-flight work until nothing is left in flight.
func (m *Manual) Settle() {
	m.Flush()
	for m.Pending() > 0 {
		m.Complete()
	}
}

// Advance moves the clock forward by d, firing due timers in deadline order.
// Posted callbacks are flushed after each timer; in-flight work is not released.
func (m *Manual) Advance(d time.Duration) {
	m.Flush()
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	for {
		m.mu.Lock()
		t := m.earliestLocked()
		if t == nil || t.at.After(target) {
			m.now = target
			m.compactLocked()
			m.mu.Unlock()
			return
		}
		m.now = t.at
		t.fired = true
		m.mu.Unlock()
		t.fn()
		m.Flush()
	}
}

func (m *Manual) earliestLocked() *manualTimer {
	var best *manualTimer
	for _, t := range m.timers {
		if t.stopped || t.fired {
			continue
		}
		if best == nil || t.at.Before(best.at) || (t.at.Equal(best.at) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (m *Manual) compactLocked() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].seq < live[j].seq })
	m.timers = live
}
