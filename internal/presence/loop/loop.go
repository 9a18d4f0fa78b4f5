// Package loop provides the single logical thread every presence component runs
// on. Callbacks posted to a scheduler never run concurrently with each other;
// blocking work is pushed off-thread with Go and continues back on the loop.
package loop

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
)

var ErrClosed = errors.New("loop closed")

type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer before it fired.
	Stop() bool
}

type Scheduler interface {
	Now() time.Time
	Post(fn func())
	AfterFunc(d time.Duration, fn func()) Timer
	Go(work func(ctx context.Context) error, done func(err error))
	Invoke(ctx context.Context, fn func()) error
}

// Call runs work off the loop and hands its typed result to done on the loop.
func Call[T any](s Scheduler, work func(ctx context.Context) (T, error), done func(T, error)) {
	var out T
	s.Go(func(ctx context.Context) error {
		v, err := work(ctx)
		out = v
		return err
	}, func(err error) {
		if done != nil {
			done(out, err)
		}
	})
}

type Loop struct {
	log *logger.Logger

	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(log *logger.Logger) *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		log:    log.With("component", "Loop"),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (l *Loop) Now() time.Time { return time.Now() }

func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

type loopTimer struct {
	t       *time.Timer
	stopped bool
	fired   bool
}

// Stop must be called on the loop.
func (t *loopTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.t.Stop()
	return true
}

func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped {
				return
			}
			lt.fired = true
			fn()
		})
	})
	return lt
}

func (l *Loop) Go(work func(ctx context.Context) error, done func(err error)) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		err := work(l.ctx)
		if done != nil {
			l.Post(func() { done(err) })
		}
	}()
}

func (l *Loop) Invoke(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	l.Post(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return ErrClosed
	}
}

// Run executes posted callbacks until ctx is done. Callbacks that panic are
// logged and the loop keeps going.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.wake:
		}
		for {
			fn := l.next()
			if fn == nil {
				break
			}
			l.runOne(fn)
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

func (l *Loop) next() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

func (l *Loop) runOne(fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			l.log.Error("loop callback panicked", "panic", rec)
		}
	}()
	fn()
}

func (l *Loop) shutdown() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
	l.cancel()
	l.wg.Wait()
}
