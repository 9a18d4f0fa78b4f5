// Package shutdown turns process signals into context cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

var signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// NotifyContext cancels the returned context on the first signal. A second
// signal calls force, which should end the process without waiting for the
// unload handlers.
func NotifyContext(parent context.Context, force func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, signals...)

	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			cancel()
		case <-done:
			return
		}
		select {
		case <-ch:
			if force != nil {
				force()
			}
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(ch)
		cancel()
		select {
		case <-done:
		default:
			close(done)
		}
	}
}
