package shutdown

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestNotifyContextCancelsThenForces(t *testing.T) {
	forced := make(chan struct{}, 1)
	ctx, stop := NotifyContext(context.Background(), func() { forced <- struct{}{} })
	defer stop()

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("context not cancelled after first signal")
	}

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-forced:
	case <-time.After(2 * time.Second):
		t.Fatalf("second signal did not force")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	ctx, stop := NotifyContext(context.Background(), nil)
	stop()
	stop()
	if ctx.Err() == nil {
		t.Fatalf("stop should cancel the context")
	}
}
