package tabs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
)

func TestKeyEncodingRoundTrip(t *testing.T) {
	key := Key("ada@example.com:42")
	enc := encodeKVKey(key)
	for _, r := range enc {
		ok := r == '-' || r == '_' || r == '=' || r == '.' || r == '/' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			t.Fatalf("invalid kv key char %q in %q", r, enc)
		}
	}
	got, err := decodeKVKey(enc)
	if err != nil || got != key {
		t.Fatalf("decode=%q err=%v", got, err)
	}
	if _, err := decodeKVKey("other"); err == nil {
		t.Fatalf("expected error for foreign key")
	}
}

func TestMemoryNotifiesAllWatchers(t *testing.T) {
	m := NewMemory()
	var a, b []string
	stopA, _ := m.Watch(context.Background(), func(k, v string) { a = append(a, k+"="+v) })
	_, _ = m.Watch(context.Background(), func(k, v string) { b = append(b, k+"="+v) })

	_ = m.Set(context.Background(), "x", "1")
	stopA()
	_ = m.Set(context.Background(), "x", "2")

	if len(a) != 1 || a[0] != "x=1" {
		t.Fatalf("a=%v", a)
	}
	if len(b) != 2 || b[1] != "x=2" {
		t.Fatalf("b=%v", b)
	}
	if v, ok := m.Get("x"); !ok || v != "2" {
		t.Fatalf("get=%q %v", v, ok)
	}
}

func TestMemoryWatchStopsWithContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, _ = m.Watch(ctx, func(string, string) { calls++ })
	cancel()

	deadline := time.Now().Add(time.Second)
	for {
		m.mu.Lock()
		n := len(m.watchers)
		m.mu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("watcher not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	_ = m.Set(context.Background(), "k", "v")
	if calls != 0 {
		t.Fatalf("calls=%d", calls)
	}
}

func TestArbiterEvictsOlderClaim(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	shared := NewMemory()

	tab1 := NewArbiter(sched, shared, nil)
	tab2 := NewArbiter(sched, shared, nil)

	session1, session2 := "", ""
	evicted1, evicted2 := 0, 0
	if _, err := tab1.Listen(context.Background(), "u", func() string { return session1 }, func() { evicted1++; session1 = "" }); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if _, err := tab2.Listen(context.Background(), "u", func() string { return session2 }, func() { evicted2++; session2 = "" }); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	session1 = "s1"
	tab1.Claim("u", "s1")
	sched.Settle()
	if evicted1 != 0 || evicted2 != 0 {
		t.Fatalf("unexpected eviction: %d %d", evicted1, evicted2)
	}

	session2 = "s2"
	tab2.Claim("u", "s2")
	sched.Settle()
	if evicted1 != 1 || session1 != "" {
		t.Fatalf("tab1 not evicted: evicted=%d session=%q", evicted1, session1)
	}
	if evicted2 != 0 {
		t.Fatalf("tab2 evicted itself")
	}

	// Another identity never interferes.
	tab1.Claim("someone-else", "s9")
	sched.Settle()
	if evicted2 != 0 {
		t.Fatalf("foreign identity evicted tab2")
	}
}

// laggyShared holds writes until flush, like a broker delivering late.
type laggyShared struct {
	pending  [][2]string
	watchers []func(key, value string)
}

func (l *laggyShared) Set(ctx context.Context, key, value string) error {
	l.pending = append(l.pending, [2]string{key, value})
	return nil
}

func (l *laggyShared) Watch(ctx context.Context, fn func(key, value string)) (func(), error) {
	l.watchers = append(l.watchers, fn)
	return func() {}, nil
}

func (l *laggyShared) flush() {
	writes := l.pending
	l.pending = nil
	for _, w := range writes {
		for _, fn := range l.watchers {
			fn(w[0], w[1])
		}
	}
}

func TestArbiterIgnoresLateEchoOfItsOwnClaim(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	shared := &laggyShared{}
	tab := NewArbiter(sched, shared, nil)

	current, evicted := "", 0
	if _, err := tab.Listen(context.Background(), "u", func() string { return current }, func() { evicted++ }); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	current = "s-1"
	tab.Claim("u", "s-1")
	sched.Settle()

	// Stream dropped and reconnection established a new session before the
	// first claim came back.
	current = "s-2"
	tab.Claim("u", "s-2")
	sched.Settle()

	shared.flush()
	sched.Settle()
	if evicted != 0 {
		t.Fatalf("evicted by own earlier claim")
	}

	other := NewArbiter(sched, shared, nil)
	other.Claim("u", "s-9")
	sched.Settle()
	shared.flush()
	sched.Settle()
	if evicted != 1 {
		t.Fatalf("evicted=%d, want 1 after a foreign claim", evicted)
	}
}

func TestArbiterRemembersBoundedClaims(t *testing.T) {
	sched := loop.NewManual(time.Unix(0, 0))
	tab := NewArbiter(sched, NewMemory(), nil)
	for i := 0; i < maxClaims+5; i++ {
		tab.Claim("u", fmt.Sprintf("s-%d", i))
	}
	sched.Settle()
	key := Key("u")
	if n := len(tab.claimed[key]); n != maxClaims {
		t.Fatalf("remembered=%d", n)
	}
	if tab.ownClaim(key, "s-0") || !tab.ownClaim(key, fmt.Sprintf("s-%d", maxClaims+4)) {
		t.Fatalf("oldest claims should be forgotten first")
	}
}
