// Package stream owns the server-push connection of a presence session.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	domain "github.com/yungbote/neurobridge-presence/internal/domain/presence"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
)

var ErrAttached = errors.New("event stream already attached")

// ErrClosed is reported to onError when the server ends the stream cleanly.
var ErrClosed = errors.New("event stream closed by server")

type Dialer interface {
	Dial(ctx context.Context, sessionID string, lastEventID int64) (io.ReadCloser, error)
}

type DialerFunc func(ctx context.Context, sessionID string, lastEventID int64) (io.ReadCloser, error)

func (f DialerFunc) Dial(ctx context.Context, sessionID string, lastEventID int64) (io.ReadCloser, error) {
	return f(ctx, sessionID, lastEventID)
}

// Transport is driven from the loop. Reading happens on a background
// goroutine that posts each frame back to the loop in arrival order.
type Transport struct {
	sched  loop.Scheduler
	dialer Dialer
	log    *logger.Logger

	conn        *conn
	lastEventID int64
}

type conn struct {
	sessionID string
	types     map[domain.EventType]bool
	onEvent   func(domain.Event)
	onError   func(error)
	cancel    context.CancelFunc
	dead      bool
}

func New(sched loop.Scheduler, dialer Dialer, log *logger.Logger) *Transport {
	if log == nil {
		log = logger.NewNop()
	}
	return &Transport{
		sched:  sched,
		dialer: dialer,
		log:    log.With("component", "EventStream"),
	}
}

// Attach opens one connection for sessionID. Events of the given types are
// handed to onEvent; onError fires at most once, when the connection dies.
func (t *Transport) Attach(sessionID string, types []domain.EventType, onEvent func(domain.Event), onError func(error)) error {
	if t.conn != nil {
		return ErrAttached
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("sessionID required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &conn{
		sessionID: sessionID,
		types:     map[domain.EventType]bool{},
		onEvent:   onEvent,
		onError:   onError,
		cancel:    cancel,
	}
	for _, typ := range types {
		c.types[typ] = true
	}
	t.conn = c
	go t.read(ctx, c, t.lastEventID)
	return nil
}

func (t *Transport) AddEventType(typ domain.EventType) {
	if t.conn == nil {
		return
	}
	t.conn.types[typ] = true
}

// Detach closes the connection without reporting an error.
func (t *Transport) Detach() {
	c := t.conn
	if c == nil {
		return
	}
	t.conn = nil
	c.dead = true
	c.cancel()
}

func (t *Transport) attached() bool { return t.conn != nil }

func (t *Transport) LastEventID() int64 { return t.lastEventID }

func (t *Transport) read(ctx context.Context, c *conn, lastEventID int64) {
	body, err := t.dialer.Dial(ctx, c.sessionID, lastEventID)
	if err != nil {
		t.sched.Post(func() { t.fail(c, fmt.Errorf("open event stream: %w", err)) })
		return
	}
	stop := context.AfterFunc(ctx, func() { _ = body.Close() })
	defer stop()
	defer body.Close()

	err = readSSE(body, func(f frame) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.sched.Post(func() { t.deliver(c, f) })
		return nil
	})
	if err == nil {
		err = ErrClosed
	}
	t.sched.Post(func() { t.fail(c, err) })
}

func (t *Transport) deliver(c *conn, f frame) {
	if c.dead || t.conn != c {
		return
	}
	ev := domain.Event{Type: domain.EventType(f.Event)}
	if f.HasID {
		if id, err := strconv.ParseInt(f.ID, 10, 64); err == nil {
			ev.ID = id
			ev.HasID = true
			if id > t.lastEventID {
				t.lastEventID = id
			}
		}
	}
	if ev.Type == "" || !c.types[ev.Type] {
		return
	}
	if strings.TrimSpace(f.Data) != "" {
		if !json.Valid([]byte(f.Data)) {
			t.log.Warn("dropping malformed event", "type", string(ev.Type), "id", ev.ID)
			return
		}
		ev.Data = json.RawMessage(f.Data)
	}
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func (t *Transport) fail(c *conn, err error) {
	if c.dead {
		return
	}
	c.dead = true
	c.cancel()
	if t.conn == c {
		t.conn = nil
	}
	t.log.Info("event stream lost", "error", err)
	if c.onError != nil {
		c.onError(err)
	}
}
