// Package engine assembles the presence client: one session, its event
// stream, cross-agent arbitration, reconnection, the presence projection and
// the chat model, all driven from a single loop.
package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/neurobridge-presence/internal/domain"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/api"
	"github.com/yungbote/neurobridge-presence/internal/presence/chat"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
	"github.com/yungbote/neurobridge-presence/internal/presence/projection"
	"github.com/yungbote/neurobridge-presence/internal/presence/reconnect"
	"github.com/yungbote/neurobridge-presence/internal/presence/session"
	"github.com/yungbote/neurobridge-presence/internal/presence/store"
	"github.com/yungbote/neurobridge-presence/internal/presence/stream"
	"github.com/yungbote/neurobridge-presence/internal/presence/tabs"
	"github.com/yungbote/neurobridge-presence/internal/presence/unload"
)

// API is everything the engine asks of the presence server.
type API interface {
	session.API
	stream.Dialer
	chat.HistoryFetcher
	OpenRoom(ctx context.Context, req api.OpenRoomRequest) (api.OpenRoomResponse, error)
	SendMessage(ctx context.Context, roomID string, text string) (string, error)
	SendTyping(ctx context.Context, roomID string, typing bool) error
}

type Config struct {
	Identity   string
	Session    session.Config
	Reconnect  reconnect.Config
	Thresholds projection.Thresholds
	Chat       chat.Config
}

type Deps struct {
	Sched    loop.Scheduler
	API      API
	Shared   tabs.Shared
	Unloader *unload.Registry
	Log      *logger.Logger
	// Stream overrides the SSE transport built from API.
	Stream session.EventStream
}

type Engine struct {
	cfg   Config
	sched loop.Scheduler
	api   API
	log   *logger.Logger

	state     *store.Store[domain.Session]
	listeners *stream.Listeners
	manager   *session.Manager
	arbiter   *tabs.Arbiter
	policy    *reconnect.Policy
	tracker   *projection.Tracker
	chat      *chat.Model

	announcement string
	observers    *store.Store[Update]
	stopWatch    func()
}

func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Sched == nil || deps.API == nil {
		return nil, errors.New("engine: scheduler and api are required")
	}
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	cfg.Identity = strings.TrimSpace(cfg.Identity)
	if cfg.Identity == "" {
		return nil, errors.New("engine: identity required")
	}
	cfg.Session.Identity = cfg.Identity
	cfg.Chat.Self = cfg.Identity
	if len(cfg.Session.EventTypes) == 0 {
		cfg.Session.EventTypes = []domain.EventType{domain.EventPresentUsers, domain.EventProfiles, domain.EventMessage}
	}

	e := &Engine{
		cfg:       cfg,
		sched:     deps.Sched,
		api:       deps.API,
		log:       log.With("component", "PresenceEngine"),
		state:     store.New(domain.Session{TabVisible: true}),
		listeners: stream.NewListeners(),
		observers: store.New(Update{}),
	}

	transport := deps.Stream
	if transport == nil {
		transport = stream.New(deps.Sched, deps.API, log)
	}

	var arbiter session.Arbiter
	if deps.Shared != nil {
		e.arbiter = tabs.NewArbiter(deps.Sched, deps.Shared, log)
		arbiter = e.arbiter
	}
	var unloader session.Unloader
	if deps.Unloader != nil {
		unloader = deps.Unloader
	}

	mgr, err := session.New(cfg.Session, session.Deps{
		Sched:    deps.Sched,
		API:      deps.API,
		Stream:   transport,
		Arbiter:  arbiter,
		Unloader: unloader,
		State:    e.state,
		Log:      log,
		OnEvent:  e.route,
	})
	if err != nil {
		return nil, err
	}
	e.manager = mgr
	e.policy = reconnect.New(cfg.Reconnect, deps.Sched, e.state, mgr, log)
	e.tracker = projection.NewTracker(deps.Sched, cfg.Thresholds, cfg.Identity, log)
	e.chat = chat.New(cfg.Chat, deps.Sched, deps.API, log)

	e.state.Subscribe(func(prev, next domain.Session) {
		if prev != next {
			e.emit(Update{Kind: UpdateSession})
		}
	})
	e.tracker.OnChange(func(c projection.Change) {
		if c.Has(projection.ChangedProfiles) {
			e.emit(Update{Kind: UpdateProfiles})
		}
		if c&^projection.ChangedProfiles != 0 {
			e.emit(Update{Kind: UpdatePresence})
		}
	})
	e.chat.OnChange(func(roomID string) {
		e.emit(Update{Kind: UpdateChat, RoomID: roomID})
	})
	return e, nil
}

// WatchTabs starts listening for other agents claiming this identity. It may
// block on the shared store and must not be called on the loop.
func (e *Engine) WatchTabs(ctx context.Context) error {
	if e.arbiter == nil {
		return nil
	}
	stop, err := e.arbiter.Listen(ctx, e.cfg.Identity, func() string {
		return e.state.Get().SessionID
	}, e.manager.Evict)
	if err != nil {
		return err
	}
	e.stopWatch = stop
	return nil
}

// Do runs fn on the loop and waits for it.
func (e *Engine) Do(ctx context.Context, fn func()) error {
	return e.sched.Invoke(ctx, fn)
}

// Close tears down local state. The server session is left to the unload
// handlers.
func (e *Engine) Close() {
	if e.stopWatch != nil {
		e.stopWatch()
		e.stopWatch = nil
	}
	e.policy.Close()
	e.tracker.Close()
	e.manager.Shutdown()
}

func (e *Engine) route(ev domain.Event) {
	switch ev.Type {
	case domain.EventPresentUsers:
		users, err := domain.DecodePresentUsers(ev.Data)
		if err != nil {
			e.log.Warn("dropping bad PresentUsers event", "error", err)
			break
		}
		e.tracker.SetUsers(users)
	case domain.EventProfiles:
		profiles, err := domain.DecodeProfiles(ev.Data)
		if err != nil {
			e.log.Warn("dropping bad Profiles event", "error", err)
			break
		}
		e.tracker.MergeProfiles(profiles)
	case domain.EventMessage:
		msg, err := domain.DecodeMessage(ev.Data)
		if err != nil {
			e.log.Warn("dropping bad Message event", "error", err)
			break
		}
		e.chat.Receive(msg)
	case domain.EventControl:
		c, err := domain.DecodeControl(ev.Data)
		if err != nil {
			break
		}
		switch c.Type {
		case domain.ControlAnnouncement:
			e.announcement = c.Message
			e.emit(Update{Kind: UpdateAnnouncement})
		case domain.ControlAnnouncementEnd:
			e.announcement = ""
			e.emit(Update{Kind: UpdateAnnouncement})
		}
	}
	e.listeners.Dispatch(ev)
	evCopy := ev
	e.emit(Update{Kind: UpdateEvent, Event: &evCopy})
}
