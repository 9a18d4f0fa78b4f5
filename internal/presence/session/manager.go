// Package session runs the presence session lifecycle: create, heartbeat,
// teardown, and the signals that end a session from the outside.
package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-presence/internal/domain"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/api"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
	"github.com/yungbote/neurobridge-presence/internal/presence/store"
)

var ErrNotStarted = errors.New("presence session not started")

type API interface {
	CreateSession(ctx context.Context, req api.CreateSessionRequest) (api.CreateSessionResponse, error)
	Heartbeat(ctx context.Context, sessionID string, req api.HeartbeatRequest) error
	DeleteSession(ctx context.Context, sessionID string) error
	Beacon(sessionID string) bool
}

type EventStream interface {
	Attach(sessionID string, types []domain.EventType, onEvent func(domain.Event), onError func(error)) error
	AddEventType(typ domain.EventType)
	Detach()
	LastEventID() int64
}

type Arbiter interface {
	Claim(identity, sessionID string)
}

type Unloader interface {
	Register(fn func()) func()
}

type Config struct {
	Identity       string
	ActiveInterval time.Duration
	IdleInterval   time.Duration
	IdleAfter      time.Duration
	DeleteTimeout  time.Duration
	// EventTypes are attached on top of Control and Logout, which the
	// manager always consumes itself.
	EventTypes []domain.EventType
}

func (c Config) withDefaults() Config {
	if c.ActiveInterval <= 0 {
		c.ActiveInterval = 30 * time.Second
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 5 * time.Minute
	}
	if c.DeleteTimeout <= 0 {
		c.DeleteTimeout = 5 * time.Second
	}
	c.Identity = strings.TrimSpace(c.Identity)
	return c
}

type Deps struct {
	Sched    loop.Scheduler
	API      API
	Stream   EventStream
	Arbiter  Arbiter
	Unloader Unloader
	State    *store.Store[domain.Session]
	Log      *logger.Logger
	// OnEvent receives every event after the manager has reacted to it.
	OnEvent func(domain.Event)
}

type Manager struct {
	cfg      Config
	sched    loop.Scheduler
	api      API
	stream   EventStream
	arbiter  Arbiter
	unloader Unloader
	state    *store.Store[domain.Session]
	log      *logger.Logger
	onEvent  func(domain.Event)

	// gen changes on every stop so continuations of an older session can
	// tell they are stale.
	gen      int
	creating bool
	unload   func()

	hb heartbeat

	lastActive time.Time
	idleTimer  loop.Timer

	inScenes     []string
	followScenes []string
	scenesDirty  bool
	followDirty  bool
}

func New(cfg Config, deps Deps) (*Manager, error) {
	if deps.Sched == nil || deps.API == nil || deps.Stream == nil || deps.State == nil {
		return nil, errors.New("session: scheduler, api, stream and state are required")
	}
	log := deps.Log
	if log == nil {
		log = logger.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:        cfg,
		sched:      deps.Sched,
		api:        deps.API,
		stream:     deps.Stream,
		arbiter:    deps.Arbiter,
		unloader:   deps.Unloader,
		state:      deps.State,
		log:        log.With("component", "SessionManager"),
		onEvent:    deps.OnEvent,
		hb:         heartbeat{state: HeartbeatStopped},
		lastActive: deps.Sched.Now(),
	}, nil
}

func (m *Manager) State() domain.Session { return m.state.Get() }

// Start creates a server session unless one is already started.
func (m *Manager) Start() {
	if m.state.Get().Started {
		return
	}
	m.lastActive = m.sched.Now()
	m.armIdle()
	m.state.Update(func(s *domain.Session) {
		s.Started = true
		s.Online = false
	})
	m.hb.state = HeartbeatNormal
	m.create()
}

// Stop ends the session. A nil err is a clean stop; a non-nil err leaves the
// session offline so reconnection can pick it up. A clean stop of a live
// session also deletes it on the server, best effort.
func (m *Manager) Stop(err error) {
	m.stop(err, err == nil)
}

// Shutdown releases local resources without touching the server session;
// the unload handler is expected to have dealt with it.
func (m *Manager) Shutdown() {
	m.stop(nil, false)
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
}

// Evict stops the session because another agent claimed the identity.
func (m *Manager) Evict() {
	m.log.Info("presence session evicted")
	m.stop(nil, true)
}

func (m *Manager) stop(err error, deleteRemote bool) {
	s := m.state.Get()
	if !s.Started {
		return
	}
	if err != nil {
		m.log.Warn("presence session stopped", "error", err)
	}
	m.gen++
	m.creating = false
	m.hb.halt()
	m.stream.Detach()
	if m.unload != nil {
		m.unload()
		m.unload = nil
	}
	if deleteRemote && s.SessionID != "" {
		m.deleteRemote(s.SessionID)
	}
	m.state.Update(func(s *domain.Session) {
		s.Started = false
		s.Online = false
		s.Offline = err != nil
		s.SessionID = ""
	})
}

func (m *Manager) create() {
	if m.creating {
		return
	}
	m.creating = true
	gen := m.gen
	req := api.CreateSessionRequest{SessionSnapshot: m.snapshot(true)}
	m.scenesDirty, m.followDirty = false, false
	loop.Call(m.sched, func(ctx context.Context) (api.CreateSessionResponse, error) {
		return m.api.CreateSession(ctx, req)
	}, func(resp api.CreateSessionResponse, err error) {
		if gen != m.gen || !m.state.Get().Started {
			// Stopped while the create was in flight; delete the orphan.
			if err == nil {
				m.deleteRemote(resp.SessionID)
			}
			return
		}
		m.creating = false
		if err != nil {
			if api.IsSessionInvalid(err) {
				m.log.Info("session create refused", "error", err)
				m.stop(nil, false)
				return
			}
			m.stop(err, false)
			return
		}
		m.established(resp.SessionID)
	})
}

func (m *Manager) established(sessionID string) {
	m.state.Update(func(s *domain.Session) { s.SessionID = sessionID })

	if err := m.stream.Attach(sessionID, m.eventTypes(), m.handleEvent, m.handleStreamError); err != nil {
		m.stop(err, true)
		return
	}
	if m.arbiter != nil && m.cfg.Identity != "" {
		m.arbiter.Claim(m.cfg.Identity, sessionID)
	}
	if m.unloader != nil {
		m.unload = m.unloader.Register(m.unloadHandler(sessionID))
	}
	m.state.Update(func(s *domain.Session) {
		s.Online = true
		s.Offline = false
	})
	m.log.Info("presence session established", "session_id", sessionID)
	resend := m.hb.state == HeartbeatImmediateResend || m.scenesDirty || m.followDirty
	m.hb.state = HeartbeatNormal
	if resend {
		m.sendHeartbeat()
		return
	}
	m.armHeartbeat()
}

// AddEventType extends the live subscription and every future one.
func (m *Manager) AddEventType(typ domain.EventType) {
	for _, t := range m.cfg.EventTypes {
		if t == typ {
			return
		}
	}
	m.cfg.EventTypes = append(m.cfg.EventTypes, typ)
	if m.state.Get().Online {
		m.stream.AddEventType(typ)
	}
}

func (m *Manager) eventTypes() []domain.EventType {
	out := []domain.EventType{domain.EventControl, domain.EventLogout}
	for _, t := range m.cfg.EventTypes {
		if t != domain.EventControl && t != domain.EventLogout {
			out = append(out, t)
		}
	}
	return out
}

func (m *Manager) handleEvent(ev domain.Event) {
	if m.onEvent != nil {
		m.onEvent(ev)
	}
	switch ev.Type {
	case domain.EventLogout:
		m.log.Info("logout received")
		m.stop(nil, false)
	case domain.EventControl:
		c, err := domain.DecodeControl(ev.Data)
		if err != nil {
			m.log.Warn("bad control event", "error", err)
			return
		}
		switch c.Type {
		case domain.ControlHeartbeat:
			m.RequestHeartbeat()
		case domain.ControlSessionEnded:
			m.log.Info("session ended by server")
			m.stop(nil, false)
		}
	}
}

func (m *Manager) handleStreamError(err error) {
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	m.stop(err, false)
}

func (m *Manager) deleteRemote(sessionID string) {
	if sessionID == "" {
		return
	}
	m.sched.Go(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, m.cfg.DeleteTimeout)
		defer cancel()
		return m.api.DeleteSession(ctx, sessionID)
	}, func(err error) {
		if err != nil && !api.IsSessionInvalid(err) {
			m.log.Debug("session delete failed", "error", err)
		}
	})
}

// unloadHandler runs at process teardown, off the loop. It must only touch
// what it captured.
func (m *Manager) unloadHandler(sessionID string) func() {
	client := m.api
	timeout := m.cfg.DeleteTimeout
	log := m.log
	return func() {
		if client.Beacon(sessionID) {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := client.DeleteSession(ctx, sessionID); err != nil {
			log.Debug("unload delete failed", "error", err)
		}
	}
}
