package session

import (
	"context"

	"github.com/yungbote/neurobridge-presence/internal/presence/api"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
)

type HeartbeatState int

const (
	HeartbeatNormal HeartbeatState = iota
	HeartbeatImmediateResend
	HeartbeatStopped
)

func (s HeartbeatState) String() string {
	switch s {
	case HeartbeatNormal:
		return "normal"
	case HeartbeatImmediateResend:
		return "immediate_resend"
	case HeartbeatStopped:
		return "stopped"
	}
	return "unknown"
}

// heartbeat is the single-flight scheduler state. At most one request is in
// flight; resend requests that arrive meanwhile collapse into one follow-up.
type heartbeat struct {
	state    HeartbeatState
	inFlight bool
	timer    loop.Timer
	sent     int
}

func (h *heartbeat) cancelTimer() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *heartbeat) halt() {
	h.cancelTimer()
	h.state = HeartbeatStopped
	h.inFlight = false
}

func (m *Manager) HeartbeatState() HeartbeatState { return m.hb.state }

func (m *Manager) HeartbeatInFlight() bool { return m.hb.inFlight }

// HeartbeatsSent counts heartbeat requests issued since the manager was built.
func (m *Manager) HeartbeatsSent() int { return m.hb.sent }

// RequestHeartbeat sends a heartbeat now, or right after the one in flight.
func (m *Manager) RequestHeartbeat() {
	s := m.state.Get()
	if !s.Started || m.hb.state == HeartbeatStopped {
		return
	}
	if s.SessionID == "" {
		if m.creating {
			// The create already left with an older snapshot; report
			// as soon as it lands.
			m.hb.state = HeartbeatImmediateResend
			return
		}
		m.create()
		return
	}
	if m.hb.inFlight {
		m.hb.state = HeartbeatImmediateResend
		return
	}
	m.sendHeartbeat()
}

func (m *Manager) armHeartbeat() {
	m.hb.cancelTimer()
	if m.hb.state == HeartbeatStopped {
		return
	}
	interval := m.cfg.ActiveInterval
	if m.state.Get().Idling {
		interval = m.cfg.IdleInterval
	}
	m.hb.timer = m.sched.AfterFunc(interval, func() {
		m.hb.timer = nil
		m.RequestHeartbeat()
	})
}

func (m *Manager) sendHeartbeat() {
	sessionID := m.state.Get().SessionID
	m.hb.cancelTimer()
	m.hb.inFlight = true
	m.hb.state = HeartbeatNormal
	m.hb.sent++

	gen := m.gen
	sentScenes, sentFollow := m.scenesDirty, m.followDirty
	req := api.HeartbeatRequest{
		SessionSnapshot: m.snapshot(false),
		LastEventID:     m.stream.LastEventID(),
	}
	m.scenesDirty, m.followDirty = false, false

	m.sched.Go(func(ctx context.Context) error {
		return m.api.Heartbeat(ctx, sessionID, req)
	}, func(err error) {
		if gen != m.gen {
			return
		}
		m.hb.inFlight = false
		if err != nil {
			if api.IsSessionInvalid(err) {
				m.log.Info("heartbeat rejected, session gone", "error", err)
				m.stop(nil, false)
				return
			}
			m.log.Warn("heartbeat failed", "error", err)
			m.scenesDirty = m.scenesDirty || sentScenes
			m.followDirty = m.followDirty || sentFollow
		}
		if m.hb.state == HeartbeatImmediateResend {
			m.sendHeartbeat()
			return
		}
		m.armHeartbeat()
	})
}

// snapshot describes the client for the server. Scene lists are only
// included when they changed since the last report, or always when full.
func (m *Manager) snapshot(full bool) api.SessionSnapshot {
	s := m.state.Get()
	snap := api.SessionSnapshot{
		Visible:           s.TabVisible,
		MillisSinceActive: max(m.sched.Now().Sub(m.lastActive).Milliseconds(), 0),
	}
	if full || m.scenesDirty {
		scenes := append([]string{}, m.inScenes...)
		snap.InScenes = &scenes
	}
	if full || m.followDirty {
		follow := append([]string{}, m.followScenes...)
		snap.FollowScenes = &follow
	}
	return snap
}
