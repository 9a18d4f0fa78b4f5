package session

import (
	"slices"
	"strings"
	"time"

	"github.com/yungbote/neurobridge-presence/internal/domain"
)

// Touch records user activity. Coming back from idle reports it at once.
func (m *Manager) Touch() {
	m.lastActive = m.sched.Now()
	m.armIdle()
	if m.state.Get().Idling {
		m.state.Update(func(s *domain.Session) { s.Idling = false })
		m.RequestHeartbeat()
	}
}

func (m *Manager) SetIdle(idle bool) {
	if !idle {
		m.Touch()
		return
	}
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
	m.markIdle()
}

func (m *Manager) LastActive() time.Time { return m.lastActive }

func (m *Manager) armIdle() {
	if m.idleTimer != nil {
		m.idleTimer.Stop()
		m.idleTimer = nil
	}
	if m.cfg.IdleAfter <= 0 {
		return
	}
	m.idleTimer = m.sched.AfterFunc(m.cfg.IdleAfter, func() {
		m.idleTimer = nil
		m.markIdle()
	})
}

func (m *Manager) markIdle() {
	if m.state.Get().Idling {
		return
	}
	m.state.Update(func(s *domain.Session) { s.Idling = true })
}

// SetVisible tracks whether the UI is showing. Becoming visible reports at once.
func (m *Manager) SetVisible(visible bool) {
	if m.state.Get().TabVisible == visible {
		return
	}
	m.state.Update(func(s *domain.Session) { s.TabVisible = visible })
	if visible {
		m.RequestHeartbeat()
	}
}

// SetScenes replaces the set of scenes the user is viewing.
func (m *Manager) SetScenes(scenes []string) {
	next := normalizeScenes(scenes)
	if slices.Equal(next, m.inScenes) {
		return
	}
	m.inScenes = next
	m.scenesDirty = true
	m.RequestHeartbeat()
}

// FollowScene adds or removes scene from the followed set.
func (m *Manager) FollowScene(scene string, follow bool) {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return
	}
	i := slices.Index(m.followScenes, scene)
	switch {
	case follow && i < 0:
		m.followScenes = append(m.followScenes, scene)
		slices.Sort(m.followScenes)
	case !follow && i >= 0:
		m.followScenes = slices.Delete(m.followScenes, i, i+1)
	default:
		return
	}
	m.followDirty = true
	m.RequestHeartbeat()
}

func (m *Manager) Scenes() []string { return slices.Clone(m.inScenes) }

func (m *Manager) FollowedScenes() []string { return slices.Clone(m.followScenes) }

func normalizeScenes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || slices.Contains(out, s) {
			continue
		}
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}
