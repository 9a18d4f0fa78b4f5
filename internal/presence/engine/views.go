package engine

import (
	"time"

	"github.com/yungbote/neurobridge-presence/internal/domain"
	"github.com/yungbote/neurobridge-presence/internal/presence/chat"
	"github.com/yungbote/neurobridge-presence/internal/presence/projection"
	"github.com/yungbote/neurobridge-presence/internal/presence/session"
)

type UpdateKind string

const (
	UpdateSession      UpdateKind = "session"
	UpdatePresence     UpdateKind = "presence"
	UpdateProfiles     UpdateKind = "profiles"
	UpdateChat         UpdateKind = "chat"
	UpdateAnnouncement UpdateKind = "announcement"
	UpdateEvent        UpdateKind = "event"
)

// Update tells observers which read model changed.
type Update struct {
	Kind   UpdateKind    `json:"kind"`
	RoomID string        `json:"roomId,omitempty"`
	Event  *domain.Event `json:"event,omitempty"`
}

// Subscribe registers fn for every Update. fn runs on the loop and must not
// block.
func (e *Engine) Subscribe(fn func(Update)) func() {
	return e.observers.Subscribe(func(_, next Update) { fn(next) })
}

func (e *Engine) emit(u Update) {
	e.observers.Update(func(cur *Update) { *cur = u })
}

// Read models. Call on the loop.

func (e *Engine) Session() domain.Session { return e.state.Get() }

func (e *Engine) HeartbeatState() session.HeartbeatState { return e.manager.HeartbeatState() }

func (e *Engine) HeartbeatsSent() int { return e.manager.HeartbeatsSent() }

func (e *Engine) LastActive() time.Time { return e.manager.LastActive() }

func (e *Engine) Index() projection.Index { return e.tracker.Index() }

func (e *Engine) Users() []projection.UserView { return e.tracker.Users() }

func (e *Engine) Profiles() map[string]domain.Profile { return e.tracker.Profiles() }

// UserStatus reports handle's status and merged profile. ok is false when
// handle is not among the present users.
func (e *Engine) UserStatus(handle string) (status projection.Status, profile *domain.Profile, ok bool) {
	status, ok = e.tracker.Status(handle)
	if !ok {
		return "", nil, false
	}
	if p, found := e.tracker.Profile(handle); found {
		profile = &p
	}
	return status, profile, true
}

func (e *Engine) Conversation(roomID string) chat.Conversation {
	if roomID == "" {
		roomID = e.chat.OpenRoom()
	}
	return e.chat.Conversation(roomID)
}

func (e *Engine) Rooms() []string { return e.chat.Rooms() }

func (e *Engine) TotalUnread() int { return e.chat.TotalUnread() }

func (e *Engine) Announcement() string { return e.announcement }

func (e *Engine) Scenes() (in, follow []string) {
	return e.manager.Scenes(), e.manager.FollowedScenes()
}
