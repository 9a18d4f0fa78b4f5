package handlers

import (
	"time"

	"github.com/yungbote/neurobridge-presence/internal/domain"
	"github.com/yungbote/neurobridge-presence/internal/presence/chat"
	"github.com/yungbote/neurobridge-presence/internal/presence/engine"
	"github.com/yungbote/neurobridge-presence/internal/presence/projection"
)

// Snapshots of engine read models. Build them on the loop.

type SessionView struct {
	domain.Session
	Heartbeat      string    `json:"heartbeat"`
	HeartbeatsSent int       `json:"heartbeatsSent"`
	LastActiveAt   time.Time `json:"lastActiveAt"`
	InScenes       []string  `json:"inScenes"`
	FollowScenes   []string  `json:"followScenes"`
}

type UserStatusView struct {
	Handle  string            `json:"handle"`
	Status  projection.Status `json:"status"`
	Profile *domain.Profile   `json:"profile,omitempty"`
}

type PresenceView struct {
	Users []projection.UserView `json:"users"`
	Index projection.Index      `json:"index"`
}

type RoomsView struct {
	Rooms       []string `json:"rooms"`
	TotalUnread int      `json:"totalUnread"`
}

type ChatView struct {
	Conversation chat.Conversation `json:"conversation"`
	TotalUnread  int               `json:"totalUnread"`
}

type AnnouncementView struct {
	Message string `json:"message"`
	Active  bool   `json:"active"`
}

func sessionView(e *engine.Engine) SessionView {
	in, follow := e.Scenes()
	return SessionView{
		Session:        e.Session(),
		Heartbeat:      e.HeartbeatState().String(),
		HeartbeatsSent: e.HeartbeatsSent(),
		LastActiveAt:   e.LastActive(),
		InScenes:       nonNil(in),
		FollowScenes:   nonNil(follow),
	}
}

func presenceView(e *engine.Engine) PresenceView {
	users := e.Users()
	if users == nil {
		users = []projection.UserView{}
	}
	return PresenceView{Users: users, Index: e.Index()}
}

func roomsView(e *engine.Engine) RoomsView {
	return RoomsView{Rooms: nonNil(e.Rooms()), TotalUnread: e.TotalUnread()}
}

func chatView(e *engine.Engine, roomID string) ChatView {
	conv := e.Conversation(roomID)
	if conv.Stanzas == nil {
		conv.Stanzas = []chat.Stanza{}
	}
	conv.TypingUsers = nonNil(conv.TypingUsers)
	return ChatView{Conversation: conv, TotalUnread: e.TotalUnread()}
}

func announcementView(e *engine.Engine) AnnouncementView {
	msg := e.Announcement()
	return AnnouncementView{Message: msg, Active: msg != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
