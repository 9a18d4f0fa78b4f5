package engine

import (
	"context"
	"strings"

	"github.com/yungbote/neurobridge-presence/internal/domain"
	"github.com/yungbote/neurobridge-presence/internal/presence/api"
	"github.com/yungbote/neurobridge-presence/internal/presence/chat"
	"github.com/yungbote/neurobridge-presence/internal/presence/loop"
	"github.com/yungbote/neurobridge-presence/internal/presence/stream"
)

// Everything below runs on the loop.

func (e *Engine) Start() { e.manager.Start() }

func (e *Engine) Stop() { e.manager.Stop(nil) }

// Reconnect is the manual retry offered while offline.
func (e *Engine) Reconnect() { e.policy.Reconnect() }

func (e *Engine) SetVisible(visible bool) { e.manager.SetVisible(visible) }

func (e *Engine) SetIdle(idle bool) { e.manager.SetIdle(idle) }

func (e *Engine) Touch() { e.manager.Touch() }

func (e *Engine) SetScenes(scenes []string) { e.manager.SetScenes(scenes) }

func (e *Engine) FollowScene(scene string, follow bool) { e.manager.FollowScene(scene, follow) }

// SetLocationTree installs the ancestor table used by WithinSubtree.
func (e *Engine) SetLocationTree(ancestors map[string][]string) {
	e.tracker.SetAncestors(ancestors)
}

// On subscribes fn to typ and makes sure the stream delivers it.
func (e *Engine) On(typ domain.EventType, fn stream.Handler) func() {
	e.manager.AddEventType(typ)
	return e.listeners.On(typ, fn)
}

// OpenRoom shows an existing room.
func (e *Engine) OpenRoom(roomID string) { e.chat.Open(roomID) }

// CreateRoom asks the server for a room with participants and opens it.
func (e *Engine) CreateRoom(participants []string, name string, done func(roomID string, err error)) {
	req := api.OpenRoomRequest{Participants: participants, Name: strings.TrimSpace(name)}
	loop.Call(e.sched, func(ctx context.Context) (api.OpenRoomResponse, error) {
		return e.api.OpenRoom(ctx, req)
	}, func(resp api.OpenRoomResponse, err error) {
		if err == nil && resp.RoomID != "" {
			e.chat.Open(resp.RoomID)
		}
		if done != nil {
			done(resp.RoomID, err)
		}
	})
}

func (e *Engine) CloseRoom() { e.chat.Close() }

// SendMessage posts text to roomID, or to the open room when roomID is "".
// The line shows up when the server echoes it back.
func (e *Engine) SendMessage(roomID, text string, done func(clientID string, err error)) {
	if roomID == "" {
		roomID = e.chat.OpenRoom()
	}
	if roomID == "" {
		if done != nil {
			done("", chat.ErrNoRoom)
		}
		return
	}
	loop.Call(e.sched, func(ctx context.Context) (string, error) {
		return e.api.SendMessage(ctx, roomID, text)
	}, func(id string, err error) {
		if err != nil {
			e.log.Warn("send message failed", "room", roomID, "error", err)
		}
		if done != nil {
			done(id, err)
		}
	})
}

func (e *Engine) SendTyping(roomID string, typing bool, done func(err error)) {
	if roomID == "" {
		roomID = e.chat.OpenRoom()
	}
	if roomID == "" {
		if done != nil {
			done(chat.ErrNoRoom)
		}
		return
	}
	e.sched.Go(func(ctx context.Context) error {
		return e.api.SendTyping(ctx, roomID, typing)
	}, func(err error) {
		if err != nil {
			e.log.Debug("send typing failed", "room", roomID, "error", err)
		}
		if done != nil {
			done(err)
		}
	})
}
