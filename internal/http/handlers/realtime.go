package handlers

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-presence/internal/http/response"
	"github.com/yungbote/neurobridge-presence/internal/observability"
	"github.com/yungbote/neurobridge-presence/internal/platform/apierr"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/engine"
	"github.com/yungbote/neurobridge-presence/internal/realtime"
)

// RealtimeHandler re-broadcasts engine updates to local SSE subscribers.
type RealtimeHandler struct {
	Log     *logger.Logger
	Hub     *realtime.SSEHub
	Engine  *engine.Engine
	Metrics *observability.Metrics
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, e *engine.Engine, m *observability.Metrics) *RealtimeHandler {
	return &RealtimeHandler{
		Log:     log.With("handler", "RealtimeHandler"),
		Hub:     hub,
		Engine:  e,
		Metrics: m,
	}
}

// Bridge subscribes the hub to engine updates until the returned func is
// called.
func (h *RealtimeHandler) Bridge(ctx context.Context) (func(), error) {
	var stop func()
	err := h.Engine.Do(ctx, func() {
		stop = h.Engine.Subscribe(h.forward)
	})
	if err != nil {
		return nil, err
	}
	return func() {
		_ = h.Engine.Do(context.Background(), stop)
	}, nil
}

// forward runs on the loop, so read models can be snapshotted directly.
func (h *RealtimeHandler) forward(u engine.Update) {
	eventType := ""
	if u.Event != nil {
		eventType = string(u.Event.Type)
	}
	h.Metrics.ObserveUpdate(string(u.Kind), eventType)
	if u.Kind == engine.UpdateSession {
		h.Metrics.SetSessionState(sessionState(h.Engine))
	}

	msg, ok := h.message(u)
	if !ok || h.Hub.Subscribers(msg.Channel) == 0 {
		return
	}
	h.Hub.Broadcast(msg)
}

func (h *RealtimeHandler) message(u engine.Update) (realtime.SSEMessage, bool) {
	var (
		ev   realtime.SSEEvent
		data any
	)
	switch u.Kind {
	case engine.UpdateSession:
		ev, data = realtime.SSEEventSession, sessionView(h.Engine)
	case engine.UpdatePresence:
		ev, data = realtime.SSEEventPresence, presenceView(h.Engine)
	case engine.UpdateProfiles:
		ev, data = realtime.SSEEventProfiles, gin.H{"profiles": h.Engine.Profiles()}
	case engine.UpdateChat:
		ev, data = realtime.SSEEventChat, chatView(h.Engine, u.RoomID)
	case engine.UpdateAnnouncement:
		ev, data = realtime.SSEEventAnnouncement, announcementView(h.Engine)
	case engine.UpdateEvent:
		if u.Event == nil {
			return realtime.SSEMessage{}, false
		}
		ev, data = realtime.SSEEventServer, u.Event
	default:
		return realtime.SSEMessage{}, false
	}
	return realtime.SSEMessage{Channel: string(ev), Event: ev, Data: data}, true
}

func sessionState(e *engine.Engine) string {
	s := e.Session()
	switch {
	case s.Online && s.Idling:
		return "idle"
	case s.Online:
		return "online"
	case s.Offline:
		return "offline"
	case s.Started:
		return "starting"
	default:
		return "stopped"
	}
}

// SSEStream serves GET /api/events?channels=session,chat. Without channels
// the client gets every channel. The current session is sent first.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	channels, err := parseChannels(c.Query("channels"))
	if err != nil {
		response.RespondErr(c, apierr.BadRequest(err))
		return
	}

	client := h.Hub.NewSSEClient()
	for _, ch := range channels {
		h.Hub.AddChannel(client, ch)
	}
	h.Metrics.StreamOpened()
	defer func() {
		h.Hub.CloseClient(client)
		h.Metrics.StreamClosed()
	}()

	if slices.Contains(channels, string(realtime.SSEEventSession)) {
		var view SessionView
		if err := h.Engine.Do(c.Request.Context(), func() { view = sessionView(h.Engine) }); err != nil {
			response.RespondErr(c, classify(err))
			return
		}
		client.Outbound <- realtime.SSEMessage{Channel: string(realtime.SSEEventSession), Event: realtime.SSEEventSession, Data: view}
	}

	client.Logger.Debug("SSE stream open", "channels", strings.Join(channels, ","))
	h.Hub.ServeHTTP(c.Writer, c.Request, client)
}

func parseChannels(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return slices.Clone(realtime.Channels), nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !slices.Contains(realtime.Channels, part) {
			return nil, fmt.Errorf("unknown channel %q", part)
		}
		if !slices.Contains(out, part) {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no channels in %q", raw)
	}
	return out, nil
}

// Status reports the number of local subscribers per channel.
func (h *RealtimeHandler) Status(c *gin.Context) {
	out := make(map[string]int, len(realtime.Channels))
	for _, ch := range realtime.Channels {
		out[ch] = h.Hub.Subscribers(ch)
	}
	c.JSON(http.StatusOK, gin.H{"subscribers": out})
}
