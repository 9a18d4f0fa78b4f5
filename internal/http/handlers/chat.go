package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-presence/internal/http/response"
	"github.com/yungbote/neurobridge-presence/internal/platform/apierr"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/engine"
)

type ChatHandler struct {
	Engine *engine.Engine
	Log    *logger.Logger
}

func NewChatHandler(log *logger.Logger, e *engine.Engine) *ChatHandler {
	return &ChatHandler{Engine: e, Log: log.With("handler", "ChatHandler")}
}

func (h *ChatHandler) ListRooms(c *gin.Context) {
	var view RoomsView
	if onLoop(c, h.Engine, func() { view = roomsView(h.Engine) }) {
		response.RespondOK(c, view)
	}
}

type createRoomRequest struct {
	Participants []string `json:"participants"`
	Name         string   `json:"name"`
}

func (h *ChatHandler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if !bind(c, &req) {
		return
	}
	participants := make([]string, 0, len(req.Participants))
	for _, p := range req.Participants {
		if p = strings.TrimSpace(p); p != "" {
			participants = append(participants, p)
		}
	}
	if len(participants) == 0 {
		response.RespondErr(c, apierr.BadRequest(errors.New("participants are required")))
		return
	}
	roomID, err := await(c.Request.Context(), h.Engine, func(done func(string, error)) {
		h.Engine.CreateRoom(participants, req.Name, done)
	})
	if err != nil {
		h.Log.Warn("create room failed", "error", err)
		response.RespondErr(c, classify(err))
		return
	}
	var view ChatView
	if onLoop(c, h.Engine, func() { view = chatView(h.Engine, roomID) }) {
		response.RespondOK(c, view)
	}
}

func (h *ChatHandler) GetConversation(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("id"))
	var view ChatView
	if onLoop(c, h.Engine, func() { view = chatView(h.Engine, roomID) }) {
		response.RespondOK(c, view)
	}
}

func (h *ChatHandler) OpenRoom(c *gin.Context) {
	roomID := strings.TrimSpace(c.Param("id"))
	var view ChatView
	if onLoop(c, h.Engine, func() {
		h.Engine.OpenRoom(roomID)
		view = chatView(h.Engine, roomID)
	}) {
		response.RespondOK(c, view)
	}
}

func (h *ChatHandler) CloseRoom(c *gin.Context) {
	var view RoomsView
	if onLoop(c, h.Engine, func() {
		h.Engine.CloseRoom()
		view = roomsView(h.Engine)
	}) {
		response.RespondOK(c, view)
	}
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

// SendMessage posts a line. The conversation picks it up from the server
// echo, so the response only carries the client id.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if !bind(c, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		response.RespondErr(c, apierr.BadRequest(errors.New("text is required")))
		return
	}
	roomID := strings.TrimSpace(c.Param("id"))
	clientID, err := await(c.Request.Context(), h.Engine, func(done func(string, error)) {
		h.Engine.SendMessage(roomID, req.Text, done)
	})
	if err != nil {
		response.RespondErr(c, classify(err))
		return
	}
	response.RespondAccepted(c, gin.H{"roomId": roomID, "clientId": clientID})
}

type typingRequest struct {
	Typing *bool `json:"typing"`
}

func (h *ChatHandler) SetTyping(c *gin.Context) {
	var req typingRequest
	if !bind(c, &req) {
		return
	}
	if req.Typing == nil {
		response.RespondErr(c, apierr.BadRequest(errors.New("typing is required")))
		return
	}
	roomID := strings.TrimSpace(c.Param("id"))
	_, err := await(c.Request.Context(), h.Engine, func(done func(struct{}, error)) {
		h.Engine.SendTyping(roomID, *req.Typing, func(err error) { done(struct{}{}, err) })
	})
	if err != nil {
		response.RespondErr(c, classify(err))
		return
	}
	response.RespondAccepted(c, gin.H{"roomId": roomID, "typing": *req.Typing})
}
