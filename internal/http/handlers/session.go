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

type SessionHandler struct {
	Engine *engine.Engine
	Log    *logger.Logger
}

func NewSessionHandler(log *logger.Logger, e *engine.Engine) *SessionHandler {
	return &SessionHandler{Engine: e, Log: log.With("handler", "SessionHandler")}
}

func (h *SessionHandler) Get(c *gin.Context) {
	var view SessionView
	if onLoop(c, h.Engine, func() { view = sessionView(h.Engine) }) {
		response.RespondOK(c, view)
	}
}

// command runs fn and answers 202 with the session as it stands afterwards.
// The session changes further once the server answers.
func (h *SessionHandler) command(c *gin.Context, fn func()) {
	var view SessionView
	if onLoop(c, h.Engine, func() {
		fn()
		view = sessionView(h.Engine)
	}) {
		response.RespondAccepted(c, view)
	}
}

func (h *SessionHandler) Start(c *gin.Context)     { h.command(c, h.Engine.Start) }
func (h *SessionHandler) Stop(c *gin.Context)      { h.command(c, h.Engine.Stop) }
func (h *SessionHandler) Reconnect(c *gin.Context) { h.command(c, h.Engine.Reconnect) }
func (h *SessionHandler) Touch(c *gin.Context)     { h.command(c, h.Engine.Touch) }

type flagRequest struct {
	Visible *bool `json:"visible"`
	Idle    *bool `json:"idle"`
}

func (h *SessionHandler) SetVisibility(c *gin.Context) {
	var req flagRequest
	if !bind(c, &req) {
		return
	}
	if req.Visible == nil {
		response.RespondErr(c, apierr.BadRequest(errors.New("visible is required")))
		return
	}
	h.command(c, func() { h.Engine.SetVisible(*req.Visible) })
}

func (h *SessionHandler) SetIdle(c *gin.Context) {
	var req flagRequest
	if !bind(c, &req) {
		return
	}
	if req.Idle == nil {
		response.RespondErr(c, apierr.BadRequest(errors.New("idle is required")))
		return
	}
	h.command(c, func() { h.Engine.SetIdle(*req.Idle) })
}

type scenesRequest struct {
	Scenes []string `json:"scenes"`
}

func (h *SessionHandler) SetScenes(c *gin.Context) {
	var req scenesRequest
	if !bind(c, &req) {
		return
	}
	h.command(c, func() { h.Engine.SetScenes(req.Scenes) })
}

type followRequest struct {
	Scene  string `json:"scene" binding:"required"`
	Follow *bool  `json:"follow"`
}

func (h *SessionHandler) Follow(c *gin.Context) {
	var req followRequest
	if !bind(c, &req) {
		return
	}
	scene := strings.TrimSpace(req.Scene)
	if scene == "" {
		response.RespondErr(c, apierr.BadRequest(errors.New("scene is required")))
		return
	}
	follow := req.Follow == nil || *req.Follow
	h.command(c, func() { h.Engine.FollowScene(scene, follow) })
}
