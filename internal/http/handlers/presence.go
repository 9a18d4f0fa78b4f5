package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-presence/internal/domain"
	"github.com/yungbote/neurobridge-presence/internal/http/response"
	"github.com/yungbote/neurobridge-presence/internal/platform/apierr"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/engine"
	"github.com/yungbote/neurobridge-presence/internal/presence/projection"
)

type PresenceHandler struct {
	Engine *engine.Engine
	Log    *logger.Logger
}

func NewPresenceHandler(log *logger.Logger, e *engine.Engine) *PresenceHandler {
	return &PresenceHandler{Engine: e, Log: log.With("handler", "PresenceHandler")}
}

func (h *PresenceHandler) Users(c *gin.Context) {
	var view PresenceView
	if onLoop(c, h.Engine, func() { view = presenceView(h.Engine) }) {
		response.RespondOK(c, view)
	}
}

// User answers GET /api/presence/users/:handle.
func (h *PresenceHandler) User(c *gin.Context) {
	handle := strings.TrimSpace(c.Param("handle"))
	var (
		view UserStatusView
		ok   bool
	)
	if !onLoop(c, h.Engine, func() {
		view.Handle = handle
		view.Status, view.Profile, ok = h.Engine.UserStatus(handle)
	}) {
		return
	}
	if !ok {
		response.RespondErr(c, apierr.NotFound("not_present", fmt.Errorf("%s is not present", handle)))
		return
	}
	response.RespondOK(c, view)
}

func (h *PresenceHandler) Index(c *gin.Context) {
	var idx projection.Index
	if onLoop(c, h.Engine, func() { idx = h.Engine.Index() }) {
		response.RespondOK(c, idx)
	}
}

func (h *PresenceHandler) Profiles(c *gin.Context) {
	var profiles map[string]domain.Profile
	if onLoop(c, h.Engine, func() { profiles = h.Engine.Profiles() }) {
		if profiles == nil {
			profiles = map[string]domain.Profile{}
		}
		response.RespondOK(c, gin.H{"profiles": profiles})
	}
}

type locationTreeRequest struct {
	// Ancestors maps a location id to its ancestors, nearest first.
	Ancestors map[string][]string `json:"ancestors"`
}

func (h *PresenceHandler) SetLocationTree(c *gin.Context) {
	var req locationTreeRequest
	if !bind(c, &req) {
		return
	}
	var view PresenceView
	if onLoop(c, h.Engine, func() {
		h.Engine.SetLocationTree(req.Ancestors)
		view = presenceView(h.Engine)
	}) {
		response.RespondOK(c, view)
	}
}

func (h *PresenceHandler) Announcement(c *gin.Context) {
	var view AnnouncementView
	if onLoop(c, h.Engine, func() { view = announcementView(h.Engine) }) {
		response.RespondOK(c, view)
	}
}
