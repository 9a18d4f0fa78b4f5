package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-presence/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-presence/internal/http/middleware"
	"github.com/yungbote/neurobridge-presence/internal/observability"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	ServiceName string

	HealthHandler   *httpH.HealthHandler
	SessionHandler  *httpH.SessionHandler
	PresenceHandler *httpH.PresenceHandler
	ChatHandler     *httpH.ChatHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/metrics", cfg.HealthHandler.Prometheus)
	}

	api := r.Group("/api")

	// Session
	if h := cfg.SessionHandler; h != nil {
		api.GET("/session", h.Get)
		api.POST("/session/start", h.Start)
		api.POST("/session/stop", h.Stop)
		api.POST("/session/reconnect", h.Reconnect)
		api.POST("/session/touch", h.Touch)
		api.PUT("/session/visibility", h.SetVisibility)
		api.PUT("/session/idle", h.SetIdle)
		api.PUT("/session/scenes", h.SetScenes)
		api.PUT("/session/follow", h.Follow)
	}

	// Presence
	if h := cfg.PresenceHandler; h != nil {
		api.GET("/presence/users", h.Users)
		api.GET("/presence/users/:handle", h.User)
		api.GET("/presence/index", h.Index)
		api.GET("/presence/profiles", h.Profiles)
		api.PUT("/presence/locations", h.SetLocationTree)
		api.GET("/announcement", h.Announcement)
	}

	// Chat
	if h := cfg.ChatHandler; h != nil {
		api.GET("/chat/rooms", h.ListRooms)
		api.POST("/chat/rooms", h.CreateRoom)
		api.GET("/chat/rooms/:id", h.GetConversation)
		api.POST("/chat/rooms/:id/open", h.OpenRoom)
		api.POST("/chat/rooms/:id/messages", h.SendMessage)
		api.PUT("/chat/rooms/:id/typing", h.SetTyping)
		api.POST("/chat/close", h.CloseRoom)
	}

	// Realtime (SSE)
	if h := cfg.RealtimeHandler; h != nil {
		api.GET("/events", h.SSEStream)
		api.GET("/events/status", h.Status)
	}

	return r
}
