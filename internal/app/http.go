package app

import (
	apphttp "github.com/yungbote/neurobridge-presence/internal/http"
	httpH "github.com/yungbote/neurobridge-presence/internal/http/handlers"
	"github.com/yungbote/neurobridge-presence/internal/observability"
	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
	"github.com/yungbote/neurobridge-presence/internal/presence/engine"
	"github.com/yungbote/neurobridge-presence/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Session  *httpH.SessionHandler
	Presence *httpH.PresenceHandler
	Chat     *httpH.ChatHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, e *engine.Engine, hub *realtime.SSEHub, m *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(m),
		Session:  httpH.NewSessionHandler(log, e),
		Presence: httpH.NewPresenceHandler(log, e),
		Chat:     httpH.NewChatHandler(log, e),
		Realtime: httpH.NewRealtimeHandler(log, hub, e, m),
	}
}

func wireRouterConfig(log *logger.Logger, h Handlers, m *observability.Metrics, origins []string) apphttp.RouterConfig {
	return apphttp.RouterConfig{
		Log:             log,
		Metrics:         m,
		CORSOrigins:     origins,
		ServiceName:     serviceName,
		HealthHandler:   h.Health,
		SessionHandler:  h.Session,
		PresenceHandler: h.Presence,
		ChatHandler:     h.Chat,
		RealtimeHandler: h.Realtime,
	}
}
