package realtime

import (
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-presence/internal/platform/logger"
)

// SSEClient is one local /api/events subscriber.
type SSEClient struct {
	ID       uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}
