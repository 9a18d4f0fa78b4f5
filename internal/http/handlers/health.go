package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-presence/internal/observability"
)

type HealthHandler struct {
	Metrics *observability.Metrics
}

func NewHealthHandler(m *observability.Metrics) *HealthHandler { return &HealthHandler{Metrics: m} }

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *HealthHandler) Prometheus(c *gin.Context) {
	h.Metrics.WriteHTTP(c.Writer, c.Request)
}
