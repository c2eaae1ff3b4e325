package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"exec-guard/internal/gateway"
)

type StatusHandler struct {
	Gateway   GatewayControl
	Approvals Approvals
}

// snapshot is the full state a dashboard needs to render from scratch.
func snapshot(gw GatewayControl, ap Approvals) gin.H {
	return gin.H{
		"gateway":  gw.Status(),
		"sessions": gw.ActiveSessions(),
		"pending":  ap.GetPendingApprovals(),
		"patterns": ap.GetRestrictedPatterns(),
	}
}

func (h *StatusHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, snapshot(h.Gateway, h.Approvals))
}

func (h *StatusHandler) Reconnect(c *gin.Context) {
	err := h.Gateway.Reconnect()
	switch {
	case errors.Is(err, gateway.ErrNotConfigured):
		c.JSON(http.StatusConflict, gin.H{"error": "Gateway is not configured", "status": h.Gateway.Status()})
	case err != nil:
		log.Printf("handler: reconnect failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Gateway unreachable", "status": h.Gateway.Status()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": h.Gateway.Status()})
	}
}
