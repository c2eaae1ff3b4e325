package server

import (
	"time"

	"github.com/gin-gonic/gin"

	"exec-guard/internal/activity"
	"exec-guard/internal/auth"
	"exec-guard/internal/handler"
	"exec-guard/internal/hub"
	"exec-guard/internal/middleware"
)

type Deps struct {
	Gateway     handler.GatewayControl
	Approvals   handler.Approvals
	History     handler.ApprovalHistory
	Access      handler.AccessControl
	Activity    *activity.LogStore
	Hub         *hub.Hub
	TokenConfig auth.TokenConfig

	// DecisionLimiter throttles decision submissions per operator. A
	// default of 60 per minute is used when nil.
	DecisionLimiter *middleware.RateLimiter
}

func NewRouter(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	versionHandler := &handler.VersionHandler{}
	r.GET("/version", versionHandler.Get)

	limiter := deps.DecisionLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(60, time.Minute)
	}

	protected := r.Group("/v1")
	protected.Use(middleware.RequireAuth(deps.TokenConfig))

	statusHandler := &handler.StatusHandler{Gateway: deps.Gateway, Approvals: deps.Approvals}
	protected.GET("/status", statusHandler.Get)
	protected.POST("/gateway/reconnect", statusHandler.Reconnect)

	approvalHandler := &handler.ApprovalHandler{Approvals: deps.Approvals, History: deps.History}
	protected.GET("/approvals/pending", approvalHandler.Pending)
	protected.GET("/approvals", approvalHandler.List)
	protected.POST("/approvals/:id/decision", middleware.RateLimitMiddleware(limiter), approvalHandler.Decide)

	patternHandler := &handler.PatternHandler{Approvals: deps.Approvals}
	protected.GET("/patterns", patternHandler.List)
	protected.POST("/patterns", patternHandler.Add)
	protected.DELETE("/patterns", patternHandler.Remove)

	accessHandler := &handler.AccessHandler{Access: deps.Access}
	protected.GET("/access", accessHandler.Get)
	protected.PUT("/access", accessHandler.Update)

	activityHandler := &handler.ActivityHandler{Log: deps.Activity}
	protected.GET("/activity", activityHandler.List)

	wsHandler := &handler.WebSocketHandler{
		Hub:         deps.Hub,
		Gateway:     deps.Gateway,
		Approvals:   deps.Approvals,
		TokenConfig: deps.TokenConfig,
	}
	r.GET("/ws", wsHandler.Serve)

	return r
}
