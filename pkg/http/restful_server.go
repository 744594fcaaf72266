package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"algoedge.xyz/alarm-relay-service/pkg/alarm"
	"algoedge.xyz/alarm-relay-service/pkg/maintain"
)

type RestfulServer struct {
	Server           *gin.Engine
	Alarm            *alarm.Alarm
	RateLimiterStore *alarm.RateLimiterStore
	// AuthToken guards the ingest and admin surfaces when non-empty.
	AuthToken  string
	Reconciler *maintain.Reconciler
	Sweeper    *maintain.Sweeper
	// StaticDir is served under /static for snapshot access.
	StaticDir string
}

func (rs *RestfulServer) GetLimiter(deviceID string) *rate.Limiter {
	if rs.RateLimiterStore == nil {
		return nil
	} else {
		return rs.RateLimiterStore.GetLimiter(deviceID)
	}
}

func (rs *RestfulServer) CheckDeviceLimiter(deviceID string) bool {
	limiter := rs.GetLimiter(deviceID)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

func (rs *RestfulServer) SetLimiter(deviceID string, deviceRate float64, deviceBurst int) {
	if rs.RateLimiterStore == nil {
		return
	}
	rs.RateLimiterStore.SetLimiter(deviceID, rate.Limit(deviceRate), deviceBurst)
}

// checkAuth accepts the token from either the query string or a header so
// camera boxes with fixed URL templates can still authenticate.
func (rs *RestfulServer) checkAuth(c *gin.Context) bool {
	if rs.AuthToken == "" {
		return true
	}
	if c.Query("token") == rs.AuthToken || c.GetHeader("X-Auth-Token") == rs.AuthToken {
		return true
	}
	c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	return false
}

func (rs *RestfulServer) requireAuth(c *gin.Context) {
	if !rs.checkAuth(c) {
		c.Abort()
	}
}

func (rs *RestfulServer) Setup() {
	rs.Server.GET("/healthz", rs.HealthCheck)
	rs.Server.POST("/ai/message", rs.PostAIMessage)

	if rs.StaticDir != "" {
		rs.Server.Static("/static", rs.StaticDir)
	}

	admin := rs.Server.Group("/admin", rs.requireAuth)
	{
		admin.GET("/devices", rs.ListDevices)
		admin.POST("/devices/:device_id/enable", rs.SetDeviceEnable)
		admin.POST("/devices/:device_id/limiter", rs.PostLimiter)

		admin.GET("/channels", rs.ListChannels)
		admin.POST("/channels/:device_id/:channel_key/enable", rs.SetChannelEnable)
		admin.GET("/channels/:device_id/:channel_key/rules", rs.GetChannelRules)
		admin.PUT("/channels/:device_id/:channel_key/rules", rs.PutChannelRules)
		admin.PUT("/channels/:device_id/:channel_key/webhooks", rs.PutChannelWebhooks)

		admin.GET("/webhooks", rs.ListWebhooks)
		admin.POST("/webhooks", rs.AddWebhook)
		admin.POST("/webhooks/:id/enable", rs.SetWebhookEnable)
		admin.POST("/webhooks/:id/default", rs.SetWebhookDefault)
		admin.DELETE("/webhooks/:id", rs.DeleteWebhook)

		admin.GET("/messages", rs.ListMessages)
		admin.DELETE("/messages", rs.DeleteMessages)

		admin.POST("/maintain/reconcile", rs.RunReconcile)
		admin.POST("/maintain/clean", rs.RunClean)
		admin.POST("/maintain/vacuum", rs.RunVacuum)
	}
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
