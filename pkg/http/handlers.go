package http

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"

	"algoedge.xyz/alarm-relay-service/pkg/alarm"
	"algoedge.xyz/alarm-relay-service/pkg/common"
)

// maxEventBody bounds the ingest payload; base64 snapshots from edge boxes
// run to a few MB.
const maxEventBody = 16 << 20

// PostAIMessage is the ingestion endpoint edge boxes push alarm events to.
// Vendor payloads are heterogeneous, so decoding goes through the tolerant
// event parser instead of a strict schema.
func (rs *RestfulServer) PostAIMessage(c *gin.Context) {
	if !rs.checkAuth(c) {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	var ev alarm.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	if !rs.CheckDeviceLimiter(ev.Identity()) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	echo := c.Query("echo") == "1"

	ack, err := rs.Alarm.Ingest.HandleEvent(c.Request.Context(), &ev, raw, echo)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, ack)
}

func (rs *RestfulServer) ListDevices(c *gin.Context) {
	devices, err := rs.Alarm.Registry.ListDevices()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, devices)
}

type EnableRequest struct {
	Enabled bool `json:"enabled"`
}

var enableRequestSchema = z.Struct(z.Shape{
	"Enabled": z.Bool(),
})

func (rs *RestfulServer) SetDeviceEnable(c *gin.Context) {
	deviceID := c.Param("device_id")

	var req EnableRequest
	if err := enableRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	if err := rs.Alarm.Registry.SetDeviceEnabled(deviceID, req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

type LimiterRequest struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"rate":  z.Float64().Required(),
	"burst": z.Int().Required(),
})

func (rs *RestfulServer) PostLimiter(c *gin.Context) {
	deviceID := c.Param("device_id")

	var req LimiterRequest
	if err := limiterRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	rs.SetLimiter(deviceID, req.Rate, req.Burst)
	c.Status(http.StatusOK)
}

func (rs *RestfulServer) ListChannels(c *gin.Context) {
	channels, err := rs.Alarm.Registry.ListChannels(c.Query("device_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, channels)
}

func (rs *RestfulServer) SetChannelEnable(c *gin.Context) {
	deviceID := c.Param("device_id")
	channelKey := c.Param("channel_key")

	var req EnableRequest
	if err := enableRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	if err := rs.Alarm.Registry.SetChannelEnabled(deviceID, channelKey, req.Enabled); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (rs *RestfulServer) GetChannelRules(c *gin.Context) {
	rules, err := rs.Alarm.Registry.ChannelRules(c.Param("device_id"), c.Param("channel_key"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

type RuleSegmentRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type WeekdayRulesRequest struct {
	Weekday  int                  `json:"weekday"`
	Segments []RuleSegmentRequest `json:"segments"`
}

type ChannelRulesRequest struct {
	Rules []WeekdayRulesRequest `json:"rules"`
}

// PutChannelRules replaces the schedule for every weekday named in the
// body. Weekdays not named keep their existing rows. The nested rule list
// is decoded with encoding/json; zhttp only handles flat shapes.
func (rs *RestfulServer) PutChannelRules(c *gin.Context) {
	deviceID := c.Param("device_id")
	channelKey := c.Param("channel_key")

	var req ChannelRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	for _, wr := range req.Rules {
		if wr.Weekday < 0 || wr.Weekday > 6 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "weekday out of range"})
			return
		}
		for _, seg := range wr.Segments {
			if seg.Start == "" || seg.End == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "segment start/end required"})
				return
			}
		}
	}

	for _, wr := range req.Rules {
		segments := make([]alarm.RuleSegment, 0, len(wr.Segments))
		for _, seg := range wr.Segments {
			segments = append(segments, alarm.RuleSegment{Start: seg.Start, End: seg.End})
		}
		if err := rs.Alarm.Registry.ReplaceChannelRules(deviceID, channelKey, wr.Weekday, segments); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.Status(http.StatusOK)
}

type ChannelWebhooksRequest struct {
	WebhookIDs []int `json:"webhookIds"`
}

func (rs *RestfulServer) PutChannelWebhooks(c *gin.Context) {
	deviceID := c.Param("device_id")
	channelKey := c.Param("channel_key")

	var req ChannelWebhooksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	ids := make([]uint, 0, len(req.WebhookIDs))
	for _, id := range req.WebhookIDs {
		ids = append(ids, uint(id))
	}
	if err := rs.Alarm.Webhooks.ReplaceChannelWebhooks(deviceID, channelKey, ids); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (rs *RestfulServer) ListWebhooks(c *gin.Context) {
	hooks, err := rs.Alarm.Webhooks.List(c.Query("enabled") == "1")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, hooks)
}

type AddWebhookRequest struct {
	Name        string `json:"name"`
	AccessToken string `json:"accessToken"`
	Secret      string `json:"secret"`
	Enabled     bool   `json:"enabled"`
	IsDefault   bool   `json:"isDefault"`
}

var addWebhookRequestSchema = z.Struct(z.Shape{
	"Name":        z.String().Required(),
	"AccessToken": z.String().Required(),
	"Secret":      z.String(),
	"Enabled":     z.Bool(),
	"IsDefault":   z.Bool(),
})

func (rs *RestfulServer) AddWebhook(c *gin.Context) {
	var req AddWebhookRequest
	if err := addWebhookRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	id, err := rs.Alarm.Webhooks.Add(req.Name, req.AccessToken, req.Secret, req.Enabled, req.IsDefault)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func webhookIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid webhook id"})
		return 0, false
	}
	return uint(id), true
}

type WebhookEnableRequest struct {
	Enabled   bool  `json:"enabled"`
	IsDefault *bool `json:"isDefault"`
}

var webhookEnableRequestSchema = z.Struct(z.Shape{
	"Enabled":   z.Bool(),
	"IsDefault": z.Ptr(z.Bool()),
})

func (rs *RestfulServer) SetWebhookEnable(c *gin.Context) {
	id, ok := webhookIDParam(c)
	if !ok {
		return
	}

	var req WebhookEnableRequest
	if err := webhookEnableRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	if err := rs.Alarm.Webhooks.UpdateEnable(id, req.Enabled, req.IsDefault); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (rs *RestfulServer) SetWebhookDefault(c *gin.Context) {
	id, ok := webhookIDParam(c)
	if !ok {
		return
	}
	if err := rs.Alarm.Webhooks.SetDefault(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (rs *RestfulServer) DeleteWebhook(c *gin.Context) {
	id, ok := webhookIDParam(c)
	if !ok {
		return
	}
	if err := rs.Alarm.Webhooks.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// messageFilterFromQuery builds the shared history filter from query
// parameters. Timestamps are RFC3339.
func messageFilterFromQuery(c *gin.Context) (alarm.MessageFilter, error) {
	filter := alarm.MessageFilter{
		DeviceID:   c.Query("device_id"),
		ChannelKey: c.Query("channel_key"),
	}
	if v := c.Query("type"); v != "" {
		t, err := strconv.Atoi(v)
		if err != nil {
			return filter, err
		}
		filter.Type = &t
	}
	if v := c.Query("forwarded"); v != "" {
		fwd := v == "1" || v == "true"
		filter.Forwarded = &fwd
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, err
		}
		filter.To = &t
	}
	return filter, nil
}

func (rs *RestfulServer) ListMessages(c *gin.Context) {
	filter, err := messageFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	messages, total, err := rs.Alarm.History.Query(filter, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "messages": messages})
}

// DeleteMessages removes matching rows. When the delete is too large for
// inline snapshot cleanup a background reconciliation picks up the orphans.
func (rs *RestfulServer) DeleteMessages(c *gin.Context) {
	filter, err := messageFilterFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	deleted, orphansHandled, err := rs.Alarm.History.DeleteByFilter(filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if !orphansHandled && rs.Reconciler != nil {
		go func() {
			if _, err := rs.Reconciler.Run(); err != nil {
				common.GetLoggerWith(common.LoggerNameRestfulServer).
					Warn("Post-delete reconciliation failed", zap.Error(err))
			}
		}()
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "orphans_handled": orphansHandled})
}

func (rs *RestfulServer) RunReconcile(c *gin.Context) {
	if rs.Reconciler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciler not configured"})
		return
	}
	stats, err := rs.Reconciler.Run()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (rs *RestfulServer) RunClean(c *gin.Context) {
	if rs.Sweeper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sweeper not configured"})
		return
	}
	stats, err := rs.Sweeper.Sweep()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (rs *RestfulServer) RunVacuum(c *gin.Context) {
	if rs.Sweeper == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sweeper not configured"})
		return
	}
	if err := rs.Sweeper.Db.Vacuum(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
