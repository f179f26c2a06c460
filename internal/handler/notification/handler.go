package notification

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/brewery-notify/internal/middleware"
	"github.com/jwalitptl/brewery-notify/internal/model"
	notificationService "github.com/jwalitptl/brewery-notify/internal/service/notification"
	apperrors "github.com/jwalitptl/brewery-notify/pkg/errors"
)

const maxCreateBody = 8 << 10

type StreamConfig struct {
	InitialBatch   int
	StatsInterval  time.Duration
	HeartbeatEvery time.Duration
}

// Handler serves the backend side of the notification API: the REST resource
// and the event stream the proxy relays.
type Handler struct {
	service notificationService.Service
	stream  StreamConfig
	logger  zerolog.Logger
}

func NewHandler(service notificationService.Service, stream StreamConfig, logger zerolog.Logger) *Handler {
	if stream.InitialBatch <= 0 {
		stream.InitialBatch = 10
	}
	return &Handler{
		service: service,
		stream:  stream,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.ListNotifications)
		notifications.GET("/stats", h.GetStats)
		notifications.GET("/stream", h.Stream)
		notifications.POST("", middleware.SizeLimit(maxCreateBody), h.CreateNotification)
		notifications.PATCH("/read-all", h.MarkAllAsRead)
		notifications.PATCH("/:id/read", h.MarkAsRead)
	}
}

func (h *Handler) ListNotifications(c *gin.Context) {
	filter := model.NotificationFilter{Size: 10}
	if err := c.ShouldBindQuery(&filter); err != nil {
		_ = c.Error(apperrors.NewBadRequest("invalid query parameters", err))
		return
	}

	page, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) CreateNotification(c *gin.Context) {
	var req model.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequest("invalid request body", err))
		return
	}

	n, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

func (h *Handler) MarkAsRead(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(apperrors.NewBadRequest("invalid notification ID", err))
		return
	}

	n, err := h.service.MarkRead(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) MarkAllAsRead(c *gin.Context) {
	if err := h.service.MarkAllRead(c.Request.Context()); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Stream sends connected, the most recent notifications and the current
// counters, then relays hub events until the client leaves. Subscribing
// before the snapshot means nothing created in between is missed.
func (h *Handler) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	events, unsubscribe := h.service.Subscribe()
	defer unsubscribe()

	recent, err := h.service.Recent(ctx, h.stream.InitialBatch)
	if err != nil {
		_ = c.Error(err)
		return
	}
	stats, err := h.service.Stats(ctx)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	c.SSEvent(model.EventConnected, "connected")
	c.SSEvent(model.EventInitialNotifications, recent)
	c.SSEvent(model.EventStatsUpdate, stats)
	c.Writer.Flush()

	h.logger.Debug().Str("request_id", c.GetString(middleware.ContextRequestID)).Msg("stream subscriber joined")

	heartbeat, stopHeartbeat := newTicker(h.stream.HeartbeatEvery)
	defer stopHeartbeat()
	statsTick, stopStats := newTicker(h.stream.StatsInterval)
	defer stopStats()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug().Msg("stream subscriber left")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(ev.Name, ev.Data)
		case <-heartbeat:
			if _, err := c.Writer.WriteString(": ping\n\n"); err != nil {
				return
			}
		case <-statsTick:
			stats, err := h.service.Stats(ctx)
			if err != nil {
				h.logger.Warn().Err(err).Msg("periodic stats failed")
				continue
			}
			c.SSEvent(model.EventStatsUpdate, stats)
		}
		c.Writer.Flush()
	}
}

// newTicker returns a ticker channel and its stop func. For d <= 0 the
// channel is nil and never fires.
func newTicker(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
