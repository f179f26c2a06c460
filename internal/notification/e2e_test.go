package notification_test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/brewery-notify/internal/handler/health"
	notificationHandler "github.com/jwalitptl/brewery-notify/internal/handler/notification"
	"github.com/jwalitptl/brewery-notify/internal/middleware"
	"github.com/jwalitptl/brewery-notify/internal/model"
	"github.com/jwalitptl/brewery-notify/internal/notification"
	"github.com/jwalitptl/brewery-notify/internal/proxy"
	"github.com/jwalitptl/brewery-notify/internal/repository/memory"
	"github.com/jwalitptl/brewery-notify/internal/restapi"
	"github.com/jwalitptl/brewery-notify/internal/router"
	notificationService "github.com/jwalitptl/brewery-notify/internal/service/notification"
	"github.com/jwalitptl/brewery-notify/pkg/metrics"
)

// TestEndToEnd runs the dev backend behind the proxy and drives both with the
// client and pager, the same path a browser session takes.
func TestEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	repo := memory.NewNotificationRepository()
	require.NoError(t, memory.Seed(ctx, repo, 4, time.Now()))
	svc := notificationService.NewService(repo, notificationService.NewHub(zerolog.Nop()), zerolog.Nop())

	be := gin.New()
	be.Use(middleware.ErrorHandler(zerolog.Nop()))
	notificationHandler.NewHandler(svc, notificationHandler.StreamConfig{InitialBatch: 10}, zerolog.Nop()).
		RegisterRoutes(be.Group(""))
	backend := httptest.NewServer(be)
	defer backend.Close()

	rest, err := proxy.NewRESTProxy(proxy.RESTConfig{
		BackendURL: backend.URL + "/notifications",
		Prefix:     "/api/notifications",
		Timeout:    time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	stream := proxy.NewStreamProxy(proxy.StreamConfig{BackendURL: backend.URL + "/notifications/stream"}, zerolog.Nop(), metrics.NewNop())
	healthH := health.NewHandler(health.ProbeFunc(func(context.Context) error { return nil }), zerolog.Nop())

	r := router.NewRouter(stream, rest, healthH, nil, router.RouterConfig{
		CORSConfig: middleware.DefaultCORSConfig(),
		Logger:     zerolog.Nop(),
	})
	r.Setup()
	front := httptest.NewServer(r.Engine())
	defer front.Close()

	api := restapi.NewClient(restapi.Config{BaseURL: front.URL + "/api/notifications"})
	client := notification.NewClient(api, &notification.HTTPTransport{URL: front.URL + "/api/notifications/stream"},
		notification.Options{ReconnectDelay: 10 * time.Millisecond, Logger: zerolog.Nop()})
	defer client.Dispose()

	require.NoError(t, client.Start(ctx))
	require.Eventually(t, func() bool {
		s := client.State()
		return s.Connected && len(s.Notifications) == 4
	}, 5*time.Second, 10*time.Millisecond)

	// Seed marks every third notification read: ids 1 and 4.
	assert.Equal(t, model.NotificationStats{UnreadCount: 2, TotalCount: 4}, client.State().Stats)

	_, err = svc.Create(ctx, &model.CreateNotificationRequest{
		Type:    model.NotificationLowStockAlert,
		Message: "Yeast below reorder point",
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s := client.State()
		return len(s.Notifications) == 5 && s.Stats.UnreadCount == 3
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(5), client.State().Notifications[0].ID)

	require.NoError(t, client.MarkAsRead(ctx, 5))
	got, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.True(t, got.IsRead)

	pager := notification.NewPager(api, notification.PagerOptions{
		PageSize: 1,
		Filter:   notification.FilterUnread,
		Logger:   zerolog.Nop(),
		Store:    client.Store(),
	})
	pager.Load(ctx)
	view := pager.View()
	require.Empty(t, view.Error)
	assert.Equal(t, 2, view.TotalItems)
	assert.Equal(t, 2, view.TotalPages)
	assert.True(t, view.HasNextPage)

	require.NoError(t, pager.MarkAllAsRead(ctx))
	require.Eventually(t, func() bool {
		return client.State().Stats.UnreadCount == 0
	}, 5*time.Second, 10*time.Millisecond)

	err = client.MarkAsRead(ctx, 99)
	require.Error(t, err)
}
