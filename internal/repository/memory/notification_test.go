package memory

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/brewery-notify/internal/model"
	apperrors "github.com/jwalitptl/brewery-notify/pkg/errors"
)

func TestNotificationRepository_ListNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository()
	require.NoError(t, Seed(ctx, repo, 12, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

	page, err := repo.List(ctx, model.NotificationFilter{Page: 0, Size: 5})
	require.NoError(t, err)
	assert.Equal(t, 12, page.TotalElements)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Content, 5)
	assert.Equal(t, int64(12), page.Content[0].ID)
	assert.True(t, page.Content[0].CreatedAt.After(page.Content[1].CreatedAt))

	last, err := repo.List(ctx, model.NotificationFilter{Page: 2, Size: 5})
	require.NoError(t, err)
	assert.Len(t, last.Content, 2)

	beyond, err := repo.List(ctx, model.NotificationFilter{Page: 9, Size: 5})
	require.NoError(t, err)
	assert.Empty(t, beyond.Content)
}

func TestNotificationRepository_UnreadOnlyAndStats(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository()
	require.NoError(t, Seed(ctx, repo, 9, time.Now()))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.NotificationStats{UnreadCount: 6, TotalCount: 9}, stats)

	page, err := repo.List(ctx, model.NotificationFilter{Size: 20, UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 6, page.TotalElements)
	for _, n := range page.Content {
		assert.False(t, n.IsRead)
	}
}

func TestNotificationRepository_MarkRead(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository()
	n := &model.Notification{Type: model.NotificationLowStockAlert, Message: "hops low"}
	require.NoError(t, repo.Create(ctx, n))

	at := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	got, err := repo.MarkRead(ctx, n.ID, at)
	require.NoError(t, err)
	assert.True(t, got.IsRead)
	assert.Equal(t, at, *got.ReadAt)

	again, err := repo.MarkRead(ctx, n.ID, at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, at, *again.ReadAt)

	_, err = repo.MarkRead(ctx, 404, at)
	assert.Equal(t, http.StatusNotFound, apperrors.Status(err))
}

func TestNotificationRepository_MarkAllRead(t *testing.T) {
	ctx := context.Background()
	repo := NewNotificationRepository()
	require.NoError(t, Seed(ctx, repo, 6, time.Now()))

	marked, err := repo.MarkAllRead(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 4, marked)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.UnreadCount)
	assert.Equal(t, 6, stats.TotalCount)
}
