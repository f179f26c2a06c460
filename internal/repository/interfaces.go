package repository

import (
	"context"
	"time"

	"github.com/jwalitptl/brewery-notify/internal/model"
)

type (
	// NotificationRepository stores one user's notifications, newest first.
	NotificationRepository interface {
		Create(ctx context.Context, n *model.Notification) error
		Get(ctx context.Context, id int64) (*model.Notification, error)
		List(ctx context.Context, filter model.NotificationFilter) (*model.NotificationPage, error)
		Recent(ctx context.Context, limit int) ([]model.Notification, error)
		Stats(ctx context.Context) (model.NotificationStats, error)
		MarkRead(ctx context.Context, id int64, at time.Time) (*model.Notification, error)
		MarkAllRead(ctx context.Context, at time.Time) (int, error)
	}
)
