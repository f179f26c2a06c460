package notification

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/brewery-notify/internal/model"
	"github.com/jwalitptl/brewery-notify/pkg/metrics"
)

// API is the backend REST surface the client and pager depend on.
type API interface {
	ListNotifications(ctx context.Context, page, size int, unreadOnly bool) (*model.NotificationPage, error)
	Stats(ctx context.Context) (*model.NotificationStats, error)
	MarkAsRead(ctx context.Context, id int64) (*model.Notification, error)
	MarkAllAsRead(ctx context.Context) error
}

const (
	actionMarkRead    = "mark_read"
	actionMarkAllRead = "mark_all_read"
)

// actions runs the optimistic mutations shared by the live client and the
// pager against a common store.
type actions struct {
	api     API
	store   *Store
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// markAsRead flips id to read locally, confirms with the backend and rolls
// back if the backend refuses. A second call for an id already in flight is
// a no-op.
func (a *actions) markAsRead(ctx context.Context, id int64) error {
	if !a.store.beginMarking(id) {
		a.logger.Debug().Int64("notification_id", id).Msg("mark as read already in flight")
		return nil
	}
	defer a.store.endMarking(id)

	snap := a.store.markReadLocal(id, a.now())

	updated, err := a.api.MarkAsRead(ctx, id)
	if err != nil {
		a.store.rollback(snap)
		a.metrics.ClientMutations.WithLabelValues(actionMarkRead, "error").Inc()
		a.logger.Error().Err(err).Int64("notification_id", id).Msg("failed to mark notification as read")
		return err
	}

	if updated != nil {
		a.store.Replace(*updated)
	}
	a.metrics.ClientMutations.WithLabelValues(actionMarkRead, "ok").Inc()
	return nil
}

func (a *actions) markAllAsRead(ctx context.Context) error {
	snap := a.store.markAllLocal(a.now())

	if err := a.api.MarkAllAsRead(ctx); err != nil {
		a.store.rollback(snap)
		a.metrics.ClientMutations.WithLabelValues(actionMarkAllRead, "error").Inc()
		a.logger.Error().Err(err).Msg("failed to mark all notifications as read")
		return err
	}

	a.metrics.ClientMutations.WithLabelValues(actionMarkAllRead, "ok").Inc()
	a.logger.Debug().Int("marked", len(snap.prev)).Msg("marked all notifications as read")
	return nil
}
