package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jwalitptl/brewery-notify/internal/model"
	"github.com/jwalitptl/brewery-notify/internal/repository"
	apperrors "github.com/jwalitptl/brewery-notify/pkg/errors"
)

type notificationRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*model.Notification
	// order holds ids oldest first; ids only grow so it stays sorted.
	order []int64
}

func NewNotificationRepository() repository.NotificationRepository {
	return &notificationRepository{
		nextID: 1,
		byID:   make(map[int64]*model.Notification),
	}
}

func (r *notificationRepository) Create(_ context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n.ID = r.nextID
	r.nextID++
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	stored := *n
	r.byID[n.ID] = &stored
	r.order = append(r.order, n.ID)
	return nil
}

func (r *notificationRepository) Get(_ context.Context, id int64) (*model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NewNotFound("notification", fmt.Errorf("id %d", id))
	}
	out := *n
	return &out, nil
}

func (r *notificationRepository) List(_ context.Context, filter model.NotificationFilter) (*model.NotificationPage, error) {
	if filter.Size <= 0 {
		return nil, apperrors.NewBadRequest("size must be positive", nil)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]model.Notification, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		n := r.byID[r.order[i]]
		if filter.UnreadOnly && n.IsRead {
			continue
		}
		matched = append(matched, *n)
	}

	start := filter.Page * filter.Size
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.Size
	if end > len(matched) {
		end = len(matched)
	}

	return &model.NotificationPage{
		Content:       matched[start:end],
		TotalElements: len(matched),
		TotalPages:    (len(matched) + filter.Size - 1) / filter.Size,
		Number:        filter.Page,
		Size:          filter.Size,
	}, nil
}

func (r *notificationRepository) Recent(_ context.Context, limit int) ([]model.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Notification, 0, limit)
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *r.byID[r.order[i]])
	}
	return out, nil
}

func (r *notificationRepository) Stats(_ context.Context) (model.NotificationStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := model.NotificationStats{TotalCount: len(r.order)}
	for _, n := range r.byID {
		if !n.IsRead {
			stats.UnreadCount++
		}
	}
	return stats, nil
}

func (r *notificationRepository) MarkRead(_ context.Context, id int64, at time.Time) (*model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NewNotFound("notification", fmt.Errorf("id %d", id))
	}
	n.MarkRead(at)
	out := *n
	return &out, nil
}

func (r *notificationRepository) MarkAllRead(_ context.Context, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	marked := 0
	for _, n := range r.byID {
		if n.MarkRead(at) {
			marked++
		}
	}
	return marked, nil
}
