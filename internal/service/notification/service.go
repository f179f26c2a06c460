package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/brewery-notify/internal/model"
	"github.com/jwalitptl/brewery-notify/internal/repository"
	apperrors "github.com/jwalitptl/brewery-notify/pkg/errors"
)

type Service interface {
	Create(ctx context.Context, req *model.CreateNotificationRequest) (*model.Notification, error)
	List(ctx context.Context, filter model.NotificationFilter) (*model.NotificationPage, error)
	Recent(ctx context.Context, limit int) ([]model.Notification, error)
	Stats(ctx context.Context) (model.NotificationStats, error)
	MarkRead(ctx context.Context, id int64) (*model.Notification, error)
	MarkAllRead(ctx context.Context) error
	Subscribe() (<-chan Event, func())
}

type service struct {
	repo     repository.NotificationRepository
	hub      *Hub
	validate *validator.Validate
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo repository.NotificationRepository, hub *Hub, logger zerolog.Logger) Service {
	return &service{
		repo:     repo,
		hub:      hub,
		validate: validator.New(),
		logger:   logger.With().Str("component", "notification_service").Logger(),
		now:      time.Now,
	}
}

func (s *service) Create(ctx context.Context, req *model.CreateNotificationRequest) (*model.Notification, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	n := &model.Notification{
		Type:            req.Type,
		Message:         req.Message,
		RelatedEntityID: req.RelatedEntityID,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	s.logger.Info().Int64("notification_id", n.ID).Str("type", string(n.Type)).Msg("notification created")
	s.hub.Publish(Event{Name: model.EventNotification, Data: *n})
	s.publishStats(ctx)
	return n, nil
}

func (s *service) validateRequest(req *model.CreateNotificationRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return apperrors.NewBadRequest("invalid notification", err)
	}
	if !req.Type.Valid() {
		return apperrors.NewBadRequest(fmt.Sprintf("unknown notification type %q", req.Type), nil)
	}
	return nil
}

func (s *service) List(ctx context.Context, filter model.NotificationFilter) (*model.NotificationPage, error) {
	if err := s.validate.Struct(filter); err != nil {
		return nil, apperrors.NewBadRequest("invalid page request", err)
	}
	return s.repo.List(ctx, filter)
}

func (s *service) Recent(ctx context.Context, limit int) ([]model.Notification, error) {
	return s.repo.Recent(ctx, limit)
}

func (s *service) Stats(ctx context.Context) (model.NotificationStats, error) {
	return s.repo.Stats(ctx)
}

func (s *service) MarkRead(ctx context.Context, id int64) (*model.Notification, error) {
	n, err := s.repo.MarkRead(ctx, id, s.now())
	if err != nil {
		return nil, err
	}
	s.publishStats(ctx)
	return n, nil
}

func (s *service) MarkAllRead(ctx context.Context) error {
	marked, err := s.repo.MarkAllRead(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to mark all notifications read: %w", err)
	}
	s.logger.Debug().Int("marked", marked).Msg("marked all notifications read")
	s.publishStats(ctx)
	return nil
}

func (s *service) Subscribe() (<-chan Event, func()) {
	return s.hub.Subscribe()
}

func (s *service) publishStats(ctx context.Context) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to compute stats for stream")
		return
	}
	s.hub.Publish(Event{Name: model.EventStatsUpdate, Data: stats})
}
