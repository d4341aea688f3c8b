package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"campuspay/internal/notification"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *notification.Notification) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*notification.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID, userID int64, at time.Time) error
}

const (
	deliveryTimeout = 5 * time.Second
	defaultPageSize = 50
)

type Service struct {
	repo NotificationRepository
}

func NewService(repo NotificationRepository) *Service {
	return &Service{repo: repo}
}

// Notify stores a notification for later delivery. It is best effort: the caller's context
// cancellation does not abort it and failures are only logged.
func (s *Service) Notify(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
	defer cancel()

	if err := s.repo.Create(ctx, n); err != nil {
		log.Printf("NotificationService: failed to store %q for user %d: %v", n.Title, n.UserID, err)
		return err
	}
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID int64) ([]*notification.Notification, error) {
	return s.repo.ListByUser(ctx, userID, defaultPageSize)
}

func (s *Service) MarkRead(ctx context.Context, userID int64, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, userID, time.Now())
}
