package app

import (
	"context"

	"recruitcrm/api/internal/notify"
	"recruitcrm/api/internal/store"
)

const notificationListLimit = 50

func (s *Service) ListNotifications(ctx context.Context, userID string) ([]store.Notification, int, error) {
	items, err := s.store.ListNotifications(ctx, userID, notificationListLimit)
	if err != nil {
		return nil, 0, upstreamError("LIST_FAILED", err)
	}
	if items == nil {
		items = []store.Notification{}
	}
	unread, err := s.store.UnreadNotificationCount(ctx, userID)
	if err != nil {
		return nil, 0, upstreamError("LIST_FAILED", err)
	}
	return items, unread, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	count, err := s.store.UnreadNotificationCount(ctx, userID)
	if err != nil {
		return 0, upstreamError("COUNT_FAILED", err)
	}
	return count, nil
}

func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID string) error {
	ok, err := s.store.MarkNotificationRead(ctx, userID, notificationID)
	if err != nil {
		return upstreamError("UPDATE_FAILED", err)
	}
	if !ok {
		return errNotificationGone
	}
	return nil
}

func (s *Service) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, upstreamError("UPDATE_FAILED", err)
	}
	return n, nil
}

// SubscribeNotifications opens the live event feed for userID.
func (s *Service) SubscribeNotifications(ctx context.Context, userID string) (<-chan notify.Event, error) {
	if s.notify == nil {
		return nil, notify.ErrLiveUnavailable
	}
	return s.notify.Subscribe(ctx, userID)
}
