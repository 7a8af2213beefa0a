// Package notify creates in-app notifications and fans them out to live
// subscribers over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"recruitcrm/api/internal/logger"
	"recruitcrm/api/internal/store"
	"recruitcrm/api/internal/util"
)

// ErrLiveUnavailable is returned by Subscribe when no Redis client is configured.
var ErrLiveUnavailable = errors.New("live notifications unavailable")

const (
	maxTitleLength   = 200
	maxMessageLength = 2000
)

type Store interface {
	InsertNotification(context.Context, store.Notification) (store.Notification, error)
	UnreadNotificationCount(context.Context, string) (int, error)
}

// Event is the payload published for each new notification.
type Event struct {
	Notification store.Notification `json:"notification"`
	Unread       int                `json:"unread"`
}

type Hub struct {
	store  Store
	redis  *redis.Client
	policy *bluemonday.Policy
	logger *zap.Logger
}

// NewHub wires the notification store. client may be nil, in which case
// notifications are still persisted but nothing is published.
func NewHub(notificationStore Store, client *redis.Client, log *zap.Logger) *Hub {
	return &Hub{
		store:  notificationStore,
		redis:  client,
		policy: bluemonday.StrictPolicy(),
		logger: logger.OrNop(log),
	}
}

func Channel(userID string) string {
	return "notifications:" + userID
}

// Live reports whether Subscribe can succeed.
func (h *Hub) Live() bool {
	return h.redis != nil
}

// Create persists a notification for userID and publishes it. Markup is
// stripped from title and message. Publish failures are logged, not returned.
func (h *Hub) Create(ctx context.Context, userID, title, message, link string) (store.Notification, error) {
	if strings.TrimSpace(userID) == "" {
		return store.Notification{}, errors.New("notification user is required")
	}
	item := store.Notification{
		ID:      util.NewID("ntf"),
		UserID:  userID,
		Title:   h.clean(title, maxTitleLength),
		Message: h.clean(message, maxMessageLength),
		Link:    strings.TrimSpace(link),
	}
	if item.Title == "" {
		return store.Notification{}, errors.New("notification title is required")
	}

	created, err := h.store.InsertNotification(ctx, item)
	if err != nil {
		return store.Notification{}, err
	}
	if err := h.publish(ctx, created); err != nil {
		h.logger.Warn("publish notification", zap.String("user_id", userID), zap.Error(err))
	}
	return created, nil
}

func (h *Hub) publish(ctx context.Context, item store.Notification) error {
	if h.redis == nil {
		return nil
	}
	unread, err := h.store.UnreadNotificationCount(ctx, item.UserID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(Event{Notification: item, Unread: unread})
	if err != nil {
		return fmt.Errorf("encode notification event: %w", err)
	}
	if err := h.redis.Publish(ctx, Channel(item.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification event: %w", err)
	}
	return nil
}

// Subscribe streams events for userID until ctx is done. The returned channel
// is closed when the subscription ends.
func (h *Hub) Subscribe(ctx context.Context, userID string) (<-chan Event, error) {
	if h.redis == nil {
		return nil, ErrLiveUnavailable
	}
	sub := h.redis.Subscribe(ctx, Channel(userID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe notifications: %w", err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					h.logger.Warn("decode notification event", zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (h *Hub) clean(value string, limit int) string {
	cleaned := html.UnescapeString(h.policy.Sanitize(value))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	runes := []rune(cleaned)
	if len(runes) > limit {
		cleaned = string(runes[:limit])
	}
	return cleaned
}
