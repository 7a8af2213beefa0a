package notify

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recruitcrm/api/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	items    []store.Notification
	countErr error
}

func (f *fakeStore) InsertNotification(_ context.Context, item store.Notification) (store.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.CreatedAt = time.Now().UTC()
	f.items = append(f.items, item)
	return item, nil
}

func (f *fakeStore) UnreadNotificationCount(_ context.Context, userID string) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, item := range f.items {
		if item.UserID == userID && !item.IsRead {
			count++
		}
	}
	return count, nil
}

func TestCreateStripsMarkup(t *testing.T) {
	fs := &fakeStore{}
	hub := NewHub(fs, nil, nil)

	item, err := hub.Create(context.Background(), "usr_1", "<b>Candidate</b> added", "<script>alert(1)</script>Grace  <i>Hopper</i>", "/candidates/1")
	require.NoError(t, err)
	assert.Equal(t, "Candidate added", item.Title)
	assert.Equal(t, "Grace Hopper", item.Message)
	assert.Equal(t, "/candidates/1", item.Link)
	assert.NotEmpty(t, item.ID)
	assert.False(t, hub.Live())
}

func TestCreateValidates(t *testing.T) {
	hub := NewHub(&fakeStore{}, nil, nil)
	_, err := hub.Create(context.Background(), "", "title", "", "")
	assert.Error(t, err)
	_, err = hub.Create(context.Background(), "usr_1", "<p></p>", "", "")
	assert.Error(t, err)
}

func TestSubscribeWithoutRedis(t *testing.T) {
	hub := NewHub(&fakeStore{}, nil, nil)
	_, err := hub.Subscribe(context.Background(), "usr_1")
	assert.ErrorIs(t, err, ErrLiveUnavailable)
}

func TestCreatePublishesToSubscriber(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(&fakeStore{}, client, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := hub.Subscribe(ctx, "usr_1")
	require.NoError(t, err)

	_, err = hub.Create(context.Background(), "usr_1", "Candidate added", "Grace Hopper", "")
	require.NoError(t, err)

	select {
	case event := <-events:
		assert.Equal(t, "Candidate added", event.Notification.Title)
		assert.Equal(t, 1, event.Unread)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			// A late event is fine; the channel must still close.
			for range events {
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not close after cancel")
	}
}

func TestPublishFailureDoesNotFailCreate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fs := &fakeStore{countErr: errors.New("count down")}
	hub := NewHub(fs, client, nil)
	_, err := hub.Create(context.Background(), "usr_1", "Hello", "", "")
	require.NoError(t, err)
	assert.Len(t, fs.items, 1)
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSSE(&buf, "unread", map[string]int{"count": 3}))
	assert.Equal(t, "event: unread\ndata: {\"count\":3}\n\n", buf.String())
}
