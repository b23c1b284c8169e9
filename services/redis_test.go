package services

import (
	"context"
	"os"
	"testing"

	"sportsocial/db"
	"sportsocial/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Тесты ниже идут против живого redis: REDIS_ADDR=localhost:6379 go test ./services/
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCounterServiceIncrementAndFloor(t *testing.T) {
	setupTestDB(t)
	client := setupTestRedis(t)
	ctx := context.Background()
	counters := NewCounterService(client)
	userID := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, counters.getCounterKey(userID, CounterTypeUnreadNotifications)) })

	require.NoError(t, counters.SetCounterValue(ctx, userID, CounterTypeUnreadNotifications, 1))

	n, ok, err := counters.IncrementCounter(ctx, userID, CounterTypeUnreadNotifications, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	n, ok, err = counters.IncrementCounter(ctx, userID, CounterTypeUnreadNotifications, -5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(0), n)
}

func TestCounterServiceIncrementSkipsMissingKey(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	counters := NewCounterService(client)
	userID := uuid.NewString()
	key := counters.getCounterKey(userID, CounterTypeUnreadNotifications)
	t.Cleanup(func() { client.Del(ctx, key) })

	n, ok, err := counters.IncrementCounter(ctx, userID, CounterTypeUnreadNotifications, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, n)

	exists, err := client.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestUnreadCountMatchesDBWhenCounterKeyIsMissing(t *testing.T) {
	setupTestDB(t)
	client := setupTestRedis(t)
	ctx := context.Background()
	counters := NewCounterService(client)
	recipient := createProfile(t)
	actor := createProfile(t)
	key := counters.getCounterKey(recipient.UserID, CounterTypeUnreadNotifications)
	client.Del(ctx, key)
	t.Cleanup(func() { client.Del(ctx, key) })

	seedNotifications(t, recipient.UserID, []models.UserProfile{
		createProfile(t), createProfile(t), createProfile(t), createProfile(t), createProfile(t),
	})

	dispatcher := NewDispatcher(nil, nil, nil, WithCounters(counters))
	t.Cleanup(dispatcher.Wait)

	_, err := dispatcher.CreateNotification(ctx, FollowEvent{Follower: actor.UserID, Followee: recipient.UserID})
	require.NoError(t, err)
	dispatcher.Wait()

	unread, err := dispatcher.UnreadCount(ctx, recipient.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(6), unread)

	// ключ уже есть: следующее уведомление видно сразу после ответа
	_, err = dispatcher.CreateNotification(ctx, LikeEvent{Liker: actor.UserID, PostAuthor: recipient.UserID, PostID: "p1"})
	require.NoError(t, err)
	unread, err = dispatcher.UnreadCount(ctx, recipient.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), unread)
}

func TestCounterServiceReconcilesMissingKey(t *testing.T) {
	setupTestDB(t)
	client := setupTestRedis(t)
	ctx := context.Background()
	counters := NewCounterService(client)
	alice := createProfile(t)
	bob := createProfile(t)
	t.Cleanup(func() { client.Del(ctx, counters.getCounterKey(alice.UserID, CounterTypeUnreadNotifications)) })

	for i := 0; i < 3; i++ {
		require.NoError(t, db.ORM.Create(&models.Notification{
			ID:          uuid.NewString(),
			RecipientID: alice.UserID,
			ActorID:     bob.UserID,
			Type:        models.NotificationFollow,
			IsRead:      i == 0,
		}).Error)
	}

	n, err := counters.GetCounter(ctx, alice.UserID, CounterTypeUnreadNotifications)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSharedPresenceMirrorsMembership(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	userID := uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, presenceKey(userID)) })

	first := NewSharedPresence(NewPresenceRegistry(staticDecoder{}), client, "instance-a")
	second := NewSharedPresence(NewPresenceRegistry(staticDecoder{}), client, "instance-b")

	assert.False(t, second.IsOnline(ctx, userID))

	require.Equal(t, userID, first.OnConnect(ctx, "conn-1", userID, &fakeSender{}))
	assert.True(t, second.IsOnline(ctx, userID))
	assert.Zero(t, second.EmitToUser(userID, "ping", nil))

	first.OnDisconnect(ctx, "conn-1")
	assert.False(t, second.IsOnline(ctx, userID))
}
