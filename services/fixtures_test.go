package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sportsocial/db"
	"sportsocial/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// setupTestDB - отдельная sqlite база на каждый тест
func setupTestDB(t *testing.T) {
	t.Helper()
	database, err := db.ConnectSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := database.DB(); err == nil {
			_ = sqlDB.Close()
		}
		db.ORM = nil
	})
}

func createProfile(t *testing.T) models.UserProfile {
	t.Helper()
	profile := models.UserProfile{
		UserID:    uuid.NewString(),
		Nickname:  gofakeit.FirstName() + gofakeit.Numerify("###"),
		AvatarURL: "https://cdn.sportsocial.test/avatars/" + gofakeit.Numerify("####") + ".png",
		Level:     gofakeit.RandomString([]string{"beginner", "amateur", "pro"}),
	}
	require.NoError(t, db.ORM.Create(&profile).Error)
	return profile
}

func createPost(t *testing.T, userID string, visibility models.Visibility, sector string, createdAt time.Time) models.Post {
	t.Helper()
	post := models.Post{
		UserID:     userID,
		Content:    fmt.Sprintf("%s training in %s", gofakeit.FirstName(), gofakeit.City()),
		Visibility: visibility,
		Sector:     sector,
		CreatedAt:  createdAt,
	}
	require.NoError(t, db.ORM.Create(&post).Error)
	return post
}

func follow(t *testing.T, followerID, followingID string) {
	t.Helper()
	require.NoError(t, db.ORM.Create(&models.UserFollow{FollowerID: followerID, FollowingID: followingID}).Error)
}

func loadPost(t *testing.T, postID string) models.Post {
	t.Helper()
	var post models.Post
	require.NoError(t, db.ORM.Unscoped().Where("id = ?", postID).First(&post).Error)
	return post
}

// staticDecoder - токен равен userID, "bad" и пустой токен невалидны
type staticDecoder struct{}

func (staticDecoder) Decode(token string) (Identity, error) {
	if token == "" || token == "bad" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: token}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	msgs [][]byte
	err  error
}

func (s *fakeSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, data)
	return nil
}

func (s *fakeSender) Messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.msgs...)
}

type fakePush struct {
	mu      sync.Mutex
	calls   [][]string
	badToks map[string]bool
}

func (p *fakePush) SendMulticast(ctx context.Context, tokens []string, msg PushMessage) (*PushBatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]string(nil), tokens...))
	result := &PushBatchResult{}
	for _, tok := range tokens {
		if p.badToks[tok] {
			result.FailureCount++
			result.Responses = append(result.Responses, PushTokenResult{Token: tok, Error: errors.New("unregistered")})
			continue
		}
		result.SuccessCount++
		result.Responses = append(result.Responses, PushTokenResult{Token: tok})
	}
	return result, nil
}

func (p *fakePush) Calls() [][]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]string(nil), p.calls...)
}

// blockingPush висит до отмены контекста доставки
type blockingPush struct {
	calls atomic.Int32
}

func (p *blockingPush) SendMulticast(ctx context.Context, tokens []string, msg PushMessage) (*PushBatchResult, error) {
	p.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingPush struct{}

func (failingPush) SendMulticast(ctx context.Context, tokens []string, msg PushMessage) (*PushBatchResult, error) {
	return nil, errors.New("push provider unavailable")
}

// fakeBus запоминает опубликованные события; с publishErr публикация падает
type fakeBus struct {
	mu         sync.Mutex
	published  []models.NotificationView
	publishErr error
}

func (b *fakeBus) Connected() bool { return true }

func (b *fakeBus) Publish(ctx context.Context, view models.NotificationView) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, view)
	return nil
}

func (b *fakeBus) Published() []models.NotificationView {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.NotificationView(nil), b.published...)
}

// recordingNotifier запоминает события и ничего не сохраняет
type recordingNotifier struct {
	mu     sync.Mutex
	events []NotificationEvent
}

func (n *recordingNotifier) CreateNotification(ctx context.Context, event NotificationEvent) (*models.Notification, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	notification := event.toNotification()
	return &notification, nil
}

func (n *recordingNotifier) Events() []NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]NotificationEvent(nil), n.events...)
}

func newTestDispatcher(t *testing.T, presence Presence, push PushGateway) *Dispatcher {
	t.Helper()
	d := NewDispatcher(presence, push, NewDeviceService(), WithFanoutTimeout(2*time.Second))
	t.Cleanup(d.Wait)
	return d
}
