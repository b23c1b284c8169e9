package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sportsocial/db"
	"sportsocial/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleLikeTwice(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	author := createProfile(t)
	liker := createProfile(t)
	post := createPost(t, author.UserID, models.VisibilityPublic, "football", time.Now())
	notifier := &recordingNotifier{}
	ledger := NewEngagementLedger(notifier, nil)

	liked, err := ledger.ToggleLike(ctx, post.ID, liker.UserID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Equal(t, int64(1), loadPost(t, post.ID).LikesCount)

	liked, err = ledger.ToggleLike(ctx, post.ID, liker.UserID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, int64(0), loadPost(t, post.ID).LikesCount)

	var rows int64
	require.NoError(t, db.ORM.Model(&models.Like{}).Where("post_id = ?", post.ID).Count(&rows).Error)
	assert.Equal(t, int64(0), rows)

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, LikeEvent{Liker: liker.UserID, PostAuthor: author.UserID, PostID: post.ID}, events[0])
}

func TestToggleLikeOwnPostDoesNotNotify(t *testing.T) {
	setupTestDB(t)
	author := createProfile(t)
	post := createPost(t, author.UserID, models.VisibilityPublic, "football", time.Now())
	notifier := &recordingNotifier{}

	liked, err := NewEngagementLedger(notifier, nil).ToggleLike(context.Background(), post.ID, author.UserID)
	require.NoError(t, err)
	assert.True(t, liked)
	assert.Empty(t, notifier.Events())
}

func TestToggleLikeMissingPost(t *testing.T) {
	setupTestDB(t)
	user := createProfile(t)

	_, err := NewEngagementLedger(nil, nil).ToggleLike(context.Background(), "missing", user.UserID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// Параллельные лайки одного пользователя: уникальный индекс пропускает ровно одну запись
func TestConcurrentLikesKeepSingleRow(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	author := createProfile(t)
	liker := createProfile(t)
	post := createPost(t, author.UserID, models.VisibilityPublic, "football", time.Now())
	ledger := NewEngagementLedger(nil, nil)

	const workers = 8
	var (
		wg        sync.WaitGroup
		start     = make(chan struct{})
		mu        sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := ledger.ApplyEngagement(ctx, EngagementEvent{Kind: EngagementLike, PostID: post.ID, UserID: liker.UserID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, conflicts)

	var rows int64
	require.NoError(t, db.ORM.Model(&models.Like{}).Where("post_id = ? AND user_id = ?", post.ID, liker.UserID).Count(&rows).Error)
	assert.Equal(t, int64(1), rows)
	assert.Equal(t, int64(1), loadPost(t, post.ID).LikesCount)
}

func TestSharePost(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	author := createProfile(t)
	sharer := createProfile(t)
	original := createPost(t, author.UserID, models.VisibilityFollowers, "basketball", time.Now())
	notifier := &recordingNotifier{}
	ledger := NewEngagementLedger(notifier, nil)

	description := "look at this"
	share, err := ledger.SharePost(ctx, original.ID, sharer.UserID, &description)
	require.NoError(t, err)
	require.NotEmpty(t, share.SharedPostID)

	assert.Equal(t, int64(1), loadPost(t, original.ID).SharesCount)

	shared := loadPost(t, share.SharedPostID)
	require.NotNil(t, shared.OriginalPostID)
	assert.Equal(t, original.ID, *shared.OriginalPostID)
	assert.Equal(t, "basketball", shared.Sector)
	assert.Equal(t, models.VisibilityPublic, shared.Visibility)
	assert.Equal(t, sharer.UserID, shared.UserID)
	assert.Equal(t, description, shared.Content)

	_, err = ledger.SharePost(ctx, original.ID, sharer.UserID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), loadPost(t, original.ID).SharesCount)

	var posts int64
	require.NoError(t, db.ORM.Model(&models.Post{}).Where("original_post_id = ?", original.ID).Count(&posts).Error)
	assert.Equal(t, int64(2), posts)

	events := notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, ShareEvent{Sharer: sharer.UserID, PostAuthor: author.UserID, PostID: original.ID}, events[0])

	_, err = ledger.SharePost(ctx, "missing", sharer.UserID, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCommentsLifecycle(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	author := createProfile(t)
	commenter := createProfile(t)
	post := createPost(t, author.UserID, models.VisibilityPublic, "tennis", time.Now())
	notifier := &recordingNotifier{}
	ledger := NewEngagementLedger(notifier, nil)

	_, err := ledger.AddComment(ctx, post.ID, commenter.UserID, "   ")
	assert.ErrorIs(t, err, ErrValidation)

	first, err := ledger.AddComment(ctx, post.ID, commenter.UserID, "great serve")
	require.NoError(t, err)
	_, err = ledger.AddComment(ctx, post.ID, author.UserID, "thanks")
	require.NoError(t, err)
	assert.Equal(t, int64(2), loadPost(t, post.ID).CommentsCount)

	events := notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, CommentEvent{Commenter: commenter.UserID, PostAuthor: author.UserID, PostID: post.ID, CommentID: first.ID}, events[0])

	page, err := ledger.ListComments(ctx, post.ID, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, commenter.View(), page.Data[0].Author)

	err = ledger.DeleteComment(ctx, first.ID, author.UserID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, ledger.DeleteComment(ctx, first.ID, commenter.UserID))
	assert.Equal(t, int64(1), loadPost(t, post.ID).CommentsCount)

	page, err = ledger.ListComments(ctx, post.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, page.Data, 1)
}

func TestCreatePostNotifiesFollowersOnly(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	a := createProfile(t)
	b := createProfile(t)
	c := createProfile(t)
	d := createProfile(t)
	follow(t, b.UserID, a.UserID)
	follow(t, c.UserID, a.UserID)
	follow(t, a.UserID, d.UserID)

	dispatcher := newTestDispatcher(t, nil, nil)
	ledger := NewEngagementLedger(dispatcher, NewSocialService(dispatcher))

	post, err := ledger.CreatePost(ctx, a.UserID, CreatePostInput{Content: "new PB on 10k", Sector: "running"})
	require.NoError(t, err)
	assert.Equal(t, models.VisibilityPublic, post.Visibility)

	var recipients []string
	require.NoError(t, db.ORM.Model(&models.Notification{}).
		Where("type = ? AND entity_id = ?", models.NotificationNewPost, post.ID).
		Pluck("recipient_id", &recipients).Error)
	assert.ElementsMatch(t, []string{b.UserID, c.UserID}, recipients)
}

func TestCreatePostValidation(t *testing.T) {
	setupTestDB(t)
	author := createProfile(t)
	ledger := NewEngagementLedger(nil, nil)

	_, err := ledger.CreatePost(context.Background(), author.UserID, CreatePostInput{Content: ""})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = ledger.CreatePost(context.Background(), author.UserID, CreatePostInput{Content: "x", Visibility: "secret"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDeletePostOwnerOnly(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	author := createProfile(t)
	other := createProfile(t)
	post := createPost(t, author.UserID, models.VisibilityPublic, "football", time.Now())
	ledger := NewEngagementLedger(nil, nil)

	assert.ErrorIs(t, ledger.DeletePost(ctx, post.ID, other.UserID), ErrNotFound)
	require.NoError(t, ledger.DeletePost(ctx, post.ID, author.UserID))

	_, err := ledger.ToggleLike(ctx, post.ID, other.UserID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatePost(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	author := createProfile(t)
	other := createProfile(t)
	ledger := NewEngagementLedger(nil, nil)
	post, err := ledger.CreatePost(ctx, author.UserID, CreatePostInput{Content: "morning laps", Tags: []string{"swim"}, Sector: "swimming"})
	require.NoError(t, err)

	content := "evening laps"
	_, err = ledger.UpdatePost(ctx, post.ID, other.UserID, UpdatePostInput{Content: &content})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = ledger.UpdatePost(ctx, "missing", author.UserID, UpdatePostInput{Content: &content})
	assert.ErrorIs(t, err, ErrNotFound)

	blank := "  "
	_, err = ledger.UpdatePost(ctx, post.ID, author.UserID, UpdatePostInput{Content: &blank})
	assert.ErrorIs(t, err, ErrValidation)
	secret := models.Visibility("secret")
	_, err = ledger.UpdatePost(ctx, post.ID, author.UserID, UpdatePostInput{Visibility: &secret})
	assert.ErrorIs(t, err, ErrValidation)

	followers := models.VisibilityFollowers
	tags := []string{"#Pool", "night"}
	updated, err := ledger.UpdatePost(ctx, post.ID, author.UserID, UpdatePostInput{Content: &content, Visibility: &followers, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, "evening laps", updated.Content)
	assert.Equal(t, models.VisibilityFollowers, updated.Visibility)
	assert.Equal(t, "swimming", updated.Sector)
	assert.ElementsMatch(t, []string{"pool", "night"}, updated.TagNames())

	// пустой ввод ничего не меняет
	same, err := ledger.UpdatePost(ctx, post.ID, author.UserID, UpdatePostInput{})
	require.NoError(t, err)
	assert.Equal(t, "evening laps", same.Content)
	assert.Len(t, same.TagNames(), 2)

	require.NoError(t, ledger.DeletePost(ctx, post.ID, author.UserID))
	_, err = ledger.UpdatePost(ctx, post.ID, author.UserID, UpdatePostInput{Content: &content})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconcilePostCounters(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	author := createProfile(t)
	fan := createProfile(t)
	post := createPost(t, author.UserID, models.VisibilityPublic, "football", time.Now())
	ledger := NewEngagementLedger(nil, nil)

	_, err := ledger.ToggleLike(ctx, post.ID, fan.UserID)
	require.NoError(t, err)
	_, err = ledger.AddComment(ctx, post.ID, fan.UserID, "nice")
	require.NoError(t, err)

	require.NoError(t, db.ORM.Model(&models.Post{}).Where("id = ?", post.ID).
		UpdateColumns(map[string]interface{}{"likes_count": 42, "comments_count": 0, "shares_count": 7}).Error)

	reconciled, err := ledger.ReconcilePostCounters(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), reconciled.LikesCount)
	assert.Equal(t, int64(1), reconciled.CommentsCount)
	assert.Equal(t, int64(0), reconciled.SharesCount)
}

func TestUnlikeFloorsCounterAtZero(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	author := createProfile(t)
	fan := createProfile(t)
	post := createPost(t, author.UserID, models.VisibilityPublic, "football", time.Now())
	ledger := NewEngagementLedger(nil, nil)

	_, err := ledger.ToggleLike(ctx, post.ID, fan.UserID)
	require.NoError(t, err)
	require.NoError(t, db.ORM.Model(&models.Post{}).Where("id = ?", post.ID).UpdateColumn("likes_count", 0).Error)

	liked, err := ledger.ToggleLike(ctx, post.ID, fan.UserID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, int64(0), loadPost(t, post.ID).LikesCount)
}
