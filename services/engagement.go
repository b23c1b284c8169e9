package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sportsocial/db"
	"sportsocial/models"
	"sportsocial/utils/log"

	"gorm.io/gorm"
)

const MAX_TAGS_PER_POST = 10

type EngagementKind string

const (
	EngagementLike    EngagementKind = "LIKE"
	EngagementUnlike  EngagementKind = "UNLIKE"
	EngagementComment EngagementKind = "COMMENT"
	EngagementShare   EngagementKind = "SHARE"
)

// EngagementEvent - одно действие пользователя над постом
type EngagementEvent struct {
	Kind        EngagementKind
	PostID      string
	UserID      string
	Content     string
	Description *string
}

type EngagementResult struct {
	Liked      bool
	Comment    *models.Comment
	Share      *models.Share
	SharedPost *models.Post
}

type CreatePostInput struct {
	Content    string            `json:"content"`
	Tags       []string          `json:"tags"`
	Visibility models.Visibility `json:"visibility"`
	Sector     string            `json:"sector"`
}

// EngagementLedger пишет лайки, комментарии и репосты вместе с денормализованными счетчиками поста.
// Запись и счетчик идут в одной транзакции, уведомление - после коммита
type EngagementLedger struct {
	notifier Notifier
	social   *SocialService
}

func NewEngagementLedger(notifier Notifier, social *SocialService) *EngagementLedger {
	return &EngagementLedger{notifier: notifier, social: social}
}

func incrementExpr(column string) interface{} {
	return gorm.Expr(column+" + ?", 1)
}

// счетчик не уходит ниже нуля даже если кеш разошелся с ledger
func decrementExpr(column string) interface{} {
	return gorm.Expr("CASE WHEN " + column + " > 0 THEN " + column + " - 1 ELSE 0 END")
}

func bumpCounter(tx *gorm.DB, postID, column string, expr interface{}) error {
	return tx.Model(&models.Post{}).Where("id = ?", postID).UpdateColumn(column, expr).Error
}

func (l *EngagementLedger) getPost(ctx context.Context, postID string) (*models.Post, error) {
	post := &models.Post{}
	err := db.GetWriteDB(ctx).Where("id = ?", postID).First(post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// ToggleLike ставит лайк, если его нет, и снимает, если есть
func (l *EngagementLedger) ToggleLike(ctx context.Context, postID, userID string) (bool, error) {
	var existing int64
	err := db.GetWriteDB(ctx).Model(&models.Like{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&existing).Error
	if err != nil {
		return false, fmt.Errorf("failed to check like: %w", err)
	}

	kind := EngagementLike
	if existing > 0 {
		kind = EngagementUnlike
	}
	res, err := l.ApplyEngagement(ctx, EngagementEvent{Kind: kind, PostID: postID, UserID: userID})
	if err != nil {
		return false, err
	}
	return res.Liked, nil
}

func (l *EngagementLedger) AddComment(ctx context.Context, postID, userID, content string) (*models.Comment, error) {
	res, err := l.ApplyEngagement(ctx, EngagementEvent{Kind: EngagementComment, PostID: postID, UserID: userID, Content: content})
	if err != nil {
		return nil, err
	}
	return res.Comment, nil
}

func (l *EngagementLedger) SharePost(ctx context.Context, postID, userID string, description *string) (*models.Share, error) {
	res, err := l.ApplyEngagement(ctx, EngagementEvent{Kind: EngagementShare, PostID: postID, UserID: userID, Description: description})
	if err != nil {
		return nil, err
	}
	return res.Share, nil
}

// ApplyEngagement - единая точка записи действия: ledger + счетчик в транзакции, затем уведомление автору.
// Уведомление не входит в транзакцию: если оно не создалось, действие все равно остается
func (l *EngagementLedger) ApplyEngagement(ctx context.Context, event EngagementEvent) (*EngagementResult, error) {
	if event.UserID == "" {
		return nil, fmt.Errorf("user is required: %w", ErrUnauthorized)
	}
	post, err := l.getPost(ctx, event.PostID)
	if err != nil {
		return nil, err
	}

	var result *EngagementResult
	switch event.Kind {
	case EngagementLike:
		result, err = l.like(ctx, post, event.UserID)
	case EngagementUnlike:
		result, err = l.unlike(ctx, post, event.UserID)
	case EngagementComment:
		result, err = l.comment(ctx, post, event.UserID, event.Content)
	case EngagementShare:
		result, err = l.share(ctx, post, event.UserID, event.Description)
	default:
		return nil, fmt.Errorf("unknown engagement %q: %w", event.Kind, ErrValidation)
	}
	if err != nil {
		return nil, err
	}

	log.Log.WithField("post_id", post.ID).WithField("user_id", event.UserID).Debugf("engagement %s applied", event.Kind)
	l.notifyAuthor(ctx, post, event, result)
	return result, nil
}

func (l *EngagementLedger) like(ctx context.Context, post *models.Post, userID string) (*EngagementResult, error) {
	like := &models.Like{UserID: userID, PostID: post.ID}
	err := db.GetWriteDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(like).Error; err != nil {
			return err
		}
		return bumpCounter(tx, post.ID, "likes_count", incrementExpr("likes_count"))
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("post already liked: %w", ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to like post: %w", err)
	}
	return &EngagementResult{Liked: true}, nil
}

func (l *EngagementLedger) unlike(ctx context.Context, post *models.Post, userID string) (*EngagementResult, error) {
	err := db.GetWriteDB(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", post.ID, userID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		// лайк уже сняли параллельным запросом
		if res.RowsAffected == 0 {
			return nil
		}
		return bumpCounter(tx, post.ID, "likes_count", decrementExpr("likes_count"))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unlike post: %w", err)
	}
	return &EngagementResult{Liked: false}, nil
}

func (l *EngagementLedger) comment(ctx context.Context, post *models.Post, userID, content string) (*EngagementResult, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("comment content is empty: %w", ErrValidation)
	}
	comment := &models.Comment{PostID: post.ID, UserID: userID, Content: content}
	err := db.GetWriteDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return bumpCounter(tx, post.ID, "comments_count", incrementExpr("comments_count"))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	return &EngagementResult{Comment: comment}, nil
}

// share создает запись Share и новый пост-репост, сектор наследуется от оригинала
func (l *EngagementLedger) share(ctx context.Context, post *models.Post, userID string, description *string) (*EngagementResult, error) {
	if description != nil && strings.TrimSpace(*description) == "" {
		description = nil
	}
	content := ""
	if description != nil {
		content = strings.TrimSpace(*description)
	}
	originalID := post.ID
	sharedPost := &models.Post{
		UserID:         userID,
		Content:        content,
		Visibility:     models.VisibilityPublic,
		Sector:         post.Sector,
		OriginalPostID: &originalID,
	}
	share := &models.Share{UserID: userID, PostID: post.ID, Description: description}

	err := db.GetWriteDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sharedPost).Error; err != nil {
			return err
		}
		share.SharedPostID = sharedPost.ID
		if err := tx.Create(share).Error; err != nil {
			return err
		}
		return bumpCounter(tx, post.ID, "shares_count", incrementExpr("shares_count"))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to share post: %w", err)
	}
	return &EngagementResult{Share: share, SharedPost: sharedPost}, nil
}

func (l *EngagementLedger) notifyAuthor(ctx context.Context, post *models.Post, event EngagementEvent, result *EngagementResult) {
	if l.notifier == nil || post.UserID == event.UserID {
		return
	}
	var n NotificationEvent
	switch event.Kind {
	case EngagementLike:
		n = LikeEvent{Liker: event.UserID, PostAuthor: post.UserID, PostID: post.ID}
	case EngagementComment:
		n = CommentEvent{Commenter: event.UserID, PostAuthor: post.UserID, PostID: post.ID, CommentID: result.Comment.ID}
	case EngagementShare:
		n = ShareEvent{Sharer: event.UserID, PostAuthor: post.UserID, PostID: post.ID}
	default:
		return
	}
	if _, err := l.notifier.CreateNotification(ctx, n); err != nil {
		log.Log.WithError(err).WithField("post_id", post.ID).Warn("engagement notification not created")
	}
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#")))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// CreatePost публикует пост и рассылает NEW_POST всем подписчикам автора
func (l *EngagementLedger) CreatePost(ctx context.Context, authorID string, input CreatePostInput) (*models.Post, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, fmt.Errorf("post content is empty: %w", ErrValidation)
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = models.VisibilityPublic
	}
	if visibility != models.VisibilityPublic && visibility != models.VisibilityFollowers {
		return nil, fmt.Errorf("unknown visibility %q: %w", visibility, ErrValidation)
	}
	tags := normalizeTags(input.Tags)
	if len(tags) > MAX_TAGS_PER_POST {
		return nil, fmt.Errorf("too many tags: %w", ErrValidation)
	}

	post := &models.Post{
		UserID:     authorID,
		Content:    content,
		Visibility: visibility,
		Sector:     strings.ToLower(strings.TrimSpace(input.Sector)),
	}
	for _, t := range tags {
		post.Tags = append(post.Tags, models.PostTag{Tag: t})
	}
	if err := db.GetWriteDB(ctx).Create(post).Error; err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}

	l.notifyFollowers(ctx, post)
	return post, nil
}

func (l *EngagementLedger) notifyFollowers(ctx context.Context, post *models.Post) {
	if l.notifier == nil || l.social == nil {
		return
	}
	followers, err := l.social.GetFollowerIDs(ctx, post.UserID)
	if err != nil {
		log.Log.WithError(err).WithField("post_id", post.ID).Warn("followers not loaded, NEW_POST skipped")
		return
	}
	for _, followerID := range followers {
		if followerID == post.UserID {
			continue
		}
		event := NewPostEvent{Author: post.UserID, Follower: followerID, PostID: post.ID}
		if _, err := l.notifier.CreateNotification(ctx, event); err != nil {
			log.Log.WithError(err).WithField("user_id", followerID).Warn("new post notification not created")
		}
	}
}

// DeletePost мягко удаляет пост. Чужой пост выглядит как несуществующий
// UpdatePostInput - частичное изменение поста, nil поля не трогаются
type UpdatePostInput struct {
	Content    *string            `json:"content"`
	Tags       *[]string          `json:"tags"`
	Visibility *models.Visibility `json:"visibility"`
	Sector     *string            `json:"sector"`
}

// UpdatePost меняет пост автора. Чужой или удаленный пост - ErrNotFound
func (l *EngagementLedger) UpdatePost(ctx context.Context, postID, userID string, input UpdatePostInput) (*models.Post, error) {
	updates := map[string]interface{}{}
	if input.Content != nil {
		content := strings.TrimSpace(*input.Content)
		if content == "" {
			return nil, fmt.Errorf("post content is empty: %w", ErrValidation)
		}
		updates["content"] = content
	}
	if input.Visibility != nil {
		if *input.Visibility != models.VisibilityPublic && *input.Visibility != models.VisibilityFollowers {
			return nil, fmt.Errorf("unknown visibility %q: %w", *input.Visibility, ErrValidation)
		}
		updates["visibility"] = *input.Visibility
	}
	if input.Sector != nil {
		updates["sector"] = strings.ToLower(strings.TrimSpace(*input.Sector))
	}
	var tags []string
	if input.Tags != nil {
		tags = normalizeTags(*input.Tags)
		if len(tags) > MAX_TAGS_PER_POST {
			return nil, fmt.Errorf("too many tags: %w", ErrValidation)
		}
	}

	post := &models.Post{}
	err := db.GetWriteDB(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND user_id = ?", postID, userID).First(post).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("post %s: %w", postID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get post: %w", err)
		}
		if len(updates) > 0 {
			if err := tx.Model(post).Updates(updates).Error; err != nil {
				return fmt.Errorf("failed to update post: %w", err)
			}
		}
		if input.Tags != nil {
			if err := tx.Where("post_id = ?", postID).Delete(&models.PostTag{}).Error; err != nil {
				return fmt.Errorf("failed to clear tags: %w", err)
			}
			for _, t := range tags {
				if err := tx.Create(&models.PostTag{PostID: postID, Tag: t}).Error; err != nil {
					return fmt.Errorf("failed to save tag: %w", err)
				}
			}
		}
		return tx.Preload("Tags").Where("id = ?", postID).First(post).Error
	})
	if err != nil {
		return nil, err
	}
	return post, nil
}

func (l *EngagementLedger) DeletePost(ctx context.Context, postID, userID string) error {
	res := db.GetWriteDB(ctx).Where("id = ? AND user_id = ?", postID, userID).Delete(&models.Post{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete post: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	return nil
}

func (l *EngagementLedger) ListComments(ctx context.Context, postID string, page, limit int) (*models.Page[models.CommentView], error) {
	if _, err := l.getPost(ctx, postID); err != nil {
		return nil, err
	}
	page, limit = pageBounds(page, limit)

	var total int64
	if err := db.GetReadOnlyDB(ctx).Model(&models.Comment{}).Where("post_id = ?", postID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count comments: %w", err)
	}
	var comments []models.Comment
	err := db.GetReadOnlyDB(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get comments: %w", err)
	}

	authorIDs := make([]string, 0, len(comments))
	for _, c := range comments {
		authorIDs = append(authorIDs, c.UserID)
	}
	authors := loadActorViews(ctx, authorIDs)
	data := make([]models.CommentView, 0, len(comments))
	for _, c := range comments {
		data = append(data, models.CommentView{Comment: c, Author: authors[c.UserID]})
	}

	return &models.Page[models.CommentView]{
		Data:     data,
		Total:    total,
		Page:     page,
		LastPage: lastPage(total, limit),
	}, nil
}

// DeleteComment мягко удаляет комментарий автора и уменьшает счетчик поста
func (l *EngagementLedger) DeleteComment(ctx context.Context, commentID, userID string) error {
	return db.GetWriteDB(ctx).Transaction(func(tx *gorm.DB) error {
		var comment models.Comment
		err := tx.Where("id = ? AND user_id = ?", commentID, userID).First(&comment).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get comment: %w", err)
		}
		res := tx.Delete(&comment)
		if res.Error != nil {
			return fmt.Errorf("failed to delete comment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return bumpCounter(tx, comment.PostID, "comments_count", decrementExpr("comments_count"))
	})
}

// ReconcilePostCounters пересчитывает счетчики поста по таблицам ledger
func (l *EngagementLedger) ReconcilePostCounters(ctx context.Context, postID string) (*models.Post, error) {
	if _, err := l.getPost(ctx, postID); err != nil {
		return nil, err
	}

	var likes, comments, shares int64
	if err := db.GetWriteDB(ctx).Model(&models.Like{}).Where("post_id = ?", postID).Count(&likes).Error; err != nil {
		return nil, fmt.Errorf("failed to count likes: %w", err)
	}
	if err := db.GetWriteDB(ctx).Model(&models.Comment{}).Where("post_id = ?", postID).Count(&comments).Error; err != nil {
		return nil, fmt.Errorf("failed to count comments: %w", err)
	}
	if err := db.GetWriteDB(ctx).Model(&models.Share{}).Where("post_id = ?", postID).Count(&shares).Error; err != nil {
		return nil, fmt.Errorf("failed to count shares: %w", err)
	}

	err := db.GetWriteDB(ctx).Model(&models.Post{}).Where("id = ?", postID).UpdateColumns(map[string]interface{}{
		"likes_count":    likes,
		"comments_count": comments,
		"shares_count":   shares,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile counters: %w", err)
	}
	return l.getPost(ctx, postID)
}
