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
	"gorm.io/gorm/clause"
)

// FeedQuery - входные данные ленты. ViewerID пустой для анонимного зрителя
type FeedQuery struct {
	ViewerID          string
	FollowingIDs      []string
	InterestedSectors []string
	Page              int
	Limit             int
	Search            string
	Tag               string
}

// FeedComposer собирает ленту: фильтр видимости, поднятие интересных секторов, аннотации зрителя
type FeedComposer struct {
	social    *SocialService
	interests *InterestService
}

func NewFeedComposer(social *SocialService, interests *InterestService) *FeedComposer {
	return &FeedComposer{social: social, interests: interests}
}

// ViewerFeed достает подписки и интересы зрителя и строит ленту.
// Ошибка получения графа не ломает ленту: зритель видит ее как без подписок
func (f *FeedComposer) ViewerFeed(ctx context.Context, viewerID string, page, limit int, search, tag string) (*models.Page[models.FeedPost], error) {
	query := FeedQuery{ViewerID: viewerID, Page: page, Limit: limit, Search: search, Tag: tag}
	if viewerID != "" {
		following, err := f.social.GetFollowingIDs(ctx, viewerID)
		if err != nil {
			log.Log.WithError(err).WithField("user_id", viewerID).Warn("following not loaded, feed degraded")
		}
		sectors, err := f.interests.GetByUser(ctx, viewerID)
		if err != nil {
			log.Log.WithError(err).WithField("user_id", viewerID).Warn("interests not loaded, feed degraded")
		}
		query.FollowingIDs = following
		query.InterestedSectors = sectors
	}
	return f.ComposeFeed(ctx, query)
}

// GetPost - один пост с проекцией автора и аннотациями зрителя.
// Пост, который зрителю не виден, неотличим от отсутствующего
func (f *FeedComposer) GetPost(ctx context.Context, viewerID, postID string) (*models.FeedPost, error) {
	q := FeedQuery{ViewerID: viewerID}
	if viewerID != "" {
		following, err := f.social.GetFollowingIDs(ctx, viewerID)
		if err != nil {
			log.Log.WithError(err).WithField("user_id", viewerID).Warn("following not loaded, post visibility degraded")
		}
		q.FollowingIDs = following
	}

	var post models.Post
	err := f.visiblePosts(ctx, q).Preload("Tags").Where("id = ?", postID).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	data, err := f.annotate(ctx, q, []models.Post{post})
	if err != nil {
		return nil, err
	}
	return &data[0], nil
}

func (f *FeedComposer) visiblePosts(ctx context.Context, q FeedQuery) *gorm.DB {
	tx := db.GetReadOnlyDB(ctx).Model(&models.Post{})

	public := db.ORM.Where("visibility = ?", models.VisibilityPublic)
	if q.ViewerID != "" {
		public = public.Or("user_id = ?", q.ViewerID)
		if len(q.FollowingIDs) > 0 {
			public = public.Or("user_id IN ? AND visibility = ?", q.FollowingIDs, models.VisibilityFollowers)
		}
	}
	tx = tx.Where(public)

	if search := strings.TrimSpace(q.Search); search != "" {
		tx = tx.Where("LOWER(content) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(search))+"%")
	}
	if tag := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(q.Tag, "#"))); tag != "" {
		tx = tx.Where("id IN (?)", db.ORM.Model(&models.PostTag{}).Select("post_id").Where("tag = ?", tag))
	}
	return tx
}

// ComposeFeed возвращает страницу ленты. Сортировка: сначала интересные сектора, внутри - новые сверху
func (f *FeedComposer) ComposeFeed(ctx context.Context, q FeedQuery) (*models.Page[models.FeedPost], error) {
	page, limit := pageBounds(q.Page, q.Limit)

	var total int64
	if err := f.visiblePosts(ctx, q).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count feed: %w", err)
	}

	tx := f.visiblePosts(ctx, q).Preload("Tags")
	// id только для стабильности страниц при равном created_at.
	// Выражение и колонки идут одним OrderBy: gorm при слиянии нескольких Order теряет Expression
	if sectors := normalizeTags(q.InterestedSectors); len(sectors) > 0 {
		tx = tx.Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN sector IN ? THEN 0 ELSE 1 END ASC, created_at DESC, id DESC",
			Vars:               []interface{}{sectors},
			WithoutParentheses: true,
		}})
	} else {
		tx = tx.Order("created_at DESC").Order("id DESC")
	}

	var posts []models.Post
	if err := tx.Offset((page - 1) * limit).Limit(limit).Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}

	data, err := f.annotate(ctx, q, posts)
	if err != nil {
		return nil, err
	}
	return &models.Page[models.FeedPost]{
		Data:     data,
		Total:    total,
		Page:     page,
		LastPage: lastPage(total, limit),
	}, nil
}

func (f *FeedComposer) annotate(ctx context.Context, q FeedQuery, posts []models.Post) ([]models.FeedPost, error) {
	postIDs := make([]string, 0, len(posts))
	authorIDs := make([]string, 0, len(posts))
	for _, p := range posts {
		postIDs = append(postIDs, p.ID)
		authorIDs = append(authorIDs, p.UserID)
	}

	liked := make(map[string]struct{})
	if q.ViewerID != "" && len(postIDs) > 0 {
		var likedIDs []string
		err := db.GetReadOnlyDB(ctx).Model(&models.Like{}).
			Where("user_id = ? AND post_id IN ?", q.ViewerID, postIDs).
			Pluck("post_id", &likedIDs).Error
		if err != nil {
			return nil, fmt.Errorf("failed to get likes: %w", err)
		}
		for _, id := range likedIDs {
			liked[id] = struct{}{}
		}
	}

	following := make(map[string]struct{}, len(q.FollowingIDs))
	if q.ViewerID != "" {
		for _, id := range q.FollowingIDs {
			following[id] = struct{}{}
		}
	}

	authors := loadActorViews(ctx, authorIDs)
	out := make([]models.FeedPost, 0, len(posts))
	for _, p := range posts {
		_, isLiked := liked[p.ID]
		_, isFollowing := following[p.UserID]
		out = append(out, models.FeedPost{
			ID:             p.ID,
			UserID:         p.UserID,
			Author:         authors[p.UserID],
			Content:        p.Content,
			Tags:           p.TagNames(),
			Visibility:     p.Visibility,
			Sector:         p.Sector,
			LikesCount:     p.LikesCount,
			CommentsCount:  p.CommentsCount,
			SharesCount:    p.SharesCount,
			OriginalPostID: p.OriginalPostID,
			IsLiked:        isLiked,
			IsFollowing:    isFollowing,
			CreatedAt:      p.CreatedAt,
		})
	}
	return out, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike экранирует спецсимволы LIKE, чтобы поиск шёл по буквальной подстроке
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
