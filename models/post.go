package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
)

// Post - пост пользователя. Счетчики денормализованы и являются кешем,
// источник правды - таблицы like/comment/share
type Post struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	UserID         string         `gorm:"size:36;index" json:"userId"`
	Content        string         `gorm:"type:text" json:"content"`
	Tags           []PostTag      `gorm:"foreignKey:PostID" json:"-"`
	Visibility     Visibility     `gorm:"size:16;default:public;index" json:"visibility"`
	Sector         string         `gorm:"size:60;index" json:"sector"`
	LikesCount     int64          `gorm:"default:0" json:"likesCount"`
	CommentsCount  int64          `gorm:"default:0" json:"commentsCount"`
	SharesCount    int64          `gorm:"default:0" json:"sharesCount"`
	OriginalPostID *string        `gorm:"size:36;index" json:"originalPostId,omitempty"`
	CreatedAt      time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Post) TableName() string {
	return "posts"
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Visibility == "" {
		p.Visibility = VisibilityPublic
	}
	return nil
}

// TagNames возвращает теги поста строками
func (p *Post) TagNames() []string {
	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t.Tag)
	}
	return tags
}

type PostTag struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"-"`
	PostID string `gorm:"size:36;uniqueIndex:post_tag_idx" json:"postId"`
	Tag    string `gorm:"size:60;uniqueIndex:post_tag_idx;index" json:"tag"`
}

func (PostTag) TableName() string {
	return "post_tags"
}

// Like - уникальность пары (user_id, post_id) держит индекс в БД, а не код
type Like struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:likes_user_post_key" json:"userId"`
	PostID    string    `gorm:"size:36;not null;uniqueIndex:likes_user_post_key;index" json:"postId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Like) TableName() string {
	return "likes"
}

func (l *Like) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

type Comment struct {
	ID        string         `gorm:"primaryKey;size:36" json:"id"`
	PostID    string         `gorm:"size:36;index" json:"postId"`
	UserID    string         `gorm:"size:36;index" json:"userId"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Comment) TableName() string {
	return "comments"
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// Share - аудит репоста, сам репост в ленте это отдельный Post с OriginalPostID
type Share struct {
	ID           string         `gorm:"primaryKey;size:36" json:"id"`
	UserID       string         `gorm:"size:36;index" json:"userId"`
	PostID       string         `gorm:"size:36;index" json:"postId"`
	SharedPostID string         `gorm:"size:36" json:"sharedPostId"`
	Description  *string        `gorm:"type:text" json:"description,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Share) TableName() string {
	return "shares"
}

func (s *Share) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// FeedPost - пост в ленте с аннотациями для конкретного зрителя
type FeedPost struct {
	ID             string     `json:"id"`
	UserID         string     `json:"userId"`
	Author         ActorView  `json:"author"`
	Content        string     `json:"content"`
	Tags           []string   `json:"tags"`
	Visibility     Visibility `json:"visibility"`
	Sector         string     `json:"sector"`
	LikesCount     int64      `json:"likesCount"`
	CommentsCount  int64      `json:"commentsCount"`
	SharesCount    int64      `json:"sharesCount"`
	OriginalPostID *string    `json:"originalPostId,omitempty"`
	IsLiked        bool       `json:"isLiked"`
	IsFollowing    bool       `json:"isFollowing"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// CommentView - комментарий с автором
type CommentView struct {
	Comment
	Author ActorView `json:"author"`
}

// Page - общий ответ для постраничных выборок
type Page[T any] struct {
	Data     []T   `json:"data"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	LastPage int   `json:"lastPage"`
}
