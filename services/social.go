package services

import (
	"context"
	"errors"
	"fmt"

	"sportsocial/db"
	"sportsocial/models"
	"sportsocial/utils/log"

	"gorm.io/gorm"
)

// SocialService - граф подписок. Ядро читает из него followingIds и подписчиков автора
type SocialService struct {
	notifier Notifier
}

func NewSocialService(notifier Notifier) *SocialService {
	return &SocialService{notifier: notifier}
}

// FollowUser подписывает followerID на followingID и уведомляет того, на кого подписались.
// Повторная подписка не ошибка: created=false
func (ss *SocialService) FollowUser(ctx context.Context, followerID, followingID string) (created bool, err error) {
	if followerID == followingID {
		return false, fmt.Errorf("cannot follow yourself: %w", ErrConflict)
	}

	var exists int64
	err = db.GetReadOnlyDB(ctx).Model(&models.UserProfile{}).Where("user_id = ?", followingID).Count(&exists).Error
	if err != nil {
		return false, fmt.Errorf("error checking user: %w", err)
	}
	if exists == 0 {
		return false, fmt.Errorf("user to follow: %w", ErrNotFound)
	}

	follow := &models.UserFollow{FollowerID: followerID, FollowingID: followingID}
	err = db.GetWriteDB(ctx).Create(follow).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to follow: %w", err)
	}

	if ss.notifier != nil {
		if _, err := ss.notifier.CreateNotification(ctx, FollowEvent{Follower: followerID, Followee: followingID}); err != nil {
			log.Log.WithError(err).WithField("user_id", followingID).Warn("follow notification not created")
		}
	}
	return true, nil
}

// UnfollowUser удаляет подписку
func (ss *SocialService) UnfollowUser(ctx context.Context, followerID, followingID string) error {
	res := db.GetWriteDB(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&models.UserFollow{})
	if res.Error != nil {
		return fmt.Errorf("failed to unfollow: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("not following this user: %w", ErrNotFound)
	}
	return nil
}

// GetFollowingIDs - на кого подписан пользователь
func (ss *SocialService) GetFollowingIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := db.GetReadOnlyDB(ctx).Model(&models.UserFollow{}).
		Where("follower_id = ?", userID).
		Pluck("following_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get following: %w", err)
	}
	return ids, nil
}

// GetFollowerIDs - кто подписан на пользователя
func (ss *SocialService) GetFollowerIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := db.GetReadOnlyDB(ctx).Model(&models.UserFollow{}).
		Where("following_id = ?", userID).
		Pluck("follower_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get followers: %w", err)
	}
	return ids, nil
}

// ListFollowers - профили подписчиков, новые подписки сверху
func (ss *SocialService) ListFollowers(ctx context.Context, userID string) ([]models.ActorView, error) {
	return ss.listProfiles(ctx, "following_id = ?", "follower_id", userID)
}

// ListFollowing - профили тех, на кого подписан пользователь
func (ss *SocialService) ListFollowing(ctx context.Context, userID string) ([]models.ActorView, error) {
	return ss.listProfiles(ctx, "follower_id = ?", "following_id", userID)
}

func (ss *SocialService) listProfiles(ctx context.Context, where, column, userID string) ([]models.ActorView, error) {
	var ids []string
	err := db.GetReadOnlyDB(ctx).Model(&models.UserFollow{}).
		Where(where, userID).
		Order("created_at DESC").
		Pluck(column, &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get follow list: %w", err)
	}
	views := loadActorViews(ctx, ids)
	out := make([]models.ActorView, 0, len(ids))
	for _, id := range ids {
		out = append(out, views[id])
	}
	return out, nil
}
