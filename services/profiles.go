package services

import (
	"context"

	"sportsocial/db"
	"sportsocial/models"
	"sportsocial/utils/log"
)

// loadActorViews одним запросом достает проекции профилей для набора пользователей.
// Пользователь без профиля получает проекцию только с userId
func loadActorViews(ctx context.Context, userIDs []string) map[string]models.ActorView {
	views := make(map[string]models.ActorView, len(userIDs))
	if len(userIDs) == 0 {
		return views
	}

	var profiles []models.UserProfile
	err := db.GetReadOnlyDB(ctx).
		Select("user_id, nickname, avatar_url, level").
		Where("user_id IN ?", uniqueStrings(userIDs)).
		Find(&profiles).Error
	if err != nil {
		log.Log.WithError(err).Warn("failed to load profiles")
	}
	for _, p := range profiles {
		views[p.UserID] = p.View()
	}
	for _, id := range userIDs {
		if _, ok := views[id]; !ok {
			views[id] = models.ActorView{UserID: id}
		}
	}
	return views
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DEFAULT_PAGE_SIZE
	}
	if limit > MAX_PAGE_SIZE {
		limit = MAX_PAGE_SIZE
	}
	return page, limit
}

func lastPage(total int64, limit int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}
