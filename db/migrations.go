package db

import (
	"fmt"

	"gorm.io/gorm"
)

// partialIndexes - индексы с условием, синтаксис одинаковый для postgres и sqlite
var partialIndexes = map[string]string{
	"user_devices_active_token_idx": `CREATE INDEX IF NOT EXISTS user_devices_active_token_idx
		ON user_devices (user_id) WHERE is_active AND push_token IS NOT NULL`,
	"posts_feed_idx": `CREATE INDEX IF NOT EXISTS posts_feed_idx
		ON posts (created_at DESC) WHERE deleted_at IS NULL`,
	"notifications_unread_idx": `CREATE INDEX IF NOT EXISTS notifications_unread_idx
		ON notifications (recipient_id) WHERE is_read = false`,
}

// CreatePartialIndexes создает индексы под горячие запросы ленты, push и счетчиков
func CreatePartialIndexes(db *gorm.DB) error {
	for name, stmt := range partialIndexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", name, err)
		}
	}
	return nil
}
