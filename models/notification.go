package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NotificationType string

const (
	NotificationLike    NotificationType = "LIKE"
	NotificationComment NotificationType = "COMMENT"
	NotificationFollow  NotificationType = "FOLLOW"
	NotificationNewPost NotificationType = "NEW_POST"
	NotificationShare   NotificationType = "SHARE"
)

// Notification - строка уведомления. Создается только диспетчером, меняется только is_read
type Notification struct {
	ID          string           `gorm:"primaryKey;size:36" json:"id"`
	RecipientID string           `gorm:"size:36;not null;index:notifications_recipient_created_idx" json:"recipientId"`
	ActorID     string           `gorm:"size:36;not null;check:notifications_no_self,recipient_id <> actor_id" json:"actorId"`
	Type        NotificationType `gorm:"size:20;not null" json:"type"`
	EntityID    *string          `gorm:"size:36" json:"entityId,omitempty"`
	Message     *string          `gorm:"type:text" json:"message,omitempty"`
	IsRead      bool             `gorm:"default:false" json:"isRead"`
	CreatedAt   time.Time        `gorm:"index:notifications_recipient_created_idx" json:"createdAt"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// NotificationView - формат уведомления на проводе (REST и websocket)
type NotificationView struct {
	Notification
	Actor ActorView `json:"actor"`
}
