package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserProfile - профиль принадлежит сервису профилей, здесь читаем только проекцию
type UserProfile struct {
	UserID    string    `gorm:"primaryKey;size:36" json:"userId"`
	Nickname  string    `gorm:"size:50" json:"nickname"`
	AvatarURL string    `gorm:"type:text" json:"avatarUrl"`
	Level     string    `gorm:"size:50" json:"level"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}

// ActorView - минимальная проекция пользователя для уведомлений и ленты
type ActorView struct {
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname"`
	AvatarURL string `json:"avatarUrl"`
	Level     string `json:"level"`
}

func (p UserProfile) View() ActorView {
	return ActorView{UserID: p.UserID, Nickname: p.Nickname, AvatarURL: p.AvatarURL, Level: p.Level}
}

// UserDevice - устройство пользователя, push уходит только на активные с токеном
type UserDevice struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	UserID      string    `gorm:"size:36;not null;uniqueIndex:user_devices_user_device_key" json:"userId"`
	DeviceID    string    `gorm:"size:128;not null;uniqueIndex:user_devices_user_device_key" json:"deviceId"`
	PushToken   *string   `gorm:"type:text" json:"-"`
	IsActive    bool      `gorm:"default:true" json:"isActive"`
	LastLoginAt time.Time `json:"lastLoginAt"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (UserDevice) TableName() string {
	return "user_devices"
}

func (d *UserDevice) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

type UserFollow struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	FollowerID  string    `gorm:"size:36;not null;uniqueIndex:user_follows_pair_key" json:"followerId"`
	FollowingID string    `gorm:"size:36;not null;uniqueIndex:user_follows_pair_key;index" json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (UserFollow) TableName() string {
	return "user_follows"
}

func (f *UserFollow) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	return nil
}

// SectorInterest - какие секторы (виды спорта) интересны пользователю, влияет на ранжирование ленты
type SectorInterest struct {
	ID     int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID string `gorm:"size:36;uniqueIndex:sector_interest_user_sector_key" json:"userId"`
	Sector string `gorm:"size:60;uniqueIndex:sector_interest_user_sector_key" json:"sector"`
}

func (SectorInterest) TableName() string {
	return "sector_interests"
}

// OtpCode - одноразовый код, храним только хеш
type OtpCode struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	PhoneNumber string    `gorm:"size:20;index" json:"phoneNumber"`
	CodeHash    string    `gorm:"size:255" json:"-"`
	Purpose     string    `gorm:"size:20" json:"purpose"`
	ExpiresAt   time.Time `json:"expiresAt"`
	IsUsed      bool      `gorm:"default:false" json:"isUsed"`
	Attempts    int       `gorm:"default:0" json:"-"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
}

func (OtpCode) TableName() string {
	return "otp_codes"
}

func (o *OtpCode) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}
