package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sportsocial/db"
	"sportsocial/models"

	"gorm.io/gorm/clause"
)

// DeviceService - реестр устройств. Принадлежит сервису сессий, ядро только читает токены
type DeviceService struct{}

func NewDeviceService() *DeviceService {
	return &DeviceService{}
}

// RegisterDevice создает или обновляет устройство пользователя и делает его активным
func (ds *DeviceService) RegisterDevice(ctx context.Context, userID, deviceID string, pushToken *string) (*models.UserDevice, error) {
	if userID == "" || strings.TrimSpace(deviceID) == "" {
		return nil, fmt.Errorf("device id is required: %w", ErrValidation)
	}
	if pushToken != nil && strings.TrimSpace(*pushToken) == "" {
		pushToken = nil
	}

	device := &models.UserDevice{
		UserID:      userID,
		DeviceID:    deviceID,
		PushToken:   pushToken,
		IsActive:    true,
		LastLoginAt: time.Now(),
	}
	err := db.GetWriteDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"push_token", "is_active", "last_login_at", "updated_at"}),
	}).Create(device).Error
	if err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}
	// при конфликте id в структуре не совпадает с id строки, перечитываем
	stored := &models.UserDevice{}
	err = db.GetWriteDB(ctx).Where("user_id = ? AND device_id = ?", userID, deviceID).First(stored).Error
	if err != nil {
		return nil, fmt.Errorf("failed to reload device: %w", err)
	}
	return stored, nil
}

// DeactivateDevice выключает push для устройства (logout)
func (ds *DeviceService) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	res := db.GetWriteDB(ctx).Model(&models.UserDevice{}).
		Where("user_id = ? AND device_id = ?", userID, deviceID).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate device: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}
	return nil
}

// ActivePushTokens возвращает токены активных устройств пользователя
func (ds *DeviceService) ActivePushTokens(ctx context.Context, userID string) ([]string, error) {
	var tokens []string
	err := db.GetReadOnlyDB(ctx).Model(&models.UserDevice{}).
		Where("user_id = ? AND is_active = ? AND push_token IS NOT NULL AND push_token <> ''", userID, true).
		Pluck("push_token", &tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get push tokens: %w", err)
	}
	return tokens, nil
}
