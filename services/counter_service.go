package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"sportsocial/db"
	"sportsocial/models"
	"sportsocial/utils/log"

	"github.com/go-redis/redis/v8"
)

// CounterType тип счетчика
type CounterType string

const (
	CounterTypeUnreadNotifications CounterType = "unread_notifications"

	COUNTER_TTL = 24 * time.Hour
)

// Счетчик не уходит ниже нуля и живет сутки с последнего изменения.
// Отсутствующий ключ не трогаем: его восстановит ReconcileCounter из БД
var incrementCounterScript = redis.NewScript(`
	local key = KEYS[1]
	local delta = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if not current then
		return false
	end
	local new_count = math.max(0, tonumber(current) + delta)

	redis.call('SET', key, new_count, 'EX', ttl)
	return new_count
`)

// CounterService - кеш счетчиков пользователя в redis. Источник правды - БД,
// расхождения лечит ReconcileCounter
type CounterService struct {
	redisClient *redis.Client
}

func NewCounterService(redisClient *redis.Client) *CounterService {
	return &CounterService{redisClient: redisClient}
}

// getCounterKey возвращает ключ Redis для счетчика
func (s *CounterService) getCounterKey(userID string, counterType CounterType) string {
	return fmt.Sprintf("counter:%s:%s", userID, counterType)
}

// IncrementCounter атомарно меняет счетчик на delta. Если ключа нет, ничего не делает
// и возвращает ok = false
func (s *CounterService) IncrementCounter(ctx context.Context, userID string, counterType CounterType, delta int64) (n int64, ok bool, err error) {
	key := s.getCounterKey(userID, counterType)
	n, err = incrementCounterScript.Run(ctx, s.redisClient, []string{key}, delta, int64(COUNTER_TTL.Seconds())).Int64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to increment counter: %w", err)
	}
	return n, true, nil
}

// GetCounter возвращает значение счетчика; если ключа нет - пересчитывает из БД
func (s *CounterService) GetCounter(ctx context.Context, userID string, counterType CounterType) (int64, error) {
	val, err := s.redisClient.Get(ctx, s.getCounterKey(userID, counterType)).Result()
	if err == redis.Nil {
		return s.ReconcileCounter(ctx, userID, counterType)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}
	return strconv.ParseInt(val, 10, 64)
}

// SetCounterValue устанавливает точное значение счетчика (для синхронизации)
func (s *CounterService) SetCounterValue(ctx context.Context, userID string, counterType CounterType, value int64) error {
	return s.redisClient.Set(ctx, s.getCounterKey(userID, counterType), value, COUNTER_TTL).Err()
}

// ReconcileCounter сверяет счетчик с реальными данными и исправляет расхождения
func (s *CounterService) ReconcileCounter(ctx context.Context, userID string, counterType CounterType) (int64, error) {
	var actualCount int64

	switch counterType {
	case CounterTypeUnreadNotifications:
		err := db.GetReadOnlyDB(ctx).Model(&models.Notification{}).
			Where("recipient_id = ? AND is_read = ?", userID, false).
			Count(&actualCount).Error
		if err != nil {
			return 0, fmt.Errorf("failed to count actual value: %w", err)
		}
	default:
		return 0, fmt.Errorf("unsupported counter type: %s", counterType)
	}

	if err := s.SetCounterValue(ctx, userID, counterType, actualCount); err != nil {
		return actualCount, fmt.Errorf("failed to reconcile counter: %w", err)
	}
	log.Log.WithField("user_id", userID).WithField("counter", counterType).Debugf("counter reconciled to %d", actualCount)
	return actualCount, nil
}
