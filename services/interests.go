package services

import (
	"context"
	"fmt"
	"strings"

	"sportsocial/db"
	"sportsocial/models"

	"gorm.io/gorm"
)

// InterestService - секторы, которые интересны пользователю. Посты этих секторов поднимаются в ленте
type InterestService struct{}

func NewInterestService() *InterestService {
	return &InterestService{}
}

func (i *InterestService) GetByUser(ctx context.Context, userID string) ([]string, error) {
	var sectors []string
	err := db.GetReadOnlyDB(ctx).Model(&models.SectorInterest{}).
		Where("user_id = ?", userID).
		Order("sector").
		Pluck("sector", &sectors).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get interests: %w", err)
	}
	return sectors, nil
}

// SetForUser заменяет набор секторов пользователя целиком
func (i *InterestService) SetForUser(ctx context.Context, userID string, sectors []string) error {
	return db.GetWriteDB(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.SectorInterest{}).Error; err != nil {
			return err
		}
		seen := make(map[string]struct{}, len(sectors))
		rows := make([]models.SectorInterest, 0, len(sectors))
		for _, s := range sectors {
			s = strings.ToLower(strings.TrimSpace(s))
			if _, dup := seen[s]; dup || s == "" {
				continue
			}
			seen[s] = struct{}{}
			rows = append(rows, models.SectorInterest{UserID: userID, Sector: s})
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}
