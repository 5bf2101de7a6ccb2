package repository

import (
	"context"
	"time"

	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/progression"
	"studyquiz_backend/internal/quiz"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BadgeRepository struct {
	DB *gorm.DB
}

func NewBadgeRepository(db *gorm.DB) *BadgeRepository {
	return &BadgeRepository{DB: db}
}

// Earned 每个徽章定义已达到的最高等级
func (r *BadgeRepository) Earned(ctx context.Context, userID string) (progression.Earned, error) {
	type row struct {
		DefinitionKey string
		Level         int
	}
	var rows []row
	err := r.DB.WithContext(ctx).Model(&model.UserBadge{}).
		Select("definition_key, MAX(level) AS level").
		Where("user_id = ?", userID).
		Group("definition_key").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(progression.Earned, len(rows))
	for _, e := range rows {
		out[e.DefinitionKey] = e.Level
	}
	return out, nil
}

// Award 写入新获得的等级并累加用户积分；已存在的等级被忽略
func (r *BadgeRepository) Award(ctx context.Context, userID string, awards []progression.Award, at time.Time) error {
	if len(awards) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		points := 0
		for _, a := range awards {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.UserBadge{
				UserID:        userID,
				DefinitionKey: a.DefinitionKey,
				Level:         a.Level,
				Points:        a.Points,
				AwardedAt:     at,
			})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected > 0 {
				points += a.Points
			}
		}
		if points == 0 {
			return nil
		}
		return tx.Model(&model.User{}).Where("id = ?", userID).
			Update("points", gorm.Expr("points + ?", points)).Error
	})
}

// List 用户的全部徽章，补全定义中的名称和图标
func (r *BadgeRepository) List(ctx context.Context, userID string, defs []quiz.BadgeDefinition) ([]quiz.Badge, error) {
	var rows []model.UserBadge
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).
		Order("definition_key asc, level asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]quiz.BadgeDefinition, len(defs))
	for _, d := range defs {
		byKey[d.Key] = d
	}
	out := make([]quiz.Badge, 0, len(rows))
	for _, row := range rows {
		def := byKey[row.DefinitionKey]
		out = append(out, quiz.Badge{
			UserID:        row.UserID,
			DefinitionKey: row.DefinitionKey,
			Name:          def.Name,
			Icon:          def.Icon,
			Level:         row.Level,
			Points:        row.Points,
			AwardedAt:     row.AwardedAt,
		})
	}
	return out, nil
}
