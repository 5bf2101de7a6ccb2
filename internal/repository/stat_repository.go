package repository

import (
	"context"
	"time"

	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/quiz"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatRepository struct {
	DB *gorm.DB
}

func NewStatRepository(db *gorm.DB) *StatRepository {
	return &StatRepository{DB: db}
}

// StatsForUser 以题目 id 为键的答题计数
func (r *StatRepository) StatsForUser(ctx context.Context, userID string) (map[string]quiz.UserQuestionStat, error) {
	var rows []model.UserQuestionStat
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]quiz.UserQuestionStat, len(rows))
	for _, row := range rows {
		out[row.QuestionID] = quiz.UserQuestionStat{
			UserID:            row.UserID,
			QuestionID:        row.QuestionID,
			CorrectAttempts:   row.CorrectAttempts,
			IncorrectAttempts: row.IncorrectAttempts,
			LastAttemptedAt:   row.LastAttemptedAt,
		}
	}
	return out, nil
}

// incrementAttempts 按结果累加计数，使用 upsert 保证只增不减；在调用方的事务中执行
func incrementAttempts(tx *gorm.DB, userID string, outcomes map[string]bool, at time.Time) error {
	for questionID, correct := range outcomes {
		row := model.UserQuestionStat{UserID: userID, QuestionID: questionID, LastAttemptedAt: at}
		column := "incorrect_attempts"
		if correct {
			row.CorrectAttempts = 1
			column = "correct_attempts"
		} else {
			row.IncorrectAttempts = 1
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "question_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				column:              gorm.Expr(column + " + 1"),
				"last_attempted_at": at,
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// Metrics 徽章追踪的累计指标
func (r *StatRepository) Metrics(ctx context.Context, userID string) (quiz.UserStats, error) {
	var rows []model.UserMetric
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(quiz.UserStats, len(rows))
	for _, row := range rows {
		out[quiz.Metric(row.Metric)] = row.Value
	}
	return out, nil
}

// SaveMetrics 写入新的指标值；值只会增大，upsert 时取较大者
func (r *StatRepository) SaveMetrics(ctx context.Context, userID string, stats quiz.UserStats) error {
	if len(stats) == 0 {
		return nil
	}
	rows := make([]model.UserMetric, 0, len(stats))
	now := time.Now()
	for metric, value := range stats {
		rows = append(rows, model.UserMetric{UserID: userID, Metric: string(metric), Value: value, UpdatedAt: now})
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "metric"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      gorm.Expr("GREATEST(value, VALUES(value))"),
			"updated_at": now,
		}),
	}).Create(&rows).Error
}
