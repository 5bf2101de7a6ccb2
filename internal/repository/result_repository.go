package repository

import (
	"context"
	"encoding/json"
	"time"

	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/quiz"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ResultRepository struct {
	DB *gorm.DB
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{DB: db}
}

// SaveResult 在同一事务中追加历史记录并累加答题计数。
// 会话已有记录时保持第一次的结果、不再累加，并返回徽章进度是否已应用
func (r *ResultRepository) SaveResult(ctx context.Context, res quiz.SessionResult) (bool, error) {
	snapshot, err := json.Marshal(res)
	if err != nil {
		return false, err
	}
	row := &model.SessionResult{
		UUIDBase:       model.UUIDBase{ID: res.ID},
		SessionID:      res.SessionID,
		UserID:         res.UserID,
		GroupID:        res.GroupID,
		Mode:           string(res.Mode),
		CorrectCount:   res.CorrectCount,
		TotalQuestions: res.TotalQuestions,
		Score:          res.Score,
		AutoSubmitted:  res.AutoSubmitted,
		Offline:        res.Offline,
		StartedAt:      res.StartedAt,
		SubmittedAt:    res.SubmittedAt,
		Snapshot:       datatypes.JSON(snapshot),
	}
	var applied bool
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if created.Error != nil {
			return created.Error
		}
		if created.RowsAffected == 0 {
			var existing model.SessionResult
			if err := tx.Select("progress_applied").Where("session_id = ?", res.SessionID).First(&existing).Error; err != nil {
				return err
			}
			applied = existing.ProgressApplied
			return nil
		}
		return incrementAttempts(tx, res.UserID, res.Outcomes(), res.SubmittedAt)
	})
	return applied, err
}

// MarkProgressApplied 记录该会话的徽章指标已经累加
func (r *ResultRepository) MarkProgressApplied(ctx context.Context, sessionID string) error {
	return r.DB.WithContext(ctx).Model(&model.SessionResult{}).
		Where("session_id = ?", sessionID).
		Update("progress_applied", true).Error
}

func (r *ResultRepository) History(ctx context.Context, userID string, limit int) ([]quiz.SessionResult, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []model.SessionResult
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("submitted_at desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]quiz.SessionResult, 0, len(rows))
	for _, row := range rows {
		var res quiz.SessionResult
		if err := json.Unmarshal(row.Snapshot, &res); err != nil {
			return nil, err
		}
		res.ID = row.ID
		out = append(out, res)
	}
	return out, nil
}

// EnqueuePending 离线结果进入待同步队列
func (r *ResultRepository) EnqueuePending(ctx context.Context, res quiz.SessionResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model.PendingSync{
		UserID:    res.UserID,
		SessionID: res.SessionID,
		Payload:   datatypes.JSON(payload),
	}).Error
}

func (r *ResultRepository) PendingFor(ctx context.Context, userID string) ([]quiz.SessionResult, error) {
	var rows []model.PendingSync
	err := r.DB.WithContext(ctx).
		Where("user_id = ? AND synced_at IS NULL", userID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]quiz.SessionResult, 0, len(rows))
	for _, row := range rows {
		var res quiz.SessionResult
		if err := json.Unmarshal(row.Payload, &res); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, nil
}

func (r *ResultRepository) MarkSynced(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Model(&model.PendingSync{}).
		Where("session_id IN ?", sessionIDs).
		Update("synced_at", time.Now()).Error
}
