package repository

import (
	"context"
	"encoding/json"

	"studyquiz_backend/internal/game"
	"studyquiz_backend/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type GameRepository struct {
	DB *gorm.DB
}

func NewGameRepository(db *gorm.DB) *GameRepository {
	return &GameRepository{DB: db}
}

func (r *GameRepository) SaveGame(ctx context.Context, groupID string, g game.Game) error {
	snapshot, err := json.Marshal(g)
	if err != nil {
		return err
	}
	return r.DB.WithContext(ctx).Create(&model.GameRecord{
		UUIDBase:       model.UUIDBase{ID: g.ID},
		UserID:         g.UserID,
		OpponentID:     g.OpponentID,
		GroupID:        groupID,
		WinnerID:       g.WinnerID,
		Draw:           g.Draw,
		UserScore:      g.User.Score,
		OpponentScore:  g.Opponent.Score,
		UserTimeMs:     g.User.TotalTime.Milliseconds(),
		OpponentTimeMs: g.Opponent.TotalTime.Milliseconds(),
		FinishedAt:     g.FinishedAt,
		Snapshot:       datatypes.JSON(snapshot),
	}).Error
}

func (r *GameRepository) RecentGames(ctx context.Context, userID string, limit int) ([]model.GameRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var rows []model.GameRecord
	err := r.DB.WithContext(ctx).
		Omit("snapshot").
		Where("user_id = ?", userID).
		Order("finished_at desc").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
