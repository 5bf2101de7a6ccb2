package repository

import (
	"context"

	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/selection"

	"gorm.io/gorm"
)

type MessageRepository struct {
	DB *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{DB: db}
}

// MessagesByGroup 小组消息流，题目消息附带题目本体
func (r *MessageRepository) MessagesByGroup(ctx context.Context, groupID string) ([]selection.Message, error) {
	var rows []model.Message
	err := r.DB.WithContext(ctx).
		Preload("Question").
		Where("group_id = ?", groupID).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]selection.Message, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		msg := selection.Message{ID: row.ID, GroupID: row.GroupID, Kind: selection.KindText}
		if row.Kind == model.MessageQuestion && row.Question != nil {
			q, err := row.Question.ToDomain()
			if err != nil {
				return nil, err
			}
			msg.Kind = selection.KindQuestion
			msg.Question = &q
		}
		out = append(out, msg)
	}
	return out, nil
}

// PostQuestion 题目与对应的消息在同一事务中写入
func (r *MessageRepository) PostQuestion(ctx context.Context, q quiz.Question) (quiz.Question, error) {
	row, err := model.QuestionFromDomain(q)
	if err != nil {
		return quiz.Question{}, err
	}
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(row).Error; err != nil {
			return err
		}
		return tx.Create(&model.Message{
			GroupID:    row.GroupID,
			AuthorID:   row.AuthorID,
			Kind:       model.MessageQuestion,
			QuestionID: &row.ID,
		}).Error
	})
	if err != nil {
		return quiz.Question{}, err
	}
	return row.ToDomain()
}
