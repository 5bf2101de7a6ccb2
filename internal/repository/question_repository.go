package repository

import (
	"context"
	"errors"

	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/quiz"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) FindByID(ctx context.Context, id string) (quiz.Question, error) {
	var row model.Question
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return quiz.Question{}, err
	}
	return row.ToDomain()
}

func (r *QuestionRepository) ListByGroup(ctx context.Context, groupID string, includeArchived bool) ([]quiz.Question, error) {
	var rows []model.Question
	db := r.DB.WithContext(ctx).Where("group_id = ?", groupID)
	if !includeArchived {
		db = db.Where("archived = ?", false)
	}
	if err := db.Order("created_at desc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]quiz.Question, 0, len(rows))
	for i := range rows {
		q, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// Vote 记录或改投一票并同步计数。firstVote 表示该用户首次对此题投票。
func (r *QuestionRepository) Vote(ctx context.Context, questionID, userID string, up bool) (q quiz.Question, firstVote bool, err error) {
	value := -1
	if up {
		value = 1
	}
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.Question
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", questionID).First(&row).Error; err != nil {
			return err
		}

		var existing model.QuestionVote
		findErr := tx.Where("question_id = ? AND user_id = ?", questionID, userID).First(&existing).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			firstVote = true
			if err := tx.Create(&model.QuestionVote{QuestionID: questionID, UserID: userID, Value: value}).Error; err != nil {
				return err
			}
			if up {
				row.Upvotes++
			} else {
				row.Downvotes++
			}
		case findErr != nil:
			return findErr
		case existing.Value == value:
			// 重复投同一票不改变计数
		default:
			if err := tx.Model(&existing).Update("value", value).Error; err != nil {
				return err
			}
			if up {
				row.Upvotes++
				row.Downvotes--
			} else {
				row.Downvotes++
				row.Upvotes--
			}
		}

		if err := tx.Model(&row).Updates(map[string]interface{}{
			"upvotes":   row.Upvotes,
			"downvotes": row.Downvotes,
		}).Error; err != nil {
			return err
		}
		q, err = row.ToDomain()
		return err
	})
	return q, firstVote, err
}

// Flag 每个用户对同一道题只计一次举报
func (r *QuestionRepository) Flag(ctx context.Context, questionID, userID, reason string) (int, error) {
	var count int
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&model.QuestionFlag{
			QuestionID: questionID,
			UserID:     userID,
			Reason:     reason,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			if err := tx.Model(&model.Question{}).Where("id = ?", questionID).
				Update("flag_count", gorm.Expr("flag_count + 1")).Error; err != nil {
				return err
			}
		}
		var row model.Question
		if err := tx.Select("flag_count").Where("id = ?", questionID).First(&row).Error; err != nil {
			return err
		}
		count = row.FlagCount
		return nil
	})
	return count, err
}

func (r *QuestionRepository) Archive(ctx context.Context, questionID string) error {
	res := r.DB.WithContext(ctx).Model(&model.Question{}).Where("id = ?", questionID).Update("archived", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *QuestionRepository) SetImage(ctx context.Context, questionID, url string) error {
	return r.DB.WithContext(ctx).Model(&model.Question{}).Where("id = ?", questionID).Update("image_url", url).Error
}
