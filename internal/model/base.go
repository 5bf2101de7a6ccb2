package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// swagger:model
type UUIDBase struct {
	ID        string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (b *UUIDBase) BeforeCreate(tx *gorm.DB) (err error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return
}

func GenerateUUID() string {
	return uuid.New().String()
}

// All 需要 AutoMigrate 的模型
func All() []interface{} {
	return []interface{}{
		&User{},
		&StudyGroup{},
		&GroupMember{},
		&Message{},
		&Question{},
		&QuestionVote{},
		&QuestionFlag{},
		&UserQuestionStat{},
		&UserMetric{},
		&UserBadge{},
		&SessionResult{},
		&PendingSync{},
		&GameRecord{},
	}
}
