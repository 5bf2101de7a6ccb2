package model

import (
	"time"

	"gorm.io/datatypes"
)

// UserQuestionStat 用户对单题的答题计数，只增不减
type UserQuestionStat struct {
	ID                uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            string    `gorm:"type:varchar(36);uniqueIndex:idx_stat_user_question;not null" json:"userId"`
	QuestionID        string    `gorm:"type:varchar(36);uniqueIndex:idx_stat_user_question;not null" json:"questionId"`
	CorrectAttempts   int       `gorm:"default:0" json:"correctAttempts"`
	IncorrectAttempts int       `gorm:"default:0" json:"incorrectAttempts"`
	LastAttemptedAt   time.Time `json:"lastAttemptedAt"`
}

func (UserQuestionStat) TableName() string {
	return "user_question_stats"
}

// UserMetric 徽章追踪的累计指标
type UserMetric struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:varchar(36);uniqueIndex:idx_metric_user_name;not null" json:"userId"`
	Metric    string    `gorm:"size:64;uniqueIndex:idx_metric_user_name;not null" json:"metric"`
	Value     int       `gorm:"default:0" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (UserMetric) TableName() string {
	return "user_metrics"
}

// UserBadge 每个已达到的等级一条记录
type UserBadge struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        string    `gorm:"type:varchar(36);uniqueIndex:idx_badge_user_def_level;not null" json:"userId"`
	DefinitionKey string    `gorm:"size:64;uniqueIndex:idx_badge_user_def_level;not null" json:"definitionKey"`
	Level         int       `gorm:"uniqueIndex:idx_badge_user_def_level;not null" json:"level"`
	Points        int       `json:"points"`
	AwardedAt     time.Time `json:"awardedAt"`
}

func (UserBadge) TableName() string {
	return "user_badges"
}

// SessionResult 练习历史，Snapshot 保存完整题目与作答
type SessionResult struct {
	UUIDBase
	SessionID      string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"sessionId"`
	UserID         string         `gorm:"type:varchar(36);index;not null" json:"userId"`
	GroupID        string         `gorm:"type:varchar(36);index" json:"groupId"`
	Mode           string         `gorm:"size:16" json:"mode"`
	CorrectCount   int            `json:"correctCount"`
	TotalQuestions int            `json:"totalQuestions"`
	Score          float64        `json:"score"`
	AutoSubmitted  bool           `json:"autoSubmitted"`
	Offline        bool           `json:"offline"`
	StartedAt      time.Time      `json:"startedAt"`
	SubmittedAt    time.Time      `gorm:"index" json:"submittedAt"`
	Snapshot       datatypes.JSON `json:"snapshot"`
	// 徽章指标是否已按本次结果累加
	ProgressApplied bool `gorm:"not null;default:false" json:"-"`
}

func (SessionResult) TableName() string {
	return "session_results"
}

// PendingSync 离线完成、尚未并入统计的结果
type PendingSync struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string         `gorm:"type:varchar(36);index;not null" json:"userId"`
	SessionID string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"sessionId"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
	SyncedAt  *time.Time     `gorm:"index" json:"syncedAt,omitempty"`
}

func (PendingSync) TableName() string {
	return "pending_sync"
}

// GameRecord 对战结果
type GameRecord struct {
	UUIDBase
	UserID         string         `gorm:"type:varchar(36);index;not null" json:"userId"`
	OpponentID     string         `gorm:"size:64" json:"opponentId"`
	GroupID        string         `gorm:"type:varchar(36);index" json:"groupId"`
	WinnerID       string         `gorm:"size:64" json:"winnerId"`
	Draw           bool           `json:"draw"`
	UserScore      int            `json:"userScore"`
	OpponentScore  int            `json:"opponentScore"`
	UserTimeMs     int64          `json:"userTimeMs"`
	OpponentTimeMs int64          `json:"opponentTimeMs"`
	FinishedAt     time.Time      `json:"finishedAt"`
	Snapshot       datatypes.JSON `json:"snapshot"`
}

func (GameRecord) TableName() string {
	return "game_records"
}
