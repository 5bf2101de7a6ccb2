package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"studyquiz_backend/internal/quiz"
)

type MessageKind string

const (
	MessageQuestion MessageKind = "QUESTION"
	MessageText     MessageKind = "TEXT"
)

// Message 小组消息流，题目以 QUESTION 类型消息发布
type Message struct {
	UUIDBase
	GroupID    string      `gorm:"type:varchar(36);index;not null" json:"groupId"`
	AuthorID   string      `gorm:"type:varchar(36);index" json:"authorId"`
	Kind       MessageKind `gorm:"size:16;not null" json:"kind"`
	Text       string      `gorm:"type:text" json:"text,omitempty"`
	QuestionID *string     `gorm:"type:varchar(36);index" json:"questionId,omitempty"`
	Question   *Question   `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
}

func (Message) TableName() string {
	return "group_messages"
}

// AnswerKey 各题型的标准答案，整体存为 JSON 列
type AnswerKey struct {
	Options           []quiz.Option     `json:"options,omitempty"`
	CorrectOptionIDs  []string          `json:"correctOptionIds,omitempty"`
	AcceptableAnswers []string          `json:"acceptableAnswers,omitempty"`
	PromptItems       []quiz.MatchItem  `json:"promptItems,omitempty"`
	AnswerItems       []quiz.MatchItem  `json:"answerItems,omitempty"`
	CorrectPairs      []quiz.MatchPair  `json:"correctPairs,omitempty"`
	Pins              []quiz.DiagramPin `json:"pins,omitempty"`
}

type Question struct {
	UUIDBase
	GroupID     string            `gorm:"type:varchar(36);index;not null" json:"groupId"`
	AuthorID    string            `gorm:"type:varchar(36);index" json:"authorId"`
	Type        quiz.QuestionType `gorm:"size:32;not null" json:"type"`
	Stem        string            `gorm:"type:text" json:"stem"`
	Explanation string            `gorm:"type:text" json:"explanation"`
	ImageURL    string            `gorm:"size:500" json:"imageUrl"`
	AnswerKey   datatypes.JSON    `json:"answerKey"`
	Tags        datatypes.JSON    `json:"tags"`
	Upvotes     int               `gorm:"default:0" json:"upvotes"`
	Downvotes   int               `gorm:"default:0" json:"downvotes"`
	FlagCount   int               `gorm:"default:0" json:"flagCount"`
	Archived    bool              `gorm:"default:false;index" json:"archived"`
}

func (Question) TableName() string {
	return "questions"
}

// ToDomain 转为引擎使用的题目值
func (q *Question) ToDomain() (quiz.Question, error) {
	var key AnswerKey
	if len(q.AnswerKey) > 0 {
		if err := json.Unmarshal(q.AnswerKey, &key); err != nil {
			return quiz.Question{}, err
		}
	}
	var tags []string
	if len(q.Tags) > 0 {
		if err := json.Unmarshal(q.Tags, &tags); err != nil {
			return quiz.Question{}, err
		}
	}
	return quiz.Question{
		ID:                q.ID,
		GroupID:           q.GroupID,
		AuthorID:          q.AuthorID,
		Stem:              q.Stem,
		Explanation:       q.Explanation,
		Type:              q.Type,
		Options:           key.Options,
		CorrectOptionIDs:  key.CorrectOptionIDs,
		AcceptableAnswers: key.AcceptableAnswers,
		PromptItems:       key.PromptItems,
		AnswerItems:       key.AnswerItems,
		CorrectPairs:      key.CorrectPairs,
		ImageURL:          q.ImageURL,
		Pins:              key.Pins,
		Tags:              tags,
		Upvotes:           q.Upvotes,
		Downvotes:         q.Downvotes,
		Archived:          q.Archived,
		CreatedAt:         q.CreatedAt,
	}, nil
}

// QuestionFromDomain 由引擎题目构造持久化行
func QuestionFromDomain(q quiz.Question) (*Question, error) {
	key, err := json.Marshal(AnswerKey{
		Options:           q.Options,
		CorrectOptionIDs:  q.CorrectOptionIDs,
		AcceptableAnswers: q.AcceptableAnswers,
		PromptItems:       q.PromptItems,
		AnswerItems:       q.AnswerItems,
		CorrectPairs:      q.CorrectPairs,
		Pins:              q.Pins,
	})
	if err != nil {
		return nil, err
	}
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}
	tagJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, err
	}
	return &Question{
		UUIDBase:    UUIDBase{ID: q.ID},
		GroupID:     q.GroupID,
		AuthorID:    q.AuthorID,
		Type:        q.Type,
		Stem:        q.Stem,
		Explanation: q.Explanation,
		ImageURL:    q.ImageURL,
		AnswerKey:   datatypes.JSON(key),
		Tags:        datatypes.JSON(tagJSON),
		Upvotes:     q.Upvotes,
		Downvotes:   q.Downvotes,
		Archived:    q.Archived,
	}, nil
}

// QuestionVote 每个用户对每道题只保留一票，Value 为 +1 或 -1
type QuestionVote struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestionID string    `gorm:"type:varchar(36);uniqueIndex:idx_vote_question_user;not null" json:"questionId"`
	UserID     string    `gorm:"type:varchar(36);uniqueIndex:idx_vote_question_user;not null" json:"userId"`
	Value      int       `gorm:"not null" json:"value"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (QuestionVote) TableName() string {
	return "question_votes"
}

type QuestionFlag struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	QuestionID string    `gorm:"type:varchar(36);uniqueIndex:idx_flag_question_user;not null" json:"questionId"`
	UserID     string    `gorm:"type:varchar(36);uniqueIndex:idx_flag_question_user;not null" json:"userId"`
	Reason     string    `gorm:"size:255" json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (QuestionFlag) TableName() string {
	return "question_flags"
}
