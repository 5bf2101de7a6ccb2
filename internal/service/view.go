package service

import (
	"time"

	"studyquiz_backend/internal/game"
	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/session"
)

// QuestionView 下发给客户端的题目，未判分前不含答案
type QuestionView struct {
	quiz.Question
	Number int           `json:"questionNumber"`
	Labels []quiz.Option `json:"labels,omitempty"`
}

type SessionView struct {
	ID               string                       `json:"id"`
	UserID           string                       `json:"userId"`
	GroupID          string                       `json:"groupId"`
	Mode             quiz.Mode                    `json:"mode"`
	State            session.State                `json:"state"`
	Cursor           int                          `json:"currentIndex"`
	Questions        []QuestionView               `json:"questions"`
	Answers          map[string]quiz.AnswerRecord `json:"answers"`
	StartedAt        time.Time                    `json:"startedAt"`
	EndsAt           *time.Time                   `json:"endsAt,omitempty"`
	RemainingSeconds int                          `json:"remainingSeconds"`
	Offline          bool                         `json:"offline"`
	AutoSubmitted    bool                         `json:"autoSubmitted"`
	Result           *quiz.SessionResult          `json:"result,omitempty"`
}

func questionView(q quiz.SessionQuestion, reveal bool) QuestionView {
	v := QuestionView{Number: q.Number}
	if q.Type == quiz.DiagramLabeling {
		v.Labels = q.PinLabels()
	}
	if reveal {
		v.Question = q.Question
	} else {
		v.Question = q.Redacted()
	}
	return v
}

// NewSessionView 测试模式提交前隐藏全部答案；学习模式逐题在判分后展示
func NewSessionView(s session.Session, now time.Time) SessionView {
	v := SessionView{
		ID:               s.ID,
		UserID:           s.UserID,
		GroupID:          s.GroupID,
		Mode:             s.Mode,
		State:            s.State,
		Cursor:           s.Cursor,
		Questions:        make([]QuestionView, 0, len(s.Questions)),
		Answers:          make(map[string]quiz.AnswerRecord, len(s.Answers)),
		StartedAt:        s.StartedAt,
		EndsAt:           s.EndsAt,
		RemainingSeconds: int(s.Remaining(now) / time.Second),
		Offline:          s.Offline,
		AutoSubmitted:    s.AutoSubmitted,
	}
	submitted := s.State == session.StateSubmitted
	for _, q := range s.Questions {
		rec := s.Record(q.ID)
		reveal := submitted || (s.Mode == quiz.ModeStudy && rec.IsCorrect != nil)
		v.Questions = append(v.Questions, questionView(q, reveal))
		v.Answers[q.ID] = rec
	}
	if res, ok := s.Result(); ok {
		v.Result = &res
	}
	return v
}

type TimelineView struct {
	Entries          map[string]game.Entry `json:"entries"`
	Score            int                   `json:"score"`
	TotalTimeSeconds float64               `json:"totalTimeSeconds"`
}

type GameView struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	OpponentID string         `json:"opponentId"`
	Questions  []QuestionView `json:"questions"`
	User       TimelineView   `json:"user"`
	Opponent   TimelineView   `json:"opponent"`
	StartedAt  time.Time      `json:"startedAt"`
	Complete   bool           `json:"complete"`
	WinnerID   string         `json:"winnerId,omitempty"`
	Draw       bool           `json:"draw"`
	FinishedAt *time.Time     `json:"finishedAt,omitempty"`
}

func timelineView(t game.Timeline) TimelineView {
	return TimelineView{Entries: t.Entries, Score: t.Score, TotalTimeSeconds: t.TotalTime.Seconds()}
}

// NewGameView 对局结束前不下发答案
func NewGameView(g game.Game) GameView {
	v := GameView{
		ID:         g.ID,
		UserID:     g.UserID,
		OpponentID: g.OpponentID,
		Questions:  make([]QuestionView, 0, len(g.Questions)),
		User:       timelineView(g.User),
		Opponent:   timelineView(g.Opponent),
		StartedAt:  g.StartedAt,
		Complete:   g.Complete,
		WinnerID:   g.WinnerID,
		Draw:       g.Draw,
	}
	for _, q := range g.Questions {
		v.Questions = append(v.Questions, questionView(q, g.Complete))
	}
	if g.Complete {
		at := g.FinishedAt
		v.FinishedAt = &at
	}
	return v
}
