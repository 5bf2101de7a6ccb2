package service

import (
	"context"
	"time"

	"studyquiz_backend/internal/game"
	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/progression"
	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/repository"
	"studyquiz_backend/internal/selection"
	"studyquiz_backend/internal/session"
)

// 以下接口由 repository 包实现，测试中以内存版本替换

type GroupStore interface {
	selection.GroupRegistry
	Subgroups(ctx context.Context, parentID string) ([]string, error)
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	RoleOf(ctx context.Context, groupID, userID string) (model.GroupRole, bool, error)
}

type GroupAdmin interface {
	GroupStore
	Create(ctx context.Context, group *model.StudyGroup) error
	FindByID(ctx context.Context, id string) (*model.StudyGroup, error)
	Members(ctx context.Context, groupID string) ([]model.GroupMember, error)
	Join(ctx context.Context, groupID, userID string) error
	SetRole(ctx context.Context, groupID, userID string, role model.GroupRole) error
	Leave(ctx context.Context, groupID, userID string) error
}

type StatStore interface {
	selection.StatSource
	Metrics(ctx context.Context, userID string) (quiz.UserStats, error)
	SaveMetrics(ctx context.Context, userID string, stats quiz.UserStats) error
}

type BadgeLedger interface {
	Earned(ctx context.Context, userID string) (progression.Earned, error)
	Award(ctx context.Context, userID string, awards []progression.Award, at time.Time) error
	List(ctx context.Context, userID string, defs []quiz.BadgeDefinition) ([]quiz.Badge, error)
}

// ResultStore 以会话 id 去重：SaveResult 只在首次写入时累加答题计数，
// 返回该会话的徽章进度是否已经应用
type ResultStore interface {
	SaveResult(ctx context.Context, res quiz.SessionResult) (progressApplied bool, err error)
	MarkProgressApplied(ctx context.Context, sessionID string) error
	History(ctx context.Context, userID string, limit int) ([]quiz.SessionResult, error)
	EnqueuePending(ctx context.Context, res quiz.SessionResult) error
	PendingFor(ctx context.Context, userID string) ([]quiz.SessionResult, error)
	MarkSynced(ctx context.Context, sessionIDs []string) error
}

type GameStore interface {
	SaveGame(ctx context.Context, groupID string, g game.Game) error
	RecentGames(ctx context.Context, userID string, limit int) ([]model.GameRecord, error)
}

type QuestionStore interface {
	FindByID(ctx context.Context, id string) (quiz.Question, error)
	ListByGroup(ctx context.Context, groupID string, includeArchived bool) ([]quiz.Question, error)
	Vote(ctx context.Context, questionID, userID string, up bool) (quiz.Question, bool, error)
	Flag(ctx context.Context, questionID, userID, reason string) (int, error)
	Archive(ctx context.Context, questionID string) error
	SetImage(ctx context.Context, questionID, url string) error
}

type QuestionPoster interface {
	PostQuestion(ctx context.Context, q quiz.Question) (quiz.Question, error)
}

type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

// PointStore 用户积分的持久化记录，排行榜可由它重建
type PointStore interface {
	AddPoints(ctx context.Context, userID string, points int) error
}

type Leaderboard interface {
	AddPoints(ctx context.Context, userID string, points int) error
	Top(ctx context.Context, n int) ([]repository.LeaderboardEntry, error)
	RankOf(ctx context.Context, userID string) (repository.LeaderboardEntry, bool, error)
}

type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s session.Session) error
	LoadSnapshot(ctx context.Context, sessionID string) (session.Session, bool, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error
}

// Notifier 向在线用户推送事件
type Notifier interface {
	PushToUser(userID string, msg EventMessage)
}
