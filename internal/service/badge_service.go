package service

import (
	"context"

	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/pkg/logger"

	"go.uber.org/zap"
)

// RankedUser 排行榜展示项
type RankedUser struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Points int    `json:"points"`
}

// BadgeService 徽章查询与积分排行
type BadgeService struct {
	Badges      BadgeLedger
	Stats       StatStore
	Users       UserStore
	Leaderboard Leaderboard
	Defs        []quiz.BadgeDefinition
}

func NewBadgeService(badges BadgeLedger, stats StatStore, users UserStore, leaderboard Leaderboard, defs []quiz.BadgeDefinition) *BadgeService {
	if defs == nil {
		defs = quiz.DefaultBadgeDefinitions()
	}
	return &BadgeService{Badges: badges, Stats: stats, Users: users, Leaderboard: leaderboard, Defs: defs}
}

func (s *BadgeService) Definitions() []quiz.BadgeDefinition {
	return s.Defs
}

// UserBadges 用户已获得的徽章和累计指标
func (s *BadgeService) UserBadges(ctx context.Context, userID string) ([]quiz.Badge, quiz.UserStats, error) {
	badges, err := s.Badges.List(ctx, userID, s.Defs)
	if err != nil {
		return nil, nil, err
	}
	stats, err := s.Stats.Metrics(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return badges, stats, nil
}

// Top 积分排行前 n 名；redis 不可用时返回空列表
func (s *BadgeService) Top(ctx context.Context, n int) ([]RankedUser, error) {
	entries, err := s.Leaderboard.Top(ctx, n)
	if err != nil {
		logger.Log.Warn("Leaderboard read failed", zap.Error(err))
		return []RankedUser{}, nil
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UserID)
	}
	users, err := s.Users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[string]int, len(users))
	for i, u := range users {
		names[u.ID] = i
	}
	out := make([]RankedUser, 0, len(entries))
	for _, e := range entries {
		r := RankedUser{Rank: e.Rank, UserID: e.UserID, Points: e.Points}
		if i, ok := names[e.UserID]; ok {
			r.Name = users[i].Name
			r.Avatar = users[i].Avatar
		}
		out = append(out, r)
	}
	return out, nil
}

// RankOf 用户自己的名次
func (s *BadgeService) RankOf(ctx context.Context, userID string) (RankedUser, bool, error) {
	e, ok, err := s.Leaderboard.RankOf(ctx, userID)
	if err != nil || !ok {
		return RankedUser{}, ok, err
	}
	return RankedUser{Rank: e.Rank, UserID: e.UserID, Points: e.Points}, true, nil
}
