package service

import (
	"context"
	"sync"
	"time"

	"studyquiz_backend/internal/progression"
	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/pkg/logger"
	"studyquiz_backend/pkg/monitoring"
	"studyquiz_backend/pkg/tracing"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ProgressService 累加用户指标并发放徽章
type ProgressService struct {
	Stats       StatStore
	Badges      BadgeLedger
	Leaderboard Leaderboard
	Points      PointStore
	Notifier    Notifier
	Defs        []quiz.BadgeDefinition
	now         func() time.Time

	// 同一用户的读改写需要串行
	locks sync.Map
}

func NewProgressService(stats StatStore, badges BadgeLedger, leaderboard Leaderboard, notifier Notifier, defs []quiz.BadgeDefinition) *ProgressService {
	if defs == nil {
		defs = quiz.DefaultBadgeDefinitions()
	}
	return &ProgressService{
		Stats:       stats,
		Badges:      badges,
		Leaderboard: leaderboard,
		Notifier:    notifier,
		Defs:        defs,
		now:         time.Now,
	}
}

func (s *ProgressService) userLock(userID string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Apply 累加指标并发放新达到的徽章等级
func (s *ProgressService) Apply(ctx context.Context, userID string, deltas map[quiz.Metric]int) ([]progression.Award, error) {
	ctx, span := tracing.StartSpan(ctx, "ProgressService.Apply", attribute.String("user.id", userID))
	defer span.End()

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	stats, err := s.Stats.Metrics(ctx, userID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	earned, err := s.Badges.Earned(ctx, userID)
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	out := progression.ApplyStatDeltas(stats, earned, s.Defs, deltas)

	touched := make(quiz.UserStats, len(deltas))
	for metric, d := range deltas {
		if d > 0 {
			touched[metric] = out.Stats[metric]
		}
	}
	if err := s.Stats.SaveMetrics(ctx, userID, touched); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	if err := s.commit(ctx, userID, out); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}
	return out.Awards, nil
}

// ApplyRisingStar 作者的题目获得新的赞时调用
func (s *ProgressService) ApplyRisingStar(ctx context.Context, authorID string, upvotes int) ([]progression.Award, error) {
	var def quiz.BadgeDefinition
	found := false
	for _, d := range s.Defs {
		if d.Key == quiz.RisingStarKey {
			def, found = d, true
			break
		}
	}
	if !found {
		return nil, nil
	}

	mu := s.userLock(authorID)
	mu.Lock()
	defer mu.Unlock()

	earned, err := s.Badges.Earned(ctx, authorID)
	if err != nil {
		return nil, err
	}
	out := progression.ApplyRisingStar(upvotes, earned, def)
	if err := s.commit(ctx, authorID, out); err != nil {
		return nil, err
	}
	return out.Awards, nil
}

func (s *ProgressService) commit(ctx context.Context, userID string, out progression.Outcome) error {
	if len(out.Awards) == 0 {
		return nil
	}
	if err := s.Badges.Award(ctx, userID, out.Awards, s.now()); err != nil {
		return err
	}
	if s.Points != nil && out.Points > 0 {
		if err := s.Points.AddPoints(ctx, userID, out.Points); err != nil {
			return err
		}
	}
	if s.Leaderboard != nil {
		if err := s.Leaderboard.AddPoints(ctx, userID, out.Points); err != nil {
			// 排行榜可由数据库积分重建，这里只记录
			logger.Log.Warn("Leaderboard update failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	for _, a := range out.Awards {
		monitoring.BadgesAwarded.WithLabelValues(a.DefinitionKey).Inc()
		logger.Log.Info("Badge awarded",
			zap.String("user_id", userID),
			zap.String("badge", a.DefinitionKey),
			zap.Int("level", a.Level))
	}
	if s.Notifier != nil {
		s.Notifier.PushToUser(userID, EventMessage{Type: EventBadgeAwarded, Data: out.Awards})
	}
	return nil
}
