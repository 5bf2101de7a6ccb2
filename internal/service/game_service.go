package service

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"studyquiz_backend/internal/game"
	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/selection"
	"studyquiz_backend/internal/util"
	"studyquiz_backend/pkg/logger"
	"studyquiz_backend/pkg/monitoring"
	"studyquiz_backend/pkg/tracing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// OpponentID 模拟对手的固定 id
const OpponentID = "quiz-bot"

// GameRequest 发起对局的参数
type GameRequest struct {
	GroupID       string              `json:"groupId" binding:"required"`
	QuestionCount int                 `json:"questionCount" binding:"required,min=1"`
	AllowedTypes  []quiz.QuestionType `json:"allowedTypes"`
	TagFilter     []string            `json:"tagFilter"`
}

type liveGame struct {
	match   *game.Match
	groupID string
	userID  string
	request GameRequest
	// 对局结束时间，零值表示进行中
	finishedAt time.Time
}

// GameService 管理与模拟对手的对局
type GameService struct {
	Groups   GroupStore
	Messages selection.MessageRegistry
	Stats    StatStore
	Games    GameStore
	Progress *ProgressService
	Notifier Notifier
	Settings *Settings

	sampler *selection.Sampler
	clock   clockwork.Clock
	seed    func() int64

	mu    sync.Mutex
	games map[string]*liveGame
}

func NewGameService(groups GroupStore, messages selection.MessageRegistry, stats StatStore, games GameStore,
	progress *ProgressService, notifier Notifier, settings *Settings, sampler *selection.Sampler, clk clockwork.Clock) *GameService {
	if sampler == nil {
		sampler = selection.NewSampler()
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &GameService{
		Groups:   groups,
		Messages: messages,
		Stats:    stats,
		Games:    games,
		Progress: progress,
		Notifier: notifier,
		Settings: settings,
		sampler:  sampler,
		clock:    clk,
		seed:     func() int64 { return time.Now().UnixNano() },
		games:    make(map[string]*liveGame),
	}
}

func (s *GameService) drawQuestions(ctx context.Context, userID string, req GameRequest) ([]quiz.SessionQuestion, error) {
	if req.GroupID == "" {
		return nil, util.ErrNoGroup
	}
	if req.QuestionCount <= 0 {
		return nil, util.ErrInvalidConfig
	}
	if max := s.Settings.Get().MaxQuestionCount; max > 0 && req.QuestionCount > max {
		return nil, util.ErrInvalidConfig
	}
	member, err := s.Groups.IsMember(ctx, req.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, util.ErrForbidden
	}
	builder := selection.NewPoolBuilder(s.Groups, s.Messages, s.Stats, s.Settings.Get().QuorumRatio)
	pool, err := builder.Build(ctx, []string{req.GroupID}, req.AllowedTypes, req.TagFilter)
	if err != nil {
		return nil, err
	}
	questions, err := s.sampler.Sample(pool, req.QuestionCount, quiz.PolicyCompetitive, nil)
	if errors.Is(err, selection.ErrInsufficientPool) {
		monitoring.InsufficientPool.Inc()
	}
	return questions, err
}

// StartGame 抽题并开始对局，对手的作答由计时器驱动
func (s *GameService) StartGame(ctx context.Context, userID string, req GameRequest) (game.Game, error) {
	ctx, span := tracing.StartSpan(ctx, "GameService.StartGame",
		attribute.String("group.id", req.GroupID),
		attribute.Int("question_count", req.QuestionCount))
	defer span.End()

	questions, err := s.drawQuestions(ctx, userID, req)
	if err != nil {
		tracing.RecordError(span, err)
		return game.Game{}, err
	}

	g := game.New(uuid.NewString(), userID, OpponentID, questions, s.clock.Now())
	lg := &liveGame{groupID: req.GroupID, userID: userID, request: req}
	rng := rand.New(rand.NewSource(s.seed()))
	lg.match = game.NewMatch(g, s.clock, rng, s.Settings.Opponent(), func(ev game.Event) {
		s.onEvent(lg, ev)
	})

	s.mu.Lock()
	s.games[g.ID] = lg
	s.mu.Unlock()
	lg.match.Start()

	logger.Log.Info("Game started",
		zap.String("game_id", g.ID),
		zap.String("user_id", userID),
		zap.Int("questions", len(questions)))
	return lg.match.Snapshot(), nil
}

func (s *GameService) lookup(userID, gameID string) (*liveGame, error) {
	s.mu.Lock()
	lg, ok := s.games[gameID]
	s.mu.Unlock()
	if !ok {
		return nil, util.ErrGameNotFound
	}
	if lg.userID != userID {
		return nil, util.ErrForbidden
	}
	return lg, nil
}

func (s *GameService) Get(ctx context.Context, userID, gameID string) (game.Game, error) {
	lg, err := s.lookup(userID, gameID)
	if err != nil {
		return game.Game{}, err
	}
	return lg.match.Snapshot(), nil
}

// Answer 记录用户作答，用时由服务端时钟计算
func (s *GameService) Answer(ctx context.Context, userID, gameID, questionID string, answer quiz.Answer) (game.Game, error) {
	lg, err := s.lookup(userID, gameID)
	if err != nil {
		return game.Game{}, err
	}
	return lg.match.AnswerUser(questionID, answer)
}

// Rematch 用新抽取的题目在同一对局上重新开始，旧对局的对手作答会被丢弃
func (s *GameService) Rematch(ctx context.Context, userID, gameID string) (game.Game, error) {
	lg, err := s.lookup(userID, gameID)
	if err != nil {
		return game.Game{}, err
	}
	questions, err := s.drawQuestions(ctx, userID, lg.request)
	if err != nil {
		return game.Game{}, err
	}
	g := game.New(uuid.NewString(), userID, OpponentID, questions, s.clock.Now())

	s.mu.Lock()
	delete(s.games, gameID)
	lg.finishedAt = time.Time{}
	s.games[g.ID] = lg
	s.mu.Unlock()

	lg.match.Rematch(g)
	logger.Log.Info("Game rematch", zap.String("previous_game_id", gameID), zap.String("game_id", g.ID))
	return lg.match.Snapshot(), nil
}

// Leave 结束对局并停止对手计时器
func (s *GameService) Leave(ctx context.Context, userID, gameID string) error {
	lg, err := s.lookup(userID, gameID)
	if err != nil {
		return err
	}
	lg.match.Stop()
	s.mu.Lock()
	delete(s.games, gameID)
	s.mu.Unlock()
	if g := lg.match.Snapshot(); !g.Complete {
		monitoring.GamesFinished.WithLabelValues("abandoned").Inc()
	}
	return nil
}

// Sweep 清理已结束超过 maxAge 的对局
func (s *GameService) Sweep(maxAge time.Duration) int {
	cutoff := s.clock.Now().Add(-maxAge)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, lg := range s.games {
		if !lg.finishedAt.IsZero() && lg.finishedAt.Before(cutoff) {
			delete(s.games, id)
			removed++
		}
	}
	return removed
}

// Shutdown 停止所有对局
func (s *GameService) Shutdown() {
	s.mu.Lock()
	games := s.games
	s.games = make(map[string]*liveGame)
	s.mu.Unlock()
	for _, lg := range games {
		lg.match.Stop()
	}
}

func (s *GameService) onEvent(lg *liveGame, ev game.Event) {
	if s.Notifier != nil {
		msgType := EventGameAnswer
		if ev.Type == game.EventComplete {
			msgType = EventGameComplete
		}
		s.Notifier.PushToUser(ev.Game.UserID, EventMessage{Type: msgType, Data: gameEventView{
			Side:       ev.Side,
			QuestionID: ev.QuestionID,
			Correct:    ev.Correct,
			Game:       NewGameView(ev.Game),
		}})
	}
	if ev.Type == game.EventComplete {
		s.mu.Lock()
		lg.finishedAt = s.clock.Now()
		s.mu.Unlock()
		s.finish(lg.groupID, ev.Game)
	}
}

type gameEventView struct {
	Side       game.Side `json:"side,omitempty"`
	QuestionID string    `json:"questionId,omitempty"`
	Correct    bool      `json:"correct"`
	Game       GameView  `json:"game"`
}

// finish 保存对局结果并更新徽章指标
func (s *GameService) finish(groupID string, g game.Game) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	result := "lost"
	switch {
	case g.Draw:
		result = "draw"
	case g.UserWon():
		result = "won"
	}
	monitoring.GamesFinished.WithLabelValues(result).Inc()

	if s.Games != nil {
		if err := s.Games.SaveGame(ctx, groupID, g); err != nil {
			logger.Log.Error("Save game failed", zap.String("game_id", g.ID), zap.Error(err))
		}
	}
	if s.Progress != nil {
		deltas := map[quiz.Metric]int{quiz.MetricGamesPlayed: 1}
		if g.UserWon() {
			deltas[quiz.MetricGamesWon] = 1
		}
		if _, err := s.Progress.Apply(ctx, g.UserID, deltas); err != nil {
			logger.Log.Error("Apply game progress failed", zap.String("game_id", g.ID), zap.Error(err))
		}
	}
	logger.Log.Info("Game finished",
		zap.String("game_id", g.ID),
		zap.String("result", result),
		zap.Int("user_score", g.User.Score),
		zap.Int("opponent_score", g.Opponent.Score))
}

func (s *GameService) Recent(ctx context.Context, userID string, limit int) ([]model.GameRecord, error) {
	return s.Games.RecentGames(ctx, userID, limit)
}

// socketAnswer websocket 上行的作答消息
type socketAnswer struct {
	GameID     string      `json:"gameId"`
	QuestionID string      `json:"questionId"`
	Answer     quiz.Answer `json:"answer"`
}

// HandleSocketAnswer 注册到 EventHub，处理 GAME_ANSWER 消息
func (s *GameService) HandleSocketAnswer(userID string, msg InboundMessage) *EventMessage {
	var req socketAnswer
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		return &EventMessage{Type: EventError, Data: map[string]string{"message": "invalid answer payload"}}
	}
	// 成功时 Match 事件已推送最新状态
	if _, err := s.Answer(context.Background(), userID, req.GameID, req.QuestionID, req.Answer); err != nil {
		return &EventMessage{Type: EventError, Data: map[string]string{"message": err.Error(), "gameId": req.GameID}}
	}
	return nil
}
