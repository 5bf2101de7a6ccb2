package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/selection"
	"studyquiz_backend/internal/session"
	"studyquiz_backend/internal/util"
	"studyquiz_backend/pkg/logger"
	"studyquiz_backend/pkg/monitoring"
	"studyquiz_backend/pkg/tracing"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// persistTimeout 会话结束回调在计时器协程中执行，没有请求上下文
const persistTimeout = 10 * time.Second

// PracticeService 管理测试与学习会话
type PracticeService struct {
	Groups    GroupStore
	Messages  selection.MessageRegistry
	Stats     StatStore
	Results   ResultStore
	Snapshots SnapshotStore
	Progress  *ProgressService
	Notifier  Notifier
	Settings  *Settings

	sampler *selection.Sampler
	clock   clockwork.Clock

	mu   sync.Mutex
	live map[string]*session.Controller
}

func NewPracticeService(groups GroupStore, messages selection.MessageRegistry, stats StatStore, results ResultStore,
	snapshots SnapshotStore, progress *ProgressService, notifier Notifier, settings *Settings,
	sampler *selection.Sampler, clk clockwork.Clock) *PracticeService {
	if sampler == nil {
		sampler = selection.NewSampler()
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &PracticeService{
		Groups:    groups,
		Messages:  messages,
		Stats:     stats,
		Results:   results,
		Snapshots: snapshots,
		Progress:  progress,
		Notifier:  notifier,
		Settings:  settings,
		sampler:   sampler,
		clock:     clk,
		live:      make(map[string]*session.Controller),
	}
}

// validate 在创建会话前同步检查配置
func (s *PracticeService) validate(mode quiz.Mode, cfg quiz.SessionConfig) error {
	if mode != quiz.ModeTest && mode != quiz.ModeStudy {
		return fmt.Errorf("%w: unsupported mode %q", util.ErrInvalidConfig, mode)
	}
	policy := cfg.EffectivePolicy()
	switch policy {
	case quiz.PolicyNormal, quiz.PolicySpacedRepetition, quiz.PolicyCustom:
	default:
		return fmt.Errorf("%w: unsupported policy %q", util.ErrInvalidConfig, policy)
	}
	if cfg.GroupID == "" && policy != quiz.PolicySpacedRepetition {
		return util.ErrNoGroup
	}
	if policy == quiz.PolicyNormal && len(cfg.AllowedTypes) == 0 {
		return util.ErrNoAllowedTypes
	}
	for _, t := range cfg.AllowedTypes {
		if !t.Valid() {
			return fmt.Errorf("%w: unknown question type %q", util.ErrInvalidConfig, t)
		}
	}
	settings := s.Settings.Get()
	if policy != quiz.PolicyCustom {
		if cfg.QuestionCount <= 0 {
			return fmt.Errorf("%w: questionCount must be positive", util.ErrInvalidConfig)
		}
		if settings.MaxQuestionCount > 0 && cfg.QuestionCount > settings.MaxQuestionCount {
			return fmt.Errorf("%w: questionCount above %d", util.ErrInvalidConfig, settings.MaxQuestionCount)
		}
	} else if len(cfg.QuestionIDs) == 0 {
		return fmt.Errorf("%w: custom policy needs questionIds", util.ErrInvalidConfig)
	}
	if cfg.TimerDuration < 0 || (settings.MaxTimer > 0 && cfg.TimerDuration > settings.MaxTimer) {
		return fmt.Errorf("%w: timer out of range", util.ErrInvalidConfig)
	}
	return nil
}

// scope 返回会话覆盖的小组：目标小组及其选中的子小组
func (s *PracticeService) scope(ctx context.Context, userID string, cfg quiz.SessionConfig) ([]string, error) {
	if cfg.GroupID == "" {
		return nil, nil
	}
	member, err := s.Groups.IsMember(ctx, cfg.GroupID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, util.ErrForbidden
	}
	groupIDs := []string{cfg.GroupID}
	if len(cfg.IncludeSubgroupIDs) == 0 {
		return groupIDs, nil
	}
	children, err := s.Groups.Subgroups(ctx, cfg.GroupID)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]bool, len(children))
	for _, id := range children {
		allowed[id] = true
	}
	for _, id := range cfg.IncludeSubgroupIDs {
		if !allowed[id] {
			return nil, fmt.Errorf("%w: %s is not a subgroup of %s", util.ErrInvalidConfig, id, cfg.GroupID)
		}
		groupIDs = append(groupIDs, id)
	}
	return groupIDs, nil
}

// StartSession 选题并创建会话
func (s *PracticeService) StartSession(ctx context.Context, userID string, mode quiz.Mode, cfg quiz.SessionConfig) (session.Session, error) {
	policy := cfg.EffectivePolicy()
	ctx, span := tracing.StartSpan(ctx, "PracticeService.StartSession",
		attribute.String("mode", string(mode)),
		attribute.String("policy", string(policy)),
		attribute.Int("question_count", cfg.QuestionCount))
	defer span.End()

	if err := s.validate(mode, cfg); err != nil {
		return session.Session{}, err
	}
	groupIDs, err := s.scope(ctx, userID, cfg)
	if err != nil {
		return session.Session{}, err
	}

	settings := s.Settings.Get()
	builder := selection.NewPoolBuilder(s.Groups, s.Messages, s.Stats, settings.QuorumRatio)

	var pool []quiz.Question
	var stats map[string]quiz.UserQuestionStat
	count := cfg.QuestionCount
	switch policy {
	case quiz.PolicySpacedRepetition:
		pool, err = builder.BuildSpacedRepetition(ctx, userID, cfg.AllowedTypes, cfg.TagFilter)
	case quiz.PolicyCustom:
		pool, err = builder.BuildCustom(ctx, groupIDs, cfg.QuestionIDs)
		if count <= 0 {
			count = len(cfg.QuestionIDs)
		}
	default:
		pool, err = builder.Build(ctx, groupIDs, cfg.AllowedTypes, cfg.TagFilter)
		if err == nil {
			stats, err = s.Stats.StatsForUser(ctx, userID)
		}
	}
	if err != nil {
		tracing.RecordError(span, err)
		return session.Session{}, err
	}

	questions, err := s.sampler.Sample(pool, count, policy, stats)
	if err != nil {
		if errors.Is(err, selection.ErrInsufficientPool) {
			monitoring.InsufficientPool.Inc()
		}
		return session.Session{}, err
	}

	sess := session.New(uuid.NewString(), userID, cfg.GroupID, mode, questions, s.clock.Now(), cfg.TimerDuration, cfg.Offline)
	// 快照先于计时器写入，截止回调不会早于首个快照
	s.saveSnapshot(ctx, sess)
	s.track(sess)

	monitoring.SessionsStarted.WithLabelValues(string(mode), string(policy)).Inc()
	logger.Log.Info("Session started",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
		zap.String("mode", string(mode)),
		zap.String("policy", string(policy)),
		zap.Int("questions", len(questions)))
	return sess, nil
}

// track 为会话启动控制器并登记
func (s *PracticeService) track(sess session.Session) *session.Controller {
	ctrl := s.newController(sess)
	s.mu.Lock()
	s.live[sess.ID] = ctrl
	s.mu.Unlock()
	monitoring.LiveSessions.Inc()
	return ctrl
}

func (s *PracticeService) newController(sess session.Session) *session.Controller {
	return session.NewController(sess, s.clock, s.Settings.Get().Tick(), session.Hooks{
		OnSubmitted: s.onSubmitted,
		OnQueued:    s.onQueued,
		OnChange:    s.onChange,
	})
}

// release 先删快照再移出内存，期间的查询要么命中已结束的控制器，要么找不到快照
func (s *PracticeService) release(sessionID string) {
	if s.Snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.Snapshots.DeleteSnapshot(ctx, sessionID); err != nil {
			logger.Log.Warn("Delete session snapshot failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	s.mu.Lock()
	_, ok := s.live[sessionID]
	delete(s.live, sessionID)
	s.mu.Unlock()
	if ok {
		monitoring.LiveSessions.Dec()
	}
}

// onChange 在控制器锁内刷新快照，交卷之后不会再有写入
func (s *PracticeService) onChange(sess session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	s.saveSnapshot(ctx, sess)
}

func (s *PracticeService) saveSnapshot(ctx context.Context, sess session.Session) {
	if s.Snapshots == nil {
		return
	}
	if err := s.Snapshots.SaveSnapshot(ctx, sess); err != nil {
		logger.Log.Warn("Save session snapshot failed", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// controller 查找会话；内存中没有时尝试从快照恢复
func (s *PracticeService) controller(ctx context.Context, userID, sessionID string) (*session.Controller, error) {
	s.mu.Lock()
	ctrl, ok := s.live[sessionID]
	s.mu.Unlock()
	if ok {
		if ctrl.Snapshot().UserID != userID {
			return nil, util.ErrForbidden
		}
		return ctrl, nil
	}

	if s.Snapshots == nil {
		return nil, util.ErrSessionNotFound
	}
	snap, found, err := s.Snapshots.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !found || snap.State == session.StateSubmitted || snap.State == session.StateEnded {
		return nil, util.ErrSessionNotFound
	}
	if snap.UserID != userID {
		return nil, util.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.live[sessionID]; ok {
		return existing, nil
	}
	ctrl = s.newController(snap)
	s.live[sessionID] = ctrl
	monitoring.LiveSessions.Inc()
	logger.Log.Info("Session restored from snapshot", zap.String("session_id", sessionID))
	return ctrl, nil
}

// View 按服务时钟生成下发视图
func (s *PracticeService) View(sess session.Session) SessionView {
	return NewSessionView(sess, s.clock.Now())
}

func (s *PracticeService) Get(ctx context.Context, userID, sessionID string) (session.Session, error) {
	ctrl, err := s.controller(ctx, userID, sessionID)
	if err != nil {
		return session.Session{}, err
	}
	return ctrl.Snapshot(), nil
}

// mutate 执行一次会话操作；快照由控制器的 OnChange 回调刷新
func (s *PracticeService) mutate(ctx context.Context, userID, sessionID string, fn func(*session.Controller) (session.Session, error)) (session.Session, error) {
	ctrl, err := s.controller(ctx, userID, sessionID)
	if err != nil {
		return session.Session{}, err
	}
	return fn(ctrl)
}

func (s *PracticeService) UpdateAnswer(ctx context.Context, userID, sessionID, questionID string, patch quiz.Answer) (session.Session, error) {
	return s.mutate(ctx, userID, sessionID, func(c *session.Controller) (session.Session, error) {
		return c.UpdateAnswer(questionID, patch)
	})
}

func (s *PracticeService) ChangeQuestion(ctx context.Context, userID, sessionID string, index int) (session.Session, error) {
	return s.mutate(ctx, userID, sessionID, func(c *session.Controller) (session.Session, error) {
		return c.ChangeQuestion(index)
	})
}

func (s *PracticeService) ToggleBookmark(ctx context.Context, userID, sessionID, questionID string) (session.Session, error) {
	return s.mutate(ctx, userID, sessionID, func(c *session.Controller) (session.Session, error) {
		return c.ToggleBookmark(questionID)
	})
}

func (s *PracticeService) Review(ctx context.Context, userID, sessionID string) (session.Session, error) {
	return s.mutate(ctx, userID, sessionID, func(c *session.Controller) (session.Session, error) {
		return c.Review()
	})
}

// Submit 交卷；结果的持久化由控制器回调完成
func (s *PracticeService) Submit(ctx context.Context, userID, sessionID string) (session.Session, error) {
	return s.mutate(ctx, userID, sessionID, func(c *session.Controller) (session.Session, error) {
		return c.Submit()
	})
}

func (s *PracticeService) Finish(ctx context.Context, userID, sessionID string) (session.Session, error) {
	return s.mutate(ctx, userID, sessionID, func(c *session.Controller) (session.Session, error) {
		return c.Finish()
	})
}

// Exit 放弃会话，不产生结果
func (s *PracticeService) Exit(ctx context.Context, userID, sessionID string) error {
	ctrl, err := s.controller(ctx, userID, sessionID)
	if err != nil {
		return err
	}
	sess := ctrl.Exit()
	ctrl.Close()
	s.release(sessionID)
	monitoring.SessionsFinished.WithLabelValues(string(sess.Mode), "exited").Inc()
	logger.Log.Info("Session exited", zap.String("session_id", sessionID), zap.String("user_id", userID))
	return nil
}

func (s *PracticeService) History(ctx context.Context, userID string, limit int) ([]quiz.SessionResult, error) {
	return s.Results.History(ctx, userID, limit)
}

// SyncPending 把离线完成的会话结果写入正式记录
func (s *PracticeService) SyncPending(ctx context.Context, userID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "PracticeService.SyncPending", attribute.String("user.id", userID))
	defer span.End()

	pending, err := s.Results.PendingFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	synced := make([]string, 0, len(pending))
	for _, res := range pending {
		if err := s.persist(ctx, res); err != nil {
			tracing.RecordError(span, err)
			logger.Log.Error("Sync pending result failed", zap.String("session_id", res.SessionID), zap.Error(err))
			break
		}
		synced = append(synced, res.SessionID)
	}
	if err := s.Results.MarkSynced(ctx, synced); err != nil {
		return 0, err
	}
	return len(synced), nil
}

// Shutdown 停止所有计时器；未完成的会话保留在快照中，重启后可恢复
func (s *PracticeService) Shutdown() {
	s.mu.Lock()
	ctrls := make([]*session.Controller, 0, len(s.live))
	for _, c := range s.live {
		ctrls = append(ctrls, c)
	}
	s.live = make(map[string]*session.Controller)
	s.mu.Unlock()
	for _, c := range ctrls {
		c.Close()
	}
	monitoring.LiveSessions.Set(0)
}

// LiveCount 当前内存中的会话数
func (s *PracticeService) LiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func (s *PracticeService) onSubmitted(res quiz.SessionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	defer s.release(res.SessionID)

	outcome := "submitted"
	if res.AutoSubmitted {
		outcome = "auto_submitted"
	}
	monitoring.SessionsFinished.WithLabelValues(string(res.Mode), outcome).Inc()
	monitoring.SessionScore.WithLabelValues(string(res.Mode)).Observe(res.Score)

	if err := s.persist(ctx, res); err != nil {
		logger.Log.Error("Persist session result failed, queueing for sync",
			zap.String("session_id", res.SessionID), zap.Error(err))
		if qerr := s.Results.EnqueuePending(ctx, res); qerr != nil {
			logger.Log.Error("Queue session result failed", zap.String("session_id", res.SessionID), zap.Error(qerr))
		}
		return
	}
	if res.AutoSubmitted && s.Notifier != nil {
		s.Notifier.PushToUser(res.UserID, EventMessage{Type: EventSessionEnded, Data: res})
	}
}

func (s *PracticeService) onQueued(res quiz.SessionResult) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	defer s.release(res.SessionID)

	monitoring.SessionsFinished.WithLabelValues(string(res.Mode), "queued").Inc()
	if err := s.Results.EnqueuePending(ctx, res); err != nil {
		logger.Log.Error("Queue offline result failed", zap.String("session_id", res.SessionID), zap.Error(err))
	}
}

// persist 写入历史记录、答题统计并更新徽章，按会话 id 幂等：
// 重放时已写入的记录和计数不会重复累加，已应用的徽章进度也会跳过
func (s *PracticeService) persist(ctx context.Context, res quiz.SessionResult) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	applied, err := s.Results.SaveResult(ctx, res)
	if err != nil {
		return err
	}
	if s.Progress != nil && !applied {
		if _, err := s.Progress.Apply(ctx, res.UserID, ResultDeltas(res)); err != nil {
			return err
		}
		if err := s.Results.MarkProgressApplied(ctx, res.SessionID); err != nil {
			return err
		}
	}
	logger.Log.Info("Session result saved",
		zap.String("session_id", res.SessionID),
		zap.String("user_id", res.UserID),
		zap.Float64("score", res.Score))
	return nil
}

// ResultDeltas 一次会话对徽章指标的贡献
func ResultDeltas(res quiz.SessionResult) map[quiz.Metric]int {
	deltas := map[quiz.Metric]int{
		quiz.MetricQuestionsAnswered: res.TotalQuestions,
		quiz.MetricCorrectAnswers:    res.CorrectCount,
	}
	switch res.Mode {
	case quiz.ModeTest:
		deltas[quiz.MetricTestsCompleted] = 1
		if res.TotalQuestions > 0 && res.CorrectCount == res.TotalQuestions {
			deltas[quiz.MetricPerfectTests] = 1
		}
	case quiz.ModeStudy:
		deltas[quiz.MetricStudySessions] = 1
	}
	return deltas
}
