package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyquiz_backend/internal/config"
	"studyquiz_backend/internal/model"
	"studyquiz_backend/internal/quiz"
	"studyquiz_backend/internal/selection"
	"studyquiz_backend/internal/session"
	"studyquiz_backend/internal/util"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testSettings() *Settings {
	return NewSettings(config.QuizConfig{
		QuorumRatio:        0.2,
		TickSeconds:        1,
		OpponentAccuracy:   1,
		OpponentMinDelayMs: 2000,
		OpponentMaxDelayMs: 2000,
		MaxQuestionCount:   50,
		MaxTimer:           time.Hour,
	})
}

type practiceEnv struct {
	clk       clockwork.FakeClock
	groups    *memGroups
	questions *memQuestions
	stats     *memStats
	badges    *memBadges
	results   *memResults
	snapshots *memSnapshots
	notifier  *recordingNotifier
	board     *memLeaderboard
	svc       *PracticeService
}

// newPracticeEnv 小组 g1 有 u1 和另外 4 名成员，题库中有 n 道已通过审核的单选题
func newPracticeEnv(t *testing.T, n int) *practiceEnv {
	t.Helper()
	env := &practiceEnv{
		clk:       clockwork.NewFakeClockAt(start),
		groups:    newMemGroups(),
		questions: newMemQuestions(),
		stats:     newMemStats(),
		badges:    newMemBadges(),
		snapshots: newMemSnapshots(),
		notifier:  newRecordingNotifier(),
		board:     newMemLeaderboard(),
	}
	env.results = newMemResults(env.stats)
	env.groups.addGroup("g1", "")
	env.groups.addMember("g1", "u1", model.GroupRoleAdmin)
	for i := 0; i < 4; i++ {
		env.groups.addMember("g1", fmt.Sprintf("peer%d", i), model.GroupRoleMember)
	}
	for i := 0; i < n; i++ {
		env.questions.put(approved(fmt.Sprintf("q%d", i), "g1"))
	}
	progress := NewProgressService(env.stats, env.badges, env.board, env.notifier, nil)
	env.svc = NewPracticeService(env.groups, env.questions, env.stats, env.results, env.snapshots,
		progress, env.notifier, testSettings(), selection.NewSeededSampler(7), env.clk)
	return env
}

func testConfig(count int) quiz.SessionConfig {
	return quiz.SessionConfig{
		GroupID:       "g1",
		QuestionCount: count,
		AllowedTypes:  []quiz.QuestionType{quiz.SingleChoice},
	}
}

func answerRight() quiz.Answer { return quiz.Answer{SelectedOptionIDs: []string{"right"}} }

// waitReleased 等待计时器协程完成自动交卷并释放会话
func waitReleased(t *testing.T, svc *PracticeService) {
	t.Helper()
	require.Eventually(t, func() bool { return svc.LiveCount() == 0 }, time.Second, time.Millisecond)
}

// tickingSnapshots 在下一次保存快照时推进时钟，使截止检查与保存重叠
type tickingSnapshots struct {
	*memSnapshots
	clk     clockwork.FakeClock
	advance time.Duration
}

func (s *tickingSnapshots) SaveSnapshot(ctx context.Context, sess session.Session) error {
	if d := s.advance; d > 0 {
		s.advance = 0
		s.clk.Advance(d)
	}
	return s.memSnapshots.SaveSnapshot(ctx, sess)
}

// flakyResults 前 failures 次写入失败
type flakyResults struct {
	*memResults
	failures int
}

func (r *flakyResults) SaveResult(ctx context.Context, res quiz.SessionResult) (bool, error) {
	if r.failures > 0 {
		r.failures--
		return false, errors.New("database unavailable")
	}
	return r.memResults.SaveResult(ctx, res)
}

func TestStartSession_Validation(t *testing.T) {
	env := newPracticeEnv(t, 5)
	ctx := context.Background()

	testCases := []struct {
		name string
		user string
		mode quiz.Mode
		cfg  func() quiz.SessionConfig
		want error
	}{
		{"no group", "u1", quiz.ModeTest, func() quiz.SessionConfig {
			c := testConfig(3)
			c.GroupID = ""
			return c
		}, util.ErrNoGroup},
		{"no allowed types", "u1", quiz.ModeTest, func() quiz.SessionConfig {
			c := testConfig(3)
			c.AllowedTypes = nil
			return c
		}, util.ErrNoAllowedTypes},
		{"not a member", "stranger", quiz.ModeTest, func() quiz.SessionConfig { return testConfig(3) }, util.ErrForbidden},
		{"count above limit", "u1", quiz.ModeTest, func() quiz.SessionConfig { return testConfig(51) }, util.ErrInvalidConfig},
		{"game mode is not a session", "u1", quiz.ModeGame, func() quiz.SessionConfig { return testConfig(3) }, util.ErrInvalidConfig},
		{"foreign subgroup", "u1", quiz.ModeTest, func() quiz.SessionConfig {
			c := testConfig(3)
			c.IncludeSubgroupIDs = []string{"elsewhere"}
			return c
		}, util.ErrInvalidConfig},
		{"pool too small", "u1", quiz.ModeTest, func() quiz.SessionConfig { return testConfig(6) }, selection.ErrInsufficientPool},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.StartSession(ctx, tc.user, tc.mode, tc.cfg())
			assert.ErrorIs(t, err, tc.want)
		})
	}
	assert.Equal(t, 0, env.svc.LiveCount())
}

func TestStartSession_IncludesSubgroups(t *testing.T) {
	env := newPracticeEnv(t, 2)
	env.groups.addGroup("g1-sub", "g1")
	for i := 0; i < 5; i++ {
		env.groups.addMember("g1-sub", fmt.Sprintf("sub%d", i), model.GroupRoleMember)
	}
	env.questions.put(approved("sub-q", "g1-sub"))

	cfg := testConfig(3)
	cfg.IncludeSubgroupIDs = []string{"g1-sub"}
	sess, err := env.svc.StartSession(context.Background(), "u1", quiz.ModeTest, cfg)
	require.NoError(t, err)
	assert.Len(t, sess.Questions, 3)
}

func TestPractice_SubmitPersistsResultAndProgress(t *testing.T) {
	env := newPracticeEnv(t, 5)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, "u1", quiz.ModeTest, testConfig(3))
	require.NoError(t, err)
	require.Len(t, sess.Questions, 3)
	assert.Nil(t, sess.EndsAt)
	for i, q := range sess.Questions {
		assert.Equal(t, i+1, q.Number)
	}
	assert.Equal(t, 1, env.svc.LiveCount())
	_, stored, _ := env.snapshots.LoadSnapshot(ctx, sess.ID)
	assert.True(t, stored)

	for _, q := range sess.Questions[:2] {
		_, err := env.svc.UpdateAnswer(ctx, "u1", sess.ID, q.ID, answerRight())
		require.NoError(t, err)
	}
	done, err := env.svc.Submit(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateSubmitted, done.State)

	require.Equal(t, 1, env.results.savedCount())
	res := env.results.saved[0]
	assert.Equal(t, 2, res.CorrectCount)
	assert.Equal(t, 3, res.TotalQuestions)
	assert.InDelta(t, 66.67, res.Score, 0.01)
	assert.NotEmpty(t, res.ID)

	attempts, _ := env.stats.StatsForUser(ctx, "u1")
	assert.Len(t, attempts, 3)
	wrong := sess.Questions[2].ID
	assert.Equal(t, 1, attempts[wrong].IncorrectAttempts)

	metrics, _ := env.stats.Metrics(ctx, "u1")
	assert.Equal(t, 3, metrics[quiz.MetricQuestionsAnswered])
	assert.Equal(t, 2, metrics[quiz.MetricCorrectAnswers])
	assert.Equal(t, 1, metrics[quiz.MetricTestsCompleted])
	assert.Zero(t, metrics[quiz.MetricPerfectTests])

	earned, _ := env.badges.Earned(ctx, "u1")
	assert.Equal(t, 1, earned["test_taker"])
	assert.Contains(t, env.notifier.types("u1"), EventBadgeAwarded)
	assert.Equal(t, 5, env.board.points["u1"])

	assert.Equal(t, 0, env.svc.LiveCount())
	_, stored, _ = env.snapshots.LoadSnapshot(ctx, sess.ID)
	assert.False(t, stored)

	_, err = env.svc.Get(ctx, "u1", sess.ID)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestPractice_TimerAutoSubmits(t *testing.T) {
	env := newPracticeEnv(t, 3)
	cfg := testConfig(3)
	cfg.TimerDuration = 2 * time.Second

	sess, err := env.svc.StartSession(context.Background(), "u1", quiz.ModeTest, cfg)
	require.NoError(t, err)
	require.NotNil(t, sess.EndsAt)

	env.clk.Advance(3 * time.Second)
	waitReleased(t, env.svc)

	require.Equal(t, 1, env.results.savedCount())
	res := env.results.saved[0]
	assert.True(t, res.AutoSubmitted)
	assert.Zero(t, res.Score)
	assert.Contains(t, env.notifier.types("u1"), EventSessionEnded)
	assert.False(t, env.snapshots.stored(sess.ID))

	env.clk.Advance(time.Minute)
	assert.Equal(t, 1, env.results.savedCount())
}

func TestPractice_DeadlineDuringSnapshotSaveSubmitsOnce(t *testing.T) {
	env := newPracticeEnv(t, 3)
	ctx := context.Background()
	snaps := &tickingSnapshots{memSnapshots: env.snapshots, clk: env.clk}
	env.svc.Snapshots = snaps
	cfg := testConfig(2)
	cfg.TimerDuration = 5 * time.Second

	sess, err := env.svc.StartSession(ctx, "u1", quiz.ModeTest, cfg)
	require.NoError(t, err)
	snaps.advance = time.Minute
	_, err = env.svc.ToggleBookmark(ctx, "u1", sess.ID, sess.Questions[0].ID)
	require.NoError(t, err)
	waitReleased(t, env.svc)

	assert.False(t, env.snapshots.stored(sess.ID), "no snapshot outlives the submission")
	_, err = env.svc.Get(ctx, "u1", sess.ID)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
	assert.Equal(t, 0, env.svc.LiveCount())

	env.clk.Advance(time.Minute)
	require.Equal(t, 1, env.results.savedCount())
	assert.True(t, env.results.saved[0].AutoSubmitted)
	attempts, _ := env.stats.StatsForUser(ctx, "u1")
	for _, q := range sess.Questions {
		assert.Equal(t, 1, attempts[q.ID].IncorrectAttempts, q.ID)
	}
	metrics, _ := env.stats.Metrics(ctx, "u1")
	assert.Equal(t, 1, metrics[quiz.MetricTestsCompleted])
}

func TestPractice_ReplayedResultCountsOnce(t *testing.T) {
	env := newPracticeEnv(t, 3)
	ctx := context.Background()
	env.svc.Results = &flakyResults{memResults: env.results, failures: 1}

	sess, err := env.svc.StartSession(ctx, "u1", quiz.ModeTest, testConfig(2))
	require.NoError(t, err)
	right, wrong := sess.Questions[0].ID, sess.Questions[1].ID
	_, err = env.svc.UpdateAnswer(ctx, "u1", sess.ID, right, answerRight())
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, "u1", sess.ID)
	require.NoError(t, err)

	assert.Zero(t, env.results.savedCount())
	require.Equal(t, 1, env.results.pendingCount(), "failed write is queued for sync")

	n, err := env.svc.SyncPending(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// 标记同步之前中断时，同一结果会被再次重放
	env.results.mu.Lock()
	delete(env.results.synced, sess.ID)
	env.results.mu.Unlock()
	n, err = env.svc.SyncPending(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 1, env.results.savedCount())
	attempts, _ := env.stats.StatsForUser(ctx, "u1")
	assert.Equal(t, 1, attempts[right].CorrectAttempts)
	assert.Zero(t, attempts[right].IncorrectAttempts)
	assert.Equal(t, 1, attempts[wrong].IncorrectAttempts)

	metrics, _ := env.stats.Metrics(ctx, "u1")
	assert.Equal(t, 1, metrics[quiz.MetricTestsCompleted])
	assert.Equal(t, 2, metrics[quiz.MetricQuestionsAnswered])
	assert.Equal(t, 1, metrics[quiz.MetricCorrectAnswers])
}

func TestPractice_OfflineResultsQueueUntilSync(t *testing.T) {
	env := newPracticeEnv(t, 3)
	ctx := context.Background()
	cfg := testConfig(2)
	cfg.Offline = true

	sess, err := env.svc.StartSession(ctx, "u1", quiz.ModeTest, cfg)
	require.NoError(t, err)
	_, err = env.svc.UpdateAnswer(ctx, "u1", sess.ID, sess.Questions[0].ID, answerRight())
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, "u1", sess.ID)
	require.NoError(t, err)

	assert.Equal(t, 0, env.results.savedCount())
	require.Len(t, env.results.pending, 1)

	n, err := env.svc.SyncPending(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, env.results.savedCount())
	assert.Equal(t, 1, env.results.saved[0].CorrectCount)

	n, err = env.svc.SyncPending(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPractice_ExitDiscardsSession(t *testing.T) {
	env := newPracticeEnv(t, 3)
	ctx := context.Background()
	cfg := testConfig(2)
	cfg.TimerDuration = time.Minute

	sess, err := env.svc.StartSession(ctx, "u1", quiz.ModeTest, cfg)
	require.NoError(t, err)
	require.NoError(t, env.svc.Exit(ctx, "u1", sess.ID))

	env.clk.Advance(2 * time.Minute)
	assert.Equal(t, 0, env.results.savedCount())
	assert.Empty(t, env.results.pending)
	assert.Equal(t, 0, env.svc.LiveCount())
	_, stored, _ := env.snapshots.LoadSnapshot(ctx, sess.ID)
	assert.False(t, stored)
}

func TestPractice_OtherUsersCannotTouchSession(t *testing.T) {
	env := newPracticeEnv(t, 3)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, "u1", quiz.ModeTest, testConfig(2))
	require.NoError(t, err)

	_, err = env.svc.UpdateAnswer(ctx, "peer0", sess.ID, sess.Questions[0].ID, answerRight())
	assert.ErrorIs(t, err, util.ErrForbidden)
	_, err = env.svc.Submit(ctx, "peer0", sess.ID)
	assert.ErrorIs(t, err, util.ErrForbidden)
}

func TestPractice_RestoresFromSnapshot(t *testing.T) {
	env := newPracticeEnv(t, 3)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, "u1", quiz.ModeTest, testConfig(2))
	require.NoError(t, err)
	_, err = env.svc.UpdateAnswer(ctx, "u1", sess.ID, sess.Questions[0].ID, answerRight())
	require.NoError(t, err)
	env.svc.Shutdown()

	// 模拟重启：新的服务实例共享同一个快照存储
	restarted := NewPracticeService(env.groups, env.questions, env.stats, env.results, env.snapshots,
		nil, nil, testSettings(), selection.NewSeededSampler(1), env.clk)

	got, err := restarted.Get(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"right"}, got.Record(sess.Questions[0].ID).SelectedOptionIDs)
	assert.Equal(t, 1, restarted.LiveCount())

	_, err = restarted.Get(ctx, "peer0", sess.ID)
	assert.ErrorIs(t, err, util.ErrForbidden)
}

func TestPractice_StudyModeFinish(t *testing.T) {
	env := newPracticeEnv(t, 2)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, "u1", quiz.ModeStudy, testConfig(2))
	require.NoError(t, err)

	first, second := sess.Questions[0].ID, sess.Questions[1].ID
	next, err := env.svc.UpdateAnswer(ctx, "u1", sess.ID, first, answerRight())
	require.NoError(t, err)
	require.NotNil(t, next.Record(first).IsCorrect, "study mode grades immediately")

	_, err = env.svc.Finish(ctx, "u1", sess.ID)
	assert.ErrorIs(t, err, session.ErrInvalidIndex)

	_, err = env.svc.ChangeQuestion(ctx, "u1", sess.ID, 1)
	require.NoError(t, err)
	_, err = env.svc.Finish(ctx, "u1", sess.ID)
	assert.ErrorIs(t, err, session.ErrNotGraded)

	_, err = env.svc.UpdateAnswer(ctx, "u1", sess.ID, second, quiz.Answer{SelectedOptionIDs: []string{"wrong"}})
	require.NoError(t, err)
	done, err := env.svc.Finish(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateSubmitted, done.State)

	require.Equal(t, 1, env.results.savedCount())
	metrics, _ := env.stats.Metrics(ctx, "u1")
	assert.Equal(t, 1, metrics[quiz.MetricStudySessions])
	assert.Zero(t, metrics[quiz.MetricTestsCompleted])
}

func TestSessionView_HidesAnswersUntilSubmitted(t *testing.T) {
	env := newPracticeEnv(t, 2)
	ctx := context.Background()

	sess, err := env.svc.StartSession(ctx, "u1", quiz.ModeTest, testConfig(2))
	require.NoError(t, err)
	view := NewSessionView(sess, env.clk.Now())
	for _, q := range view.Questions {
		assert.Empty(t, q.CorrectOptionIDs)
		assert.Len(t, q.Options, 2)
	}

	done, err := env.svc.Submit(ctx, "u1", sess.ID)
	require.NoError(t, err)
	view = NewSessionView(done, env.clk.Now())
	require.NotNil(t, view.Result)
	for _, q := range view.Questions {
		assert.Equal(t, []string{"right"}, q.CorrectOptionIDs)
	}
}

func TestResultDeltas(t *testing.T) {
	perfect := quiz.SessionResult{Mode: quiz.ModeTest, CorrectCount: 4, TotalQuestions: 4}
	d := ResultDeltas(perfect)
	assert.Equal(t, 1, d[quiz.MetricPerfectTests])
	assert.Equal(t, 1, d[quiz.MetricTestsCompleted])
	assert.Equal(t, 4, d[quiz.MetricQuestionsAnswered])

	study := quiz.SessionResult{Mode: quiz.ModeStudy, CorrectCount: 1, TotalQuestions: 3}
	d = ResultDeltas(study)
	assert.Equal(t, 1, d[quiz.MetricStudySessions])
	assert.Zero(t, d[quiz.MetricPerfectTests])
}
