package session

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyquiz_backend/internal/quiz"
)

type resultSink struct {
	mu        sync.Mutex
	submitted []quiz.SessionResult
	queued    []quiz.SessionResult
}

func (r *resultSink) hooks() Hooks {
	return Hooks{
		OnSubmitted: func(res quiz.SessionResult) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.submitted = append(r.submitted, res)
		},
		OnQueued: func(res quiz.SessionResult) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.queued = append(r.queued, res)
		},
	}
}

func (r *resultSink) counts() (submitted, queued int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.submitted), len(r.queued)
}

func (r *resultSink) first() quiz.SessionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.submitted) > 0 {
		return r.submitted[0]
	}
	return r.queued[0]
}

// waitFor polls until the timer goroutines fired by Advance have landed.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, time.Millisecond)
}

// tickN advances one tick at a time, waiting for the controller to re-arm.
func tickN(clk clockwork.FakeClock, tick time.Duration, n int) {
	for i := 0; i < n; i++ {
		clk.BlockUntil(1)
		clk.Advance(tick)
	}
	clk.BlockUntil(1)
}

func TestController_AutoSubmitsUntouchedTimedTest(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	sink := &resultSink{}
	s := New("s1", "u1", "g1", quiz.ModeTest, choiceQuestions(3), clk.Now(), time.Second, false)
	c := NewController(s, clk, time.Second, sink.hooks())

	clk.Advance(2 * time.Second)
	waitFor(t, func() bool { n, _ := sink.counts(); return n == 1 })

	res := sink.first()
	assert.True(t, res.AutoSubmitted)
	assert.Equal(t, 0, res.CorrectCount)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, StateSubmitted, c.Snapshot().State)

	clk.Advance(time.Minute)
	n, _ := sink.counts()
	assert.Equal(t, 1, n, "ticker is stopped after submission")
}

func TestController_AutoSubmitScoresAnsweredQuestions(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	sink := &resultSink{}
	s := New("s1", "u1", "g1", quiz.ModeTest, choiceQuestions(2), clk.Now(), 5*time.Second, false)
	c := NewController(s, clk, time.Second, sink.hooks())

	_, err := c.UpdateAnswer("qa", pick("right"))
	require.NoError(t, err)
	clk.Advance(10 * time.Second)
	waitFor(t, func() bool { n, _ := sink.counts(); return n == 1 })

	assert.InDelta(t, 50.0, sink.first().Score, 0.0001)
}

func TestController_ManualSubmitFiresOnce(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	sink := &resultSink{}
	s := New("s1", "u1", "g1", quiz.ModeTest, choiceQuestions(1), clk.Now(), 3*time.Second, false)
	c := NewController(s, clk, time.Second, sink.hooks())

	_, err := c.Submit()
	require.NoError(t, err)
	_, err = c.Submit()
	require.NoError(t, err)
	clk.Advance(time.Minute)

	assert.Len(t, sink.submitted, 1)
	assert.False(t, sink.submitted[0].AutoSubmitted)
}

func TestController_OfflineResultIsQueued(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	sink := &resultSink{}
	s := New("s1", "u1", "g1", quiz.ModeTest, choiceQuestions(1), clk.Now(), time.Second, true)
	NewController(s, clk, time.Second, sink.hooks())

	clk.Advance(time.Second)
	waitFor(t, func() bool { _, n := sink.counts(); return n == 1 })

	submitted, _ := sink.counts()
	assert.Zero(t, submitted)
	assert.True(t, sink.first().Offline)
}

func TestController_ExitCancelsTimer(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	sink := &resultSink{}
	s := New("s1", "u1", "g1", quiz.ModeTest, choiceQuestions(1), clk.Now(), 2*time.Second, false)
	c := NewController(s, clk, time.Second, sink.hooks())

	c.Exit()
	clk.Advance(time.Minute)

	assert.Empty(t, sink.submitted)
	assert.Equal(t, StateEnded, c.Snapshot().State)
}

func TestController_CloseStopsTicking(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	sink := &resultSink{}
	s := New("s1", "u1", "g1", quiz.ModeTest, choiceQuestions(1), clk.Now(), 2*time.Second, false)
	c := NewController(s, clk, time.Second, sink.hooks())

	c.Close()
	clk.Advance(time.Minute)

	assert.Empty(t, sink.submitted)
	assert.Equal(t, StateActive, c.Snapshot().State)
}

func TestController_TicksAccumulateElapsedOnCurrentQuestion(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	s := New("s1", "u1", "g1", quiz.ModeStudy, choiceQuestions(2), clk.Now(), 0, false)
	c := NewController(s, clk, time.Second, Hooks{})
	defer c.Close()

	tickN(clk, time.Second, 3)
	_, err := c.ChangeQuestion(1)
	require.NoError(t, err)
	tickN(clk, time.Second, 2)

	snap := c.Snapshot()
	assert.Equal(t, 3, snap.Record("qa").ElapsedSeconds)
	assert.Equal(t, 2, snap.Record("qb").ElapsedSeconds)
}

func TestController_StudyFinishEmitsResult(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	sink := &resultSink{}
	s := New("s1", "u1", "g1", quiz.ModeStudy, choiceQuestions(1), clk.Now(), 0, false)
	c := NewController(s, clk, time.Second, sink.hooks())

	_, err := c.Finish()
	assert.ErrorIs(t, err, ErrNotGraded)

	_, err = c.UpdateAnswer("qa", pick("right"))
	require.NoError(t, err)
	_, err = c.Finish()
	require.NoError(t, err)
	_, err = c.Finish()
	require.NoError(t, err)

	require.Len(t, sink.submitted, 1)
	assert.Equal(t, 100.0, sink.submitted[0].Score)
}

func TestController_OnChangeRunsBeforeDeadlineTick(t *testing.T) {
	clk := clockwork.NewFakeClockAt(t0)
	sink := &resultSink{}
	var saved []State
	hooks := sink.hooks()
	hooks.OnChange = func(s Session) {
		// A tick that comes due here has to wait for the lock.
		clk.Advance(time.Minute)
		saved = append(saved, s.State)
	}
	s := New("s1", "u1", "g1", quiz.ModeTest, choiceQuestions(2), clk.Now(), 5*time.Second, false)
	c := NewController(s, clk, time.Second, hooks)

	_, err := c.ToggleBookmark("qa")
	require.NoError(t, err)
	waitFor(t, func() bool { n, _ := sink.counts(); return n == 1 })

	assert.Equal(t, []State{StateActive}, saved)
	assert.True(t, sink.first().AutoSubmitted)
	assert.Equal(t, StateSubmitted, c.Snapshot().State)

	_, err = c.ToggleBookmark("qa")
	assert.Error(t, err)
	assert.Len(t, saved, 1, "closed sessions are not handed to OnChange")
}
