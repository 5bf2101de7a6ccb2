package game

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyquiz_backend/internal/quiz"
)

var start = time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)

func threeQuestions() []quiz.SessionQuestion {
	ids := []string{"q1", "q2", "q3"}
	out := make([]quiz.SessionQuestion, len(ids))
	for i, id := range ids {
		out[i] = quiz.SessionQuestion{Number: i + 1, Question: quiz.Question{
			ID:               id,
			Type:             quiz.TrueFalse,
			Stem:             "Is it true?",
			Options:          []quiz.Option{{ID: "t", Text: "True"}, {ID: "f", Text: "False"}},
			CorrectOptionIDs: []string{"t"},
		}}
	}
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) completions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Type == EventComplete {
			n++
		}
	}
	return n
}

func newMatch(t *testing.T, profile OpponentProfile) (*Match, clockwork.FakeClock, *eventLog) {
	t.Helper()
	clk := clockwork.NewFakeClockAt(start)
	log := &eventLog{}
	m := NewMatch(New("g1", "user", "bot", threeQuestions(), start), clk, rand.New(rand.NewSource(1)), profile, log.add)
	m.Start()
	return m, clk, log
}

// answerAll lets `each` pass on the match clock before every answer.
func answerAll(t *testing.T, m *Match, clk clockwork.FakeClock, optionID string, each time.Duration) {
	t.Helper()
	for _, id := range []string{"q1", "q2", "q3"} {
		clk.Advance(each)
		_, err := m.AnswerUser(id, quiz.Answer{SelectedOptionIDs: []string{optionID}})
		require.NoError(t, err)
	}
}

// waitComplete waits for opponent timers fired by Advance to finish the game
// and publish the completion.
func waitComplete(t *testing.T, m *Match, log *eventLog) Game {
	t.Helper()
	require.Eventually(t, func() bool { return log.completions() > 0 }, time.Second, time.Millisecond)
	return m.Snapshot()
}

// The user is slower overall but scores more, so the score decides.
func TestMatch_UserWinsOnScoreNotTime(t *testing.T) {
	m, clk, log := newMatch(t, OpponentProfile{Accuracy: 0, MinDelay: time.Second, MaxDelay: time.Second})

	answerAll(t, m, clk, "t", 30*time.Second)
	clk.Advance(10 * time.Second)

	g := waitComplete(t, m, log)
	assert.Equal(t, 3, g.User.Score)
	assert.Equal(t, 0, g.Opponent.Score)
	assert.Equal(t, 90*time.Second, g.User.TotalTime)
	assert.Equal(t, "user", g.WinnerID)
	assert.True(t, g.UserWon())
	assert.Equal(t, 1, log.completions())
}

func TestMatch_TiedScoreFallsBackToTime(t *testing.T) {
	m, clk, log := newMatch(t, OpponentProfile{Accuracy: 1, MinDelay: 2 * time.Second, MaxDelay: 2 * time.Second})

	answerAll(t, m, clk, "t", 5*time.Second)
	clk.Advance(time.Minute)

	g := waitComplete(t, m, log)
	assert.Equal(t, g.User.Score, g.Opponent.Score)
	assert.Equal(t, 15*time.Second, g.User.TotalTime)
	assert.Equal(t, 6*time.Second, g.Opponent.TotalTime)
	assert.Equal(t, "bot", g.WinnerID)
}

func TestMatch_UserTimeIsMeasuredOnTheMatchClock(t *testing.T) {
	m, clk, _ := newMatch(t, OpponentProfile{Accuracy: 1, MinDelay: time.Hour, MaxDelay: time.Hour})
	defer m.Stop()

	clk.Advance(4 * time.Second)
	_, err := m.AnswerUser("q1", quiz.Answer{SelectedOptionIDs: []string{"t"}})
	require.NoError(t, err)
	clk.Advance(1500 * time.Millisecond)
	_, err = m.AnswerUser("q2", quiz.Answer{SelectedOptionIDs: []string{"t"}})
	require.NoError(t, err)

	// A rejected answer does not reset the reference point.
	clk.Advance(time.Second)
	_, err = m.AnswerUser("q2", quiz.Answer{})
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
	clk.Advance(time.Second)
	g, err := m.AnswerUser("q3", quiz.Answer{})
	require.NoError(t, err)

	assert.Equal(t, 4*time.Second, g.User.Entries["q1"].Elapsed)
	assert.Equal(t, 1500*time.Millisecond, g.User.Entries["q2"].Elapsed)
	assert.Equal(t, 2*time.Second, g.User.Entries["q3"].Elapsed)
	assert.Equal(t, 7500*time.Millisecond, g.User.TotalTime)
}

func TestGame_DrawOnEqualScoreAndTime(t *testing.T) {
	g := New("g1", "user", "bot", threeQuestions()[:1], start)
	g, err := g.Record(SideUser, Entry{QuestionID: "q1", Correct: true, Elapsed: time.Second}, start)
	require.NoError(t, err)
	assert.False(t, g.Complete)

	g, err = g.Record(SideOpponent, Entry{QuestionID: "q1", Correct: true, Elapsed: time.Second}, start)
	require.NoError(t, err)
	assert.True(t, g.Complete)
	assert.True(t, g.Draw)
	assert.Empty(t, g.WinnerID)
}

func TestGame_RecordRejectsDuplicatesAndUnknown(t *testing.T) {
	g := New("g1", "user", "bot", threeQuestions(), start)
	g, err := g.Record(SideUser, Entry{QuestionID: "q1"}, start)
	require.NoError(t, err)

	_, err = g.Record(SideUser, Entry{QuestionID: "q1"}, start)
	assert.ErrorIs(t, err, ErrAlreadyAnswered)
	_, err = g.Record(SideUser, Entry{QuestionID: "zz"}, start)
	assert.ErrorIs(t, err, ErrUnknownQuestion)
}

func TestMatch_CompletesWhenOpponentWritesLast(t *testing.T) {
	m, clk, log := newMatch(t, OpponentProfile{Accuracy: 1, MinDelay: 5 * time.Second, MaxDelay: 5 * time.Second})

	answerAll(t, m, clk, "f", 0)
	assert.False(t, m.Snapshot().Complete)

	clk.Advance(15 * time.Second)
	g := waitComplete(t, m, log)
	assert.Equal(t, "bot", g.WinnerID)
	assert.Equal(t, 1, log.completions())

	_, err := m.AnswerUser("q1", quiz.Answer{})
	assert.ErrorIs(t, err, ErrGameOver)
}

func TestMatch_RematchDropsStaleOpponentWrites(t *testing.T) {
	m, clk, _ := newMatch(t, OpponentProfile{Accuracy: 1, MinDelay: time.Second, MaxDelay: 3 * time.Second})
	clk.Advance(time.Second)

	fresh := New("g2", "user", "bot", threeQuestions(), clk.Now())
	m.Rematch(fresh)

	g := m.Snapshot()
	assert.Equal(t, "g2", g.ID)

	clk.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(m.Snapshot().Opponent.Entries) == 3 }, time.Second, time.Millisecond,
		"only the new game's timers write")
	assert.Equal(t, "g2", m.Snapshot().ID)
}

func TestMatch_StopCancelsOpponent(t *testing.T) {
	m, clk, log := newMatch(t, DefaultOpponent())
	m.Stop()
	clk.Advance(time.Hour)

	assert.Empty(t, m.Snapshot().Opponent.Entries)
	log.mu.Lock()
	defer log.mu.Unlock()
	assert.Empty(t, log.events)
}
