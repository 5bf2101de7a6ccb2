package game

import (
	"math/rand"
	"sync"
	"time"

	"studyquiz_backend/internal/grading"
	"studyquiz_backend/internal/quiz"

	"github.com/jonboulle/clockwork"
)

// OpponentProfile controls the simulated opponent. Each question is answered
// after a delay drawn uniformly from [MinDelay, MaxDelay], counted from the
// previous answer.
type OpponentProfile struct {
	Accuracy float64
	MinDelay time.Duration
	MaxDelay time.Duration
}

func DefaultOpponent() OpponentProfile {
	return OpponentProfile{Accuracy: 0.6, MinDelay: 3 * time.Second, MaxDelay: 12 * time.Second}
}

type EventType string

const (
	EventAnswer   EventType = "answer"
	EventComplete EventType = "complete"
)

// Event is pushed to subscribers after every accepted write.
type Event struct {
	Type       EventType `json:"type"`
	Side       Side      `json:"side,omitempty"`
	QuestionID string    `json:"questionId,omitempty"`
	Correct    bool      `json:"correct"`
	Game       Game      `json:"game"`
}

// Match drives one game: it records user answers and schedules the opponent.
// Rematch replaces the game and bumps the generation so timers from the old
// game drop their writes.
//
// User answer times are measured on the match clock, from the game start for
// the first answer and from the previous answer after that.
type Match struct {
	mu         sync.Mutex
	clock      clockwork.Clock
	rand       *rand.Rand
	profile    OpponentProfile
	game       Game
	generation uint64
	active     bool
	lastUser   time.Time
	timers     []clockwork.Timer
	onEvent    func(Event)
}

func NewMatch(g Game, clk clockwork.Clock, rng *rand.Rand, profile OpponentProfile, onEvent func(Event)) *Match {
	if profile.MaxDelay < profile.MinDelay {
		profile.MaxDelay = profile.MinDelay
	}
	return &Match{clock: clk, rand: rng, profile: profile, game: g, lastUser: g.StartedAt, onEvent: onEvent}
}

// Start activates the match and schedules every opponent answer.
func (m *Match) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = true
	m.scheduleOpponent()
}

// Rematch discards the current game in favour of g.
func (m *Match) Rematch(g Game) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimers()
	m.generation++
	m.game = g
	m.lastUser = g.StartedAt
	m.active = true
	m.scheduleOpponent()
}

// Stop deactivates the match; pending opponent answers are dropped.
func (m *Match) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = false
	m.stopTimers()
}

func (m *Match) Snapshot() Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.game
}

// AnswerUser grades the user's answer and records it with the time taken
// since the user's previous answer.
func (m *Match) AnswerUser(questionID string, answer quiz.Answer) (Game, error) {
	m.mu.Lock()
	if !m.active {
		g := m.game
		m.mu.Unlock()
		return g, ErrGameOver
	}
	q, ok := m.question(questionID)
	if !ok {
		g := m.game
		m.mu.Unlock()
		return g, ErrUnknownQuestion
	}
	correct := grading.Grade(q.Question, &answer)
	now := m.clock.Now()
	elapsed := now.Sub(m.lastUser)
	if elapsed < 0 {
		elapsed = 0
	}
	events, err := m.recordLocked(SideUser, Entry{QuestionID: questionID, Correct: correct, Elapsed: elapsed})
	if err == nil {
		m.lastUser = now
	}
	g := m.game
	m.mu.Unlock()
	if err != nil {
		return g, err
	}
	m.publish(events)
	return g, nil
}

func (m *Match) question(id string) (quiz.SessionQuestion, bool) {
	for _, q := range m.game.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return quiz.SessionQuestion{}, false
}

// scheduleOpponent draws every delay and outcome up front. Callers hold m.mu.
func (m *Match) scheduleOpponent() {
	gen := m.generation
	var at time.Duration
	for _, q := range m.game.Questions {
		delay := m.profile.MinDelay
		if span := m.profile.MaxDelay - m.profile.MinDelay; span > 0 {
			delay += time.Duration(m.rand.Int63n(int64(span) + 1))
		}
		at += delay
		entry := Entry{
			QuestionID: q.ID,
			Correct:    m.rand.Float64() < m.profile.Accuracy,
			Elapsed:    delay,
		}
		m.timers = append(m.timers, m.clock.AfterFunc(at, func() {
			m.opponentAnswer(gen, entry)
		}))
	}
}

func (m *Match) opponentAnswer(gen uint64, e Entry) {
	m.mu.Lock()
	if gen != m.generation || !m.active || m.game.Complete {
		m.mu.Unlock()
		return
	}
	events, err := m.recordLocked(SideOpponent, e)
	m.mu.Unlock()
	if err == nil {
		m.publish(events)
	}
}

// recordLocked applies the write and the completion check as one step.
func (m *Match) recordLocked(side Side, e Entry) ([]Event, error) {
	next, err := m.game.Record(side, e, m.clock.Now())
	if err != nil {
		return nil, err
	}
	m.game = next
	events := []Event{{Type: EventAnswer, Side: side, QuestionID: e.QuestionID, Correct: e.Correct, Game: next}}
	if next.Complete {
		m.active = false
		m.stopTimers()
		events = append(events, Event{Type: EventComplete, Game: next})
	}
	return events, nil
}

func (m *Match) stopTimers() {
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
}

func (m *Match) publish(events []Event) {
	if m.onEvent == nil {
		return
	}
	for _, ev := range events {
		m.onEvent(ev)
	}
}
