// Package game models a head-to-head quiz between a user and a simulated
// opponent over one frozen question list.
package game

import (
	"errors"
	"time"

	"studyquiz_backend/internal/quiz"
)

type Side string

const (
	SideUser     Side = "user"
	SideOpponent Side = "opponent"
)

var (
	ErrUnknownQuestion = errors.New("question is not part of this game")
	ErrAlreadyAnswered = errors.New("question already answered")
	ErrGameOver        = errors.New("game is no longer active")
)

// Entry is one side's answer to one question.
type Entry struct {
	QuestionID string        `json:"questionId"`
	Correct    bool          `json:"correct"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Timeline accumulates one side's answers.
type Timeline struct {
	Entries   map[string]Entry `json:"entries"`
	Score     int              `json:"score"`
	TotalTime time.Duration    `json:"totalTime"`
}

func (t Timeline) clone() Timeline {
	out := Timeline{Entries: make(map[string]Entry, len(t.Entries)), Score: t.Score, TotalTime: t.TotalTime}
	for k, v := range t.Entries {
		out.Entries[k] = v
	}
	return out
}

func (t Timeline) add(e Entry) Timeline {
	out := t.clone()
	out.Entries[e.QuestionID] = e
	if e.Correct {
		out.Score++
	}
	out.TotalTime += e.Elapsed
	return out
}

// Game is an immutable snapshot of a match.
type Game struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"userId"`
	OpponentID string                 `json:"opponentId"`
	Questions  []quiz.SessionQuestion `json:"questions"`
	User       Timeline               `json:"user"`
	Opponent   Timeline               `json:"opponent"`
	StartedAt  time.Time              `json:"startedAt"`
	Complete   bool                   `json:"complete"`
	WinnerID   string                 `json:"winnerId,omitempty"`
	Draw       bool                   `json:"draw"`
	FinishedAt time.Time              `json:"finishedAt,omitempty"`
}

func New(id, userID, opponentID string, questions []quiz.SessionQuestion, startedAt time.Time) Game {
	return Game{
		ID:         id,
		UserID:     userID,
		OpponentID: opponentID,
		Questions:  questions,
		User:       Timeline{Entries: map[string]Entry{}},
		Opponent:   Timeline{Entries: map[string]Entry{}},
		StartedAt:  startedAt,
	}
}

func (g Game) hasQuestion(id string) bool {
	for _, q := range g.Questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

// Record writes one side's entry and, in the same step, decides whether the
// game is now complete.
func (g Game) Record(side Side, e Entry, now time.Time) (Game, error) {
	if g.Complete {
		return g, ErrGameOver
	}
	if !g.hasQuestion(e.QuestionID) {
		return g, ErrUnknownQuestion
	}
	next := g
	switch side {
	case SideUser:
		if _, ok := g.User.Entries[e.QuestionID]; ok {
			return g, ErrAlreadyAnswered
		}
		next.User = g.User.add(e)
	case SideOpponent:
		if _, ok := g.Opponent.Entries[e.QuestionID]; ok {
			return g, ErrAlreadyAnswered
		}
		next.Opponent = g.Opponent.add(e)
	default:
		return g, ErrUnknownQuestion
	}
	if next.bothFinished() {
		next = next.finalize(now)
	}
	return next, nil
}

// bothFinished is true when every question has a user and an opponent entry.
func (g Game) bothFinished() bool {
	for _, q := range g.Questions {
		if _, ok := g.User.Entries[q.ID]; !ok {
			return false
		}
		if _, ok := g.Opponent.Entries[q.ID]; !ok {
			return false
		}
	}
	return true
}

// finalize picks the winner: higher score, then lower total time, else a draw.
func (g Game) finalize(now time.Time) Game {
	g.Complete = true
	g.FinishedAt = now
	switch {
	case g.User.Score > g.Opponent.Score:
		g.WinnerID = g.UserID
	case g.Opponent.Score > g.User.Score:
		g.WinnerID = g.OpponentID
	case g.User.TotalTime < g.Opponent.TotalTime:
		g.WinnerID = g.UserID
	case g.Opponent.TotalTime < g.User.TotalTime:
		g.WinnerID = g.OpponentID
	default:
		g.Draw = true
	}
	return g
}

// UserWon reports whether the user is the decided winner.
func (g Game) UserWon() bool {
	return g.Complete && !g.Draw && g.WinnerID == g.UserID
}
