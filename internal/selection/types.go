package selection

import (
	"context"
	"errors"
	"fmt"

	"studyquiz_backend/internal/quiz"
)

// MessageKind distinguishes question posts from ordinary chat in a group feed.
type MessageKind string

const (
	KindQuestion MessageKind = "QUESTION"
	KindText     MessageKind = "TEXT"
)

// Message is one entry of a group feed. Question is set only for KindQuestion.
type Message struct {
	ID       string
	GroupID  string
	Kind     MessageKind
	Question *quiz.Question
}

// GroupRegistry supplies group membership facts.
type GroupRegistry interface {
	MemberCount(ctx context.Context, groupID string) (int, error)
	// GroupsSeenBy returns every group the user has ever belonged to.
	GroupsSeenBy(ctx context.Context, userID string) ([]string, error)
}

// MessageRegistry supplies group feeds.
type MessageRegistry interface {
	MessagesByGroup(ctx context.Context, groupID string) ([]Message, error)
}

// StatSource supplies a user's per-question attempt counters keyed by question id.
type StatSource interface {
	StatsForUser(ctx context.Context, userID string) (map[string]quiz.UserQuestionStat, error)
}

// DefaultQuorum is the minimum votes-per-member ratio a question needs.
const DefaultQuorum = 0.20

// ErrInsufficientPool is matched with errors.Is; the concrete error is an
// *InsufficientPoolError carrying the counts.
var ErrInsufficientPool = errors.New("insufficient candidates")

type InsufficientPoolError struct {
	Requested int
	Available int
}

func (e *InsufficientPoolError) Error() string {
	return fmt.Sprintf("insufficient candidates: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientPoolError) Is(target error) bool { return target == ErrInsufficientPool }
