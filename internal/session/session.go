// Package session implements the lifecycle of a test or study run as an
// immutable value: every transition returns a new Session.
package session

import (
	"errors"
	"time"

	"studyquiz_backend/internal/grading"
	"studyquiz_backend/internal/quiz"
)

type State string

const (
	StateActive    State = "active"
	StateReviewing State = "reviewing"
	StateSubmitted State = "submitted"
	StateEnded     State = "ended"
)

var (
	ErrInvalidIndex      = errors.New("question index out of range")
	ErrNotGraded         = errors.New("current question has not been graded")
	ErrSessionClosed     = errors.New("session is no longer active")
	ErrUnknownQuestion   = errors.New("question is not part of this session")
	ErrInvalidTransition = errors.New("transition not allowed in this mode")
)

// Session is a frozen question list plus its answer map. Copies share the
// question slice, which is never written after New.
type Session struct {
	ID            string
	UserID        string
	GroupID       string
	Mode          quiz.Mode
	Questions     []quiz.SessionQuestion
	Answers       map[string]quiz.AnswerRecord
	Cursor        int
	State         State
	StartedAt     time.Time
	EndsAt        *time.Time
	Offline       bool
	AutoSubmitted bool
	SubmittedAt   time.Time
}

// New starts a session. A positive timer sets a fixed deadline; only test
// sessions are timed.
func New(id, userID, groupID string, mode quiz.Mode, questions []quiz.SessionQuestion, startedAt time.Time, timer time.Duration, offline bool) Session {
	s := Session{
		ID:        id,
		UserID:    userID,
		GroupID:   groupID,
		Mode:      mode,
		Questions: questions,
		Answers:   make(map[string]quiz.AnswerRecord, len(questions)),
		State:     StateActive,
		StartedAt: startedAt,
		Offline:   offline,
	}
	if mode == quiz.ModeTest && timer > 0 {
		end := startedAt.Add(timer)
		s.EndsAt = &end
	}
	return s
}

func (s Session) clone() Session {
	out := s
	out.Answers = make(map[string]quiz.AnswerRecord, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v.Clone()
	}
	if s.EndsAt != nil {
		end := *s.EndsAt
		out.EndsAt = &end
	}
	return out
}

func (s Session) mutable() bool {
	return s.State == StateActive || s.State == StateReviewing
}

func (s Session) question(id string) (quiz.SessionQuestion, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return quiz.SessionQuestion{}, false
}

// Current returns the question under the cursor.
func (s Session) Current() (quiz.SessionQuestion, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Questions) {
		return quiz.SessionQuestion{}, false
	}
	return s.Questions[s.Cursor], true
}

// Record returns the answer record for a question, zero if untouched.
func (s Session) Record(questionID string) quiz.AnswerRecord {
	return s.Answers[questionID]
}

// UpdateAnswer merges patch into the question's record. Study sessions grade
// as soon as the patch carries an answer; test sessions wait for Submit.
func (s Session) UpdateAnswer(questionID string, patch quiz.Answer) (Session, error) {
	if !s.mutable() {
		return s, ErrSessionClosed
	}
	q, ok := s.question(questionID)
	if !ok {
		return s, ErrUnknownQuestion
	}
	next := s.clone()
	rec := next.Answers[questionID]
	rec.Answer = rec.Answer.Merge(patch)
	if s.Mode == quiz.ModeStudy && patch.HasContent() {
		correct := grading.Grade(q.Question, &rec.Answer)
		rec.IsCorrect = &correct
	}
	next.Answers[questionID] = rec
	return next, nil
}

// ChangeQuestion moves the cursor. Out-of-range targets leave the session
// untouched and report ErrInvalidIndex.
func (s Session) ChangeQuestion(index int) (Session, error) {
	if !s.mutable() {
		return s, ErrSessionClosed
	}
	if index < 0 || index >= len(s.Questions) {
		return s, ErrInvalidIndex
	}
	next := s.clone()
	next.Cursor = index
	return next, nil
}

func (s Session) ToggleBookmark(questionID string) (Session, error) {
	if !s.mutable() {
		return s, ErrSessionClosed
	}
	if _, ok := s.question(questionID); !ok {
		return s, ErrUnknownQuestion
	}
	next := s.clone()
	rec := next.Answers[questionID]
	rec.IsBookmarked = !rec.IsBookmarked
	next.Answers[questionID] = rec
	return next, nil
}

// AddElapsed credits seconds to a question's time counter.
func (s Session) AddElapsed(questionID string, seconds int) (Session, error) {
	if !s.mutable() {
		return s, ErrSessionClosed
	}
	if _, ok := s.question(questionID); !ok {
		return s, ErrUnknownQuestion
	}
	next := s.clone()
	rec := next.Answers[questionID]
	rec.ElapsedSeconds += seconds
	next.Answers[questionID] = rec
	return next, nil
}

// Review moves a test session to the pre-submission review screen.
func (s Session) Review() (Session, error) {
	if s.Mode != quiz.ModeTest {
		return s, ErrInvalidTransition
	}
	switch s.State {
	case StateReviewing:
		return s, nil
	case StateActive:
		next := s.clone()
		next.State = StateReviewing
		return next, nil
	default:
		return s, ErrSessionClosed
	}
}

// Submit grades every question and freezes the session. Submitting a
// submitted session returns it unchanged.
func (s Session) Submit(now time.Time, auto bool) (Session, error) {
	switch s.State {
	case StateSubmitted:
		return s, nil
	case StateEnded:
		return s, ErrSessionClosed
	}
	next := s.clone()
	for _, q := range next.Questions {
		rec := next.Answers[q.ID]
		correct := grading.Grade(q.Question, &rec.Answer)
		rec.IsCorrect = &correct
		next.Answers[q.ID] = rec
	}
	next.State = StateSubmitted
	next.AutoSubmitted = auto
	next.SubmittedAt = now
	return next, nil
}

// Finish completes a study session from its last question. The last question
// must have been graded first.
func (s Session) Finish(now time.Time) (Session, error) {
	if s.Mode != quiz.ModeStudy {
		return s, ErrInvalidTransition
	}
	if s.State == StateSubmitted {
		return s, nil
	}
	if !s.mutable() {
		return s, ErrSessionClosed
	}
	if s.Cursor != len(s.Questions)-1 {
		return s, ErrInvalidIndex
	}
	cur, _ := s.Current()
	if s.Answers[cur.ID].IsCorrect == nil {
		return s, ErrNotGraded
	}
	return s.Submit(now, false)
}

// Exit abandons the session without producing a result.
func (s Session) Exit() Session {
	if !s.mutable() {
		return s
	}
	next := s.clone()
	next.State = StateEnded
	return next
}

// Expired reports whether a timed session has passed its deadline while
// still open.
func (s Session) Expired(now time.Time) bool {
	return s.EndsAt != nil && s.mutable() && !now.Before(*s.EndsAt)
}

// Remaining is the time left before the deadline, zero when untimed or past.
func (s Session) Remaining(now time.Time) time.Duration {
	if s.EndsAt == nil || !now.Before(*s.EndsAt) {
		return 0
	}
	return s.EndsAt.Sub(now)
}

// Result converts a submitted session into its result record.
func (s Session) Result() (quiz.SessionResult, bool) {
	if s.State != StateSubmitted {
		return quiz.SessionResult{}, false
	}
	answers := make(map[string]quiz.AnswerRecord, len(s.Answers))
	correct := 0
	for _, q := range s.Questions {
		rec := s.Answers[q.ID].Clone()
		if rec.IsCorrect != nil && *rec.IsCorrect {
			correct++
		}
		answers[q.ID] = rec
	}
	return quiz.SessionResult{
		SessionID:      s.ID,
		UserID:         s.UserID,
		GroupID:        s.GroupID,
		Mode:           s.Mode,
		Questions:      s.Questions,
		Answers:        answers,
		CorrectCount:   correct,
		TotalQuestions: len(s.Questions),
		Score:          quiz.ScorePercent(correct, len(s.Questions)),
		Offline:        s.Offline,
		AutoSubmitted:  s.AutoSubmitted,
		StartedAt:      s.StartedAt,
		SubmittedAt:    s.SubmittedAt,
	}, true
}
