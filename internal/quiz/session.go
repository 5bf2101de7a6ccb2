package quiz

import "time"

// Mode is the kind of practice run a session belongs to.
type Mode string

const (
	ModeTest  Mode = "test"
	ModeStudy Mode = "study"
	ModeGame  Mode = "game"
)

// Policy selects how the sampler orders a candidate pool.
type Policy string

const (
	PolicyNormal           Policy = "normal"
	PolicySpacedRepetition Policy = "spaced_repetition"
	PolicyCustom           Policy = "custom"
	PolicyCompetitive      Policy = "competitive"
)

// SessionConfig is the entire externally tunable surface of a session request.
type SessionConfig struct {
	QuestionCount      int            `json:"questionCount"`
	AllowedTypes       []QuestionType `json:"allowedTypes"`
	TagFilter          []string       `json:"tagFilter,omitempty"`
	TimerDuration      time.Duration  `json:"timerDuration,omitempty"`
	GroupID            string         `json:"groupId"`
	IncludeSubgroupIDs []string       `json:"includeSubgroupIds,omitempty"`
	SpacedRepetition   bool           `json:"spacedRepetition"`
	Policy             Policy         `json:"policy,omitempty"`
	QuestionIDs        []string       `json:"questionIds,omitempty"`
	Offline            bool           `json:"offline"`
}

// EffectivePolicy resolves the sampling policy, letting the spaced-repetition
// flag override an unset policy.
func (c SessionConfig) EffectivePolicy() Policy {
	if c.SpacedRepetition {
		return PolicySpacedRepetition
	}
	if c.Policy == "" {
		if len(c.QuestionIDs) > 0 {
			return PolicyCustom
		}
		return PolicyNormal
	}
	return c.Policy
}

// AllowsType reports whether t passes the allowed-types filter. An empty
// filter allows everything.
func (c SessionConfig) AllowsType(t QuestionType) bool {
	if len(c.AllowedTypes) == 0 {
		return true
	}
	for _, a := range c.AllowedTypes {
		if a == t {
			return true
		}
	}
	return false
}

// SessionQuestion is a question frozen into a session with its 1-based ordinal.
type SessionQuestion struct {
	Question
	Number int `json:"questionNumber"`
}

// AnswerRecord is the per-question mutable record of a session. IsCorrect stays
// nil until a grading pass has run for the record.
type AnswerRecord struct {
	Answer
	IsCorrect      *bool `json:"isCorrect,omitempty"`
	IsBookmarked   bool  `json:"isBookmarked"`
	ElapsedSeconds int   `json:"elapsedSeconds"`
}

func (r AnswerRecord) Clone() AnswerRecord {
	out := AnswerRecord{
		Answer:         r.Answer.Clone(),
		IsBookmarked:   r.IsBookmarked,
		ElapsedSeconds: r.ElapsedSeconds,
	}
	if r.IsCorrect != nil {
		v := *r.IsCorrect
		out.IsCorrect = &v
	}
	return out
}

// SessionResult is a finalized session plus its aggregate score.
type SessionResult struct {
	ID             string                  `json:"id"`
	SessionID      string                  `json:"sessionId"`
	UserID         string                  `json:"userId"`
	GroupID        string                  `json:"groupId"`
	Mode           Mode                    `json:"mode"`
	Questions      []SessionQuestion       `json:"questions"`
	Answers        map[string]AnswerRecord `json:"answers"`
	CorrectCount   int                     `json:"correctCount"`
	TotalQuestions int                     `json:"totalQuestions"`
	Score          float64                 `json:"score"`
	Offline        bool                    `json:"offline"`
	AutoSubmitted  bool                    `json:"autoSubmitted"`
	StartedAt      time.Time               `json:"startedAt"`
	SubmittedAt    time.Time               `json:"submittedAt"`
}

// Outcomes maps every question of the result to whether it was answered
// correctly. Unanswered questions count as incorrect.
func (r SessionResult) Outcomes() map[string]bool {
	out := make(map[string]bool, len(r.Questions))
	for _, q := range r.Questions {
		rec := r.Answers[q.ID]
		out[q.ID] = rec.IsCorrect != nil && *rec.IsCorrect
	}
	return out
}

// ScorePercent is 100*correct/total, 0 when there are no questions.
func ScorePercent(correct, total int) float64 {
	if total <= 0 {
		return 0
	}
	return 100 * float64(correct) / float64(total)
}

// UserQuestionStat holds append-only attempt counters for one user and question.
type UserQuestionStat struct {
	UserID            string    `json:"userId"`
	QuestionID        string    `json:"questionId"`
	CorrectAttempts   int       `json:"correctAttempts"`
	IncorrectAttempts int       `json:"incorrectAttempts"`
	LastAttemptedAt   time.Time `json:"lastAttemptedAt"`
}

// NeedsReview is the spaced-repetition predicate.
func (s UserQuestionStat) NeedsReview() bool {
	return s.IncorrectAttempts > s.CorrectAttempts
}
