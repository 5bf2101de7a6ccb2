package quiz

import "time"

// Metric names a cumulative user statistic tracked by badge definitions.
type Metric string

const (
	MetricQuestionsAnswered Metric = "questions_answered"
	MetricCorrectAnswers    Metric = "correct_answers"
	MetricTestsCompleted    Metric = "tests_completed"
	MetricPerfectTests      Metric = "perfect_tests"
	MetricStudySessions     Metric = "study_sessions"
	MetricGamesPlayed       Metric = "games_played"
	MetricGamesWon          Metric = "games_won"
	MetricQuestionsAuthored Metric = "questions_authored"
	MetricVotesCast         Metric = "votes_cast"

	// MetricQuestionUpvotes is read from a single question's live vote counter,
	// never from UserStats.
	MetricQuestionUpvotes Metric = "question_upvotes"
)

// UserStats maps each metric to its current value for one user.
type UserStats map[Metric]int

func (s UserStats) Clone() UserStats {
	out := make(UserStats, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

type BadgeLevel struct {
	Level     int `json:"level"`
	Threshold int `json:"threshold"`
	Points    int `json:"points"`
}

// BadgeDefinition is a threshold ladder over one metric. Levels are contiguous
// starting at 1.
type BadgeDefinition struct {
	Key    string       `json:"key"`
	Name   string       `json:"name"`
	Icon   string       `json:"icon"`
	Metric Metric       `json:"metric"`
	Levels []BadgeLevel `json:"levels"`
}

// LevelAt returns the rung for level n.
func (d BadgeDefinition) LevelAt(n int) (BadgeLevel, bool) {
	for _, l := range d.Levels {
		if l.Level == n {
			return l, true
		}
	}
	return BadgeLevel{}, false
}

// Badge is one reached level of a definition.
type Badge struct {
	UserID        string    `json:"userId"`
	DefinitionKey string    `json:"definitionKey"`
	Name          string    `json:"name"`
	Icon          string    `json:"icon"`
	Level         int       `json:"level"`
	Points        int       `json:"points"`
	AwardedAt     time.Time `json:"awardedAt"`
}

const RisingStarKey = "rising_star"

// DefaultBadgeDefinitions is the seeded ladder set.
func DefaultBadgeDefinitions() []BadgeDefinition {
	ladder := func(thresholds []int, points []int) []BadgeLevel {
		out := make([]BadgeLevel, len(thresholds))
		for i := range thresholds {
			out[i] = BadgeLevel{Level: i + 1, Threshold: thresholds[i], Points: points[i]}
		}
		return out
	}
	return []BadgeDefinition{
		{Key: "scholar", Name: "Scholar", Icon: "book", Metric: MetricQuestionsAnswered,
			Levels: ladder([]int{10, 50, 200, 1000}, []int{10, 25, 50, 100})},
		{Key: "sharpshooter", Name: "Sharpshooter", Icon: "target", Metric: MetricCorrectAnswers,
			Levels: ladder([]int{5, 25, 100, 500}, []int{10, 25, 50, 100})},
		{Key: "test_taker", Name: "Test Taker", Icon: "clipboard", Metric: MetricTestsCompleted,
			Levels: ladder([]int{1, 5, 20}, []int{5, 20, 50})},
		{Key: "perfectionist", Name: "Perfectionist", Icon: "star", Metric: MetricPerfectTests,
			Levels: ladder([]int{1, 3, 10}, []int{20, 40, 100})},
		{Key: "studious", Name: "Studious", Icon: "lamp", Metric: MetricStudySessions,
			Levels: ladder([]int{1, 10, 50}, []int{5, 20, 60})},
		{Key: "challenger", Name: "Challenger", Icon: "swords", Metric: MetricGamesWon,
			Levels: ladder([]int{1, 5, 25}, []int{10, 30, 80})},
		{Key: "author", Name: "Author", Icon: "pen", Metric: MetricQuestionsAuthored,
			Levels: ladder([]int{1, 10, 50}, []int{5, 25, 75})},
		{Key: RisingStarKey, Name: "Rising Star", Icon: "rocket", Metric: MetricQuestionUpvotes,
			Levels: ladder([]int{5, 15, 50}, []int{15, 40, 100})},
	}
}
