package grading

import (
	"strings"

	"studyquiz_backend/internal/quiz"
)

// Strategy grades one question type. Strategies are total: a missing or
// malformed answer is incorrect, never an error.
type Strategy interface {
	Grade(q quiz.Question, a quiz.Answer) bool
}

var strategies = map[quiz.QuestionType]Strategy{
	quiz.SingleChoice:    singleChoiceStrategy{},
	quiz.TrueFalse:       singleChoiceStrategy{},
	quiz.MultipleChoice:  multipleChoiceStrategy{},
	quiz.FillBlank:       fillBlankStrategy{},
	quiz.Matching:        matchingStrategy{},
	quiz.DiagramLabeling: diagramStrategy{},
	quiz.OpenEnded:       openEndedStrategy{},
}

// Grade evaluates a against the answer key of q. A nil answer is incorrect.
func Grade(q quiz.Question, a *quiz.Answer) bool {
	if a == nil {
		return false
	}
	s, ok := strategies[q.Type]
	if !ok {
		return false
	}
	return s.Grade(q, *a)
}

// --- Strategies ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(q quiz.Question, a quiz.Answer) bool {
	if len(a.SelectedOptionIDs) != 1 {
		return false
	}
	_, ok := toSet(q.CorrectOptionIDs)[a.SelectedOptionIDs[0]]
	return ok
}

// multipleChoiceStrategy gives no partial credit.
type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Grade(q quiz.Question, a quiz.Answer) bool {
	if len(a.SelectedOptionIDs) == 0 {
		return false
	}
	return setEqual(toSet(q.CorrectOptionIDs), toSet(a.SelectedOptionIDs))
}

// fillBlankStrategy matches whole strings after trim and case folding.
type fillBlankStrategy struct{}

func (fillBlankStrategy) Grade(q quiz.Question, a quiz.Answer) bool {
	if a.Text == nil {
		return false
	}
	got := normalize(*a.Text)
	if got == "" {
		return false
	}
	for _, k := range q.AcceptableAnswers {
		if normalize(k) == got {
			return true
		}
	}
	return false
}

type matchingStrategy struct{}

func (matchingStrategy) Grade(q quiz.Question, a quiz.Answer) bool {
	if len(a.Pairs) == 0 || len(a.Pairs) != len(q.CorrectPairs) {
		return false
	}
	want := make(map[quiz.MatchPair]struct{}, len(q.CorrectPairs))
	for _, p := range q.CorrectPairs {
		want[p] = struct{}{}
	}
	got := make(map[quiz.MatchPair]struct{}, len(a.Pairs))
	for _, p := range a.Pairs {
		got[p] = struct{}{}
	}
	if len(got) != len(want) {
		return false
	}
	for p := range want {
		if _, ok := got[p]; !ok {
			return false
		}
	}
	return true
}

// diagramStrategy grades against pin identity: every pin must be answered and
// the label chosen for it must be the pin itself.
type diagramStrategy struct{}

func (diagramStrategy) Grade(q quiz.Question, a quiz.Answer) bool {
	if len(q.Pins) == 0 || len(a.Labels) == 0 {
		return false
	}
	chosen := make(map[string]string, len(a.Labels))
	for _, l := range a.Labels {
		chosen[l.LabelID] = l.SelectedLabelID
	}
	for _, pin := range q.Pins {
		sel, ok := chosen[pin.ID]
		if !ok || sel != pin.ID {
			return false
		}
	}
	return true
}

// openEndedStrategy is never auto-graded.
type openEndedStrategy struct{}

func (openEndedStrategy) Grade(quiz.Question, quiz.Answer) bool { return false }

// helpers

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
