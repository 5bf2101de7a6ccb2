package grading

import (
	"strings"

	"studyquiz_backend/internal/quiz"
)

// IsGradable reports whether q carries everything needed to be auto-graded.
// Open-ended and unknown types are never gradable.
func IsGradable(q quiz.Question) bool {
	switch q.Type {
	case quiz.SingleChoice, quiz.MultipleChoice, quiz.TrueFalse:
		return choiceComplete(q)
	case quiz.FillBlank:
		return strings.Contains(q.Stem, quiz.BlankMarker) && hasNonBlank(q.AcceptableAnswers)
	case quiz.Matching:
		return len(q.PromptItems) > 0 && len(q.AnswerItems) > 0 && pairsCoverPrompts(q)
	case quiz.DiagramLabeling:
		return strings.TrimSpace(q.ImageURL) != "" && len(q.Pins) > 0
	default:
		return false
	}
}

func choiceComplete(q quiz.Question) bool {
	if strings.TrimSpace(q.Stem) == "" || len(q.Options) == 0 || len(q.CorrectOptionIDs) == 0 {
		return false
	}
	ids := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		ids[o.ID] = struct{}{}
	}
	for _, c := range q.CorrectOptionIDs {
		if _, ok := ids[c]; !ok {
			return false
		}
	}
	return true
}

func hasNonBlank(answers []string) bool {
	for _, a := range answers {
		if strings.TrimSpace(a) != "" {
			return true
		}
	}
	return false
}

// pairsCoverPrompts requires exactly one correct pairing per prompt item.
func pairsCoverPrompts(q quiz.Question) bool {
	if len(q.CorrectPairs) != len(q.PromptItems) {
		return false
	}
	seen := make(map[string]int, len(q.CorrectPairs))
	for _, p := range q.CorrectPairs {
		seen[p.PromptID]++
	}
	for _, item := range q.PromptItems {
		if seen[item.ID] != 1 {
			return false
		}
	}
	return true
}
