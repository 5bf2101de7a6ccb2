package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"studyquiz_backend/internal/quiz"
)

func singleChoiceQuestion() quiz.Question {
	return quiz.Question{
		ID:               "q1",
		Type:             quiz.SingleChoice,
		Stem:             "Capital of France?",
		Options:          []quiz.Option{{ID: "a", Text: "Paris"}, {ID: "b", Text: "Rome"}},
		CorrectOptionIDs: []string{"a"},
	}
}

func multipleChoiceQuestion() quiz.Question {
	return quiz.Question{
		ID:   "q2",
		Type: quiz.MultipleChoice,
		Stem: "Pick the primes",
		Options: []quiz.Option{
			{ID: "2", Text: "2"}, {ID: "3", Text: "3"}, {ID: "4", Text: "4"}, {ID: "5", Text: "5"},
		},
		CorrectOptionIDs: []string{"2", "3", "5"},
	}
}

func fillBlankQuestion() quiz.Question {
	return quiz.Question{
		ID:                "q3",
		Type:              quiz.FillBlank,
		Stem:              "The capital of France is ___.",
		AcceptableAnswers: []string{"Paris"},
	}
}

func matchingQuestion() quiz.Question {
	return quiz.Question{
		ID:          "q4",
		Type:        quiz.Matching,
		Stem:        "Match countries to capitals",
		PromptItems: []quiz.MatchItem{{ID: "fr", Text: "France"}, {ID: "it", Text: "Italy"}},
		AnswerItems: []quiz.MatchItem{{ID: "paris", Text: "Paris"}, {ID: "rome", Text: "Rome"}},
		CorrectPairs: []quiz.MatchPair{
			{PromptID: "fr", AnswerID: "paris"},
			{PromptID: "it", AnswerID: "rome"},
		},
	}
}

func diagramQuestion() quiz.Question {
	return quiz.Question{
		ID:       "q5",
		Type:     quiz.DiagramLabeling,
		Stem:     "Label the heart",
		ImageURL: "/uploads/heart.png",
		Pins:     []quiz.DiagramPin{{ID: "atrium", Label: "Atrium"}, {ID: "ventricle", Label: "Ventricle"}},
	}
}

func gradableQuestions() []quiz.Question {
	tf := singleChoiceQuestion()
	tf.ID, tf.Type = "tf", quiz.TrueFalse
	return []quiz.Question{
		singleChoiceQuestion(), tf, multipleChoiceQuestion(), fillBlankQuestion(),
		matchingQuestion(), diagramQuestion(),
	}
}

func TestGrade_NilAnswerIsAlwaysIncorrect(t *testing.T) {
	for _, q := range gradableQuestions() {
		t.Run(string(q.Type), func(t *testing.T) {
			assert.True(t, IsGradable(q))
			assert.False(t, Grade(q, nil))
			assert.False(t, Grade(q, &quiz.Answer{}))
		})
	}
}

func TestGrade_SingleChoice(t *testing.T) {
	q := singleChoiceQuestion()

	assert.True(t, Grade(q, &quiz.Answer{SelectedOptionIDs: []string{"a"}}))
	assert.False(t, Grade(q, &quiz.Answer{SelectedOptionIDs: []string{"b"}}))
	assert.False(t, Grade(q, &quiz.Answer{SelectedOptionIDs: []string{"a", "b"}}), "two picks is never a single choice")
}

func TestGrade_MultipleChoiceRequiresExactSet(t *testing.T) {
	q := multipleChoiceQuestion()

	testCases := []struct {
		name     string
		selected []string
		want     bool
	}{
		{"exact", []string{"2", "3", "5"}, true},
		{"exact reordered", []string{"5", "2", "3"}, true},
		{"missing one", []string{"2", "3"}, false},
		{"extra wrong pick", []string{"2", "3", "4", "5"}, false},
		{"one swapped", []string{"2", "3", "4"}, false},
		{"empty", []string{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Grade(q, &quiz.Answer{SelectedOptionIDs: tc.selected}))
		})
	}
}

func TestGrade_FillBlankIsTrimAndCaseInsensitiveButNotSubstring(t *testing.T) {
	q := fillBlankQuestion()

	assert.True(t, Grade(q, &quiz.Answer{Text: quiz.TextAnswer("paris ")}))
	assert.True(t, Grade(q, &quiz.Answer{Text: quiz.TextAnswer("  PARIS")}))
	assert.False(t, Grade(q, &quiz.Answer{Text: quiz.TextAnswer("Paris, France")}))
	assert.False(t, Grade(q, &quiz.Answer{Text: quiz.TextAnswer("Par")}))
	assert.False(t, Grade(q, &quiz.Answer{Text: quiz.TextAnswer("   ")}))
}

func TestGrade_MatchingRequiresIdenticalPairSet(t *testing.T) {
	q := matchingQuestion()

	assert.True(t, Grade(q, &quiz.Answer{Pairs: []quiz.MatchPair{
		{PromptID: "it", AnswerID: "rome"},
		{PromptID: "fr", AnswerID: "paris"},
	}}))
	assert.False(t, Grade(q, &quiz.Answer{Pairs: []quiz.MatchPair{
		{PromptID: "fr", AnswerID: "rome"},
		{PromptID: "it", AnswerID: "paris"},
	}}))
	assert.False(t, Grade(q, &quiz.Answer{Pairs: []quiz.MatchPair{
		{PromptID: "fr", AnswerID: "paris"},
	}}))
	assert.False(t, Grade(q, &quiz.Answer{Pairs: []quiz.MatchPair{
		{PromptID: "fr", AnswerID: "paris"},
		{PromptID: "fr", AnswerID: "paris"},
	}}), "duplicated pair does not stand in for a missing one")
}

func TestGrade_DiagramLabelingComparesAgainstPinIdentity(t *testing.T) {
	q := diagramQuestion()

	assert.True(t, Grade(q, &quiz.Answer{Labels: []quiz.LabelSelection{
		{LabelID: "atrium", SelectedLabelID: "atrium"},
		{LabelID: "ventricle", SelectedLabelID: "ventricle"},
	}}))
	assert.False(t, Grade(q, &quiz.Answer{Labels: []quiz.LabelSelection{
		{LabelID: "atrium", SelectedLabelID: "ventricle"},
		{LabelID: "ventricle", SelectedLabelID: "atrium"},
	}}))
	assert.False(t, Grade(q, &quiz.Answer{Labels: []quiz.LabelSelection{
		{LabelID: "atrium", SelectedLabelID: "atrium"},
	}}), "every pin must be labelled")
}

func TestGrade_OpenEndedNeverAutoGraded(t *testing.T) {
	q := quiz.Question{Type: quiz.OpenEnded, Stem: "Discuss"}

	assert.False(t, IsGradable(q))
	assert.False(t, Grade(q, &quiz.Answer{Text: quiz.TextAnswer("anything")}))
}

func TestGrade_UnknownTypeIsIncorrect(t *testing.T) {
	q := quiz.Question{Type: "essay"}
	assert.False(t, Grade(q, &quiz.Answer{Text: quiz.TextAnswer("x")}))
}
