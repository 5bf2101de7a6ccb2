package quiz

import (
	"sort"
	"time"
)

// QuestionType identifies the structural shape of a question's answer key.
type QuestionType string

const (
	SingleChoice    QuestionType = "single_choice"
	MultipleChoice  QuestionType = "multiple_choice"
	TrueFalse       QuestionType = "true_false"
	FillBlank       QuestionType = "fill_blank"
	Matching        QuestionType = "matching"
	DiagramLabeling QuestionType = "diagram_labeling"
	OpenEnded       QuestionType = "open_ended"
)

// BlankMarker must appear in the stem of a fill-in-the-blank question.
const BlankMarker = "___"

// AllTypes lists every known question type in display order.
var AllTypes = []QuestionType{
	SingleChoice, MultipleChoice, TrueFalse, FillBlank, Matching, DiagramLabeling, OpenEnded,
}

func (t QuestionType) Valid() bool {
	for _, k := range AllTypes {
		if k == t {
			return true
		}
	}
	return false
}

type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type MatchItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// MatchPair links a prompt item to an answer item.
type MatchPair struct {
	PromptID string `json:"promptId"`
	AnswerID string `json:"answerId"`
}

// DiagramPin is a labelled point on a diagram image.
type DiagramPin struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Question is immutable once authored; only votes and archival change it.
type Question struct {
	ID          string       `json:"id"`
	GroupID     string       `json:"groupId"`
	AuthorID    string       `json:"authorId"`
	Stem        string       `json:"stem"`
	Explanation string       `json:"explanation,omitempty"`
	Type        QuestionType `json:"questionType"`

	Options          []Option `json:"options,omitempty"`
	CorrectOptionIDs []string `json:"correctOptionIds,omitempty"`

	AcceptableAnswers []string `json:"acceptableAnswers,omitempty"`

	PromptItems  []MatchItem `json:"promptItems,omitempty"`
	AnswerItems  []MatchItem `json:"answerItems,omitempty"`
	CorrectPairs []MatchPair `json:"correctPairs,omitempty"`

	ImageURL string       `json:"imageUrl,omitempty"`
	Pins     []DiagramPin `json:"pins,omitempty"`

	Tags      []string  `json:"tags,omitempty"`
	Upvotes   int       `json:"upvotes"`
	Downvotes int       `json:"downvotes"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"createdAt"`
}

// HasAnyTag reports whether the question carries at least one of the given tags.
func (q Question) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range q.Tags {
			if have == want {
				return true
			}
		}
	}
	return false
}

// LabelSelection is the user's choice of label for one diagram pin.
type LabelSelection struct {
	LabelID         string `json:"labelId"`
	SelectedLabelID string `json:"selectedLabelId"`
}

// Answer carries the answer-bearing fields of a submission. Every field is
// optional; a partial update only touches the fields that are set.
type Answer struct {
	SelectedOptionIDs []string         `json:"selectedOptionIds,omitempty"`
	Text              *string          `json:"text,omitempty"`
	Pairs             []MatchPair      `json:"pairs,omitempty"`
	Labels            []LabelSelection `json:"labels,omitempty"`
}

// HasContent reports whether any answer-bearing field is present.
func (a Answer) HasContent() bool {
	return a.SelectedOptionIDs != nil || a.Text != nil || a.Pairs != nil || a.Labels != nil
}

// Merge overlays the set fields of patch onto a copy of a.
func (a Answer) Merge(patch Answer) Answer {
	out := a.Clone()
	if patch.SelectedOptionIDs != nil {
		out.SelectedOptionIDs = append([]string{}, patch.SelectedOptionIDs...)
	}
	if patch.Text != nil {
		t := *patch.Text
		out.Text = &t
	}
	if patch.Pairs != nil {
		out.Pairs = append([]MatchPair{}, patch.Pairs...)
	}
	if patch.Labels != nil {
		out.Labels = append([]LabelSelection{}, patch.Labels...)
	}
	return out
}

func (a Answer) Clone() Answer {
	out := Answer{}
	if a.SelectedOptionIDs != nil {
		out.SelectedOptionIDs = append([]string{}, a.SelectedOptionIDs...)
	}
	if a.Text != nil {
		t := *a.Text
		out.Text = &t
	}
	if a.Pairs != nil {
		out.Pairs = append([]MatchPair{}, a.Pairs...)
	}
	if a.Labels != nil {
		out.Labels = append([]LabelSelection{}, a.Labels...)
	}
	return out
}

// TextAnswer is a convenience for building free-text answers.
func TextAnswer(s string) *string { return &s }

// Redacted strips the answer key so the question can be shown before grading.
// Diagram pins keep their ids and positions; the labels are offered separately
// by the caller.
func (q Question) Redacted() Question {
	out := cloneQuestion(q)
	out.CorrectOptionIDs = nil
	out.AcceptableAnswers = nil
	out.CorrectPairs = nil
	out.Explanation = ""
	for i := range out.Pins {
		out.Pins[i].Label = ""
	}
	return out
}

// PinLabels lists the diagram labels in id order without their positions.
func (q Question) PinLabels() []Option {
	out := make([]Option, 0, len(q.Pins))
	for _, p := range q.Pins {
		out = append(out, Option{ID: p.ID, Text: p.Label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
