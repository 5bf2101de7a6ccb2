package quiz

import (
	"encoding/json"
	"fmt"
)

// Draft is an immutable question under construction. Edits are expressed as
// EditOp values and applied with Apply, which returns a new Draft.
type Draft struct {
	q Question
}

func NewDraft(groupID, authorID string, t QuestionType) Draft {
	return Draft{q: Question{GroupID: groupID, AuthorID: authorID, Type: t}}
}

// Build returns a copy of the drafted question.
func (d Draft) Build() Question { return cloneQuestion(d.q) }

// EditOp is the closed set of authoring edits.
type EditOp interface {
	apply(q *Question)
}

type SetStem struct{ Text string }
type SetExplanation struct{ Text string }
type SetType struct{ Type QuestionType }
type AddOption struct{ Option Option }
type RemoveOption struct{ ID string }
type ToggleCorrect struct{ OptionID string }
type AddAcceptable struct{ Text string }
type AddPromptItem struct{ Item MatchItem }
type AddAnswerItem struct{ Item MatchItem }
type AddPair struct{ Pair MatchPair }
type SetImage struct{ URL string }
type AddPin struct{ Pin DiagramPin }
type SetTags struct{ Tags []string }

func (o SetStem) apply(q *Question)        { q.Stem = o.Text }
func (o SetExplanation) apply(q *Question) { q.Explanation = o.Text }

// SetType clears the answer key of the previous shape.
func (o SetType) apply(q *Question) {
	if q.Type == o.Type {
		return
	}
	q.Type = o.Type
	q.Options, q.CorrectOptionIDs = nil, nil
	q.AcceptableAnswers = nil
	q.PromptItems, q.AnswerItems, q.CorrectPairs = nil, nil, nil
	q.ImageURL, q.Pins = "", nil
}

func (o AddOption) apply(q *Question) { q.Options = append(q.Options, o.Option) }

func (o RemoveOption) apply(q *Question) {
	opts := q.Options[:0]
	for _, opt := range q.Options {
		if opt.ID != o.ID {
			opts = append(opts, opt)
		}
	}
	q.Options = opts
	q.CorrectOptionIDs = without(q.CorrectOptionIDs, o.ID)
}

// ToggleCorrect keeps at most one correct id for single-answer types.
func (o ToggleCorrect) apply(q *Question) {
	for _, id := range q.CorrectOptionIDs {
		if id == o.OptionID {
			q.CorrectOptionIDs = without(q.CorrectOptionIDs, o.OptionID)
			return
		}
	}
	if q.Type == SingleChoice || q.Type == TrueFalse {
		q.CorrectOptionIDs = []string{o.OptionID}
		return
	}
	q.CorrectOptionIDs = append(q.CorrectOptionIDs, o.OptionID)
}

func (o AddAcceptable) apply(q *Question) { q.AcceptableAnswers = append(q.AcceptableAnswers, o.Text) }
func (o AddPromptItem) apply(q *Question) { q.PromptItems = append(q.PromptItems, o.Item) }
func (o AddAnswerItem) apply(q *Question) { q.AnswerItems = append(q.AnswerItems, o.Item) }

// AddPair replaces any existing pairing for the same prompt.
func (o AddPair) apply(q *Question) {
	pairs := q.CorrectPairs[:0]
	for _, p := range q.CorrectPairs {
		if p.PromptID != o.Pair.PromptID {
			pairs = append(pairs, p)
		}
	}
	q.CorrectPairs = append(pairs, o.Pair)
}

func (o SetImage) apply(q *Question) { q.ImageURL = o.URL }
func (o AddPin) apply(q *Question)   { q.Pins = append(q.Pins, o.Pin) }
func (o SetTags) apply(q *Question)  { q.Tags = append([]string{}, o.Tags...) }

// Apply returns a new draft with op applied; d is left untouched.
func Apply(d Draft, op EditOp) Draft {
	q := cloneQuestion(d.q)
	op.apply(&q)
	return Draft{q: q}
}

// ApplyAll folds ops over d in order.
func ApplyAll(d Draft, ops ...EditOp) Draft {
	for _, op := range ops {
		d = Apply(d, op)
	}
	return d
}

// RawEditOp is the wire form of an edit: {"op": "add_option", "data": {...}}.
type RawEditOp struct {
	Op   string          `json:"op" binding:"required"`
	Data json.RawMessage `json:"data"`
}

// DecodeEditOp turns a wire edit into an EditOp.
func DecodeEditOp(raw RawEditOp) (EditOp, error) {
	var (
		op  EditOp
		err error
	)
	switch raw.Op {
	case "set_stem":
		var v SetStem
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "set_explanation":
		var v SetExplanation
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "set_type":
		var v SetType
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "add_option":
		var v AddOption
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "remove_option":
		var v RemoveOption
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "toggle_correct":
		var v ToggleCorrect
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "add_acceptable":
		var v AddAcceptable
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "add_prompt_item":
		var v AddPromptItem
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "add_answer_item":
		var v AddAnswerItem
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "add_pair":
		var v AddPair
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "set_image":
		var v SetImage
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "add_pin":
		var v AddPin
		err = json.Unmarshal(raw.Data, &v)
		op = v
	case "set_tags":
		var v SetTags
		err = json.Unmarshal(raw.Data, &v)
		op = v
	default:
		return nil, fmt.Errorf("unknown edit op %q", raw.Op)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", raw.Op, err)
	}
	return op, nil
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func cloneQuestion(q Question) Question {
	out := q
	out.Options = append([]Option(nil), q.Options...)
	out.CorrectOptionIDs = append([]string(nil), q.CorrectOptionIDs...)
	out.AcceptableAnswers = append([]string(nil), q.AcceptableAnswers...)
	out.PromptItems = append([]MatchItem(nil), q.PromptItems...)
	out.AnswerItems = append([]MatchItem(nil), q.AnswerItems...)
	out.CorrectPairs = append([]MatchPair(nil), q.CorrectPairs...)
	out.Pins = append([]DiagramPin(nil), q.Pins...)
	out.Tags = append([]string(nil), q.Tags...)
	return out
}
