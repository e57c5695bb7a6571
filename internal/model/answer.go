package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// AnswerKind discriminates the three disjoint answer payload shapes.
type AnswerKind string

const (
	AnswerOpen   AnswerKind = "open"
	AnswerSingle AnswerKind = "single"
	AnswerMulti  AnswerKind = "multi"
)

// ErrAmbiguousAnswer is returned when a payload mixes answer shapes or
// carries none of them.
var ErrAmbiguousAnswer = errors.New("answer payload must contain exactly one of text, optionId, optionIds")

// Answer is a tagged union over the three wire shapes:
// {"text": ...}, {"optionId": ...}, {"optionIds": [...]}.
// It is used both for canonical answer keys and for submitted answers;
// the shape is fixed at the parse boundary, never re-inspected downstream.
type Answer struct {
	Kind      AnswerKind
	Text      string
	OptionID  string
	OptionIDs []string
}

type answerWire struct {
	Text      *string   `json:"text,omitempty"`
	OptionID  *string   `json:"optionId,omitempty"`
	OptionIDs *[]string `json:"optionIds,omitempty"`
}

// UnmarshalJSON enforces that exactly one shape is present.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var raw answerWire
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	set := 0
	if raw.Text != nil {
		set++
	}
	if raw.OptionID != nil {
		set++
	}
	if raw.OptionIDs != nil {
		set++
	}
	if set != 1 {
		return ErrAmbiguousAnswer
	}

	switch {
	case raw.Text != nil:
		*a = Answer{Kind: AnswerOpen, Text: *raw.Text}
	case raw.OptionID != nil:
		*a = Answer{Kind: AnswerSingle, OptionID: *raw.OptionID}
	default:
		// An explicitly empty optionIds list is a valid (wrong) submission.
		*a = Answer{Kind: AnswerMulti, OptionIDs: *raw.OptionIDs}
	}
	return nil
}

// MarshalJSON emits the wire shape matching the answer kind.
func (a Answer) MarshalJSON() ([]byte, error) {
	switch a.Kind {
	case AnswerOpen:
		return json.Marshal(answerWire{Text: &a.Text})
	case AnswerSingle:
		return json.Marshal(answerWire{OptionID: &a.OptionID})
	case AnswerMulti:
		ids := a.OptionIDs
		if ids == nil {
			ids = []string{}
		}
		return json.Marshal(answerWire{OptionIDs: &ids})
	default:
		return nil, fmt.Errorf("marshal answer: unknown kind %q", a.Kind)
	}
}
