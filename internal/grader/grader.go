// Package grader implements answer grading as a pure function over a
// question's canonical answer key and a submitted payload. It performs no
// I/O and holds no state.
package grader

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/horoquiz/horoquiz-backend/internal/model"
)

// Verdict is the grading outcome. Malformed means the payload shape does
// not match the question type; it is not a wrong answer.
type Verdict string

const (
	Correct   Verdict = "correct"
	Incorrect Verdict = "incorrect"
	Malformed Verdict = "malformed"
)

// strippedPunctuation is removed from open answers before comparison.
var strippedPunctuation = map[rune]struct{}{
	'.': {}, ',': {}, '!': {}, '?': {}, ';': {}, ':': {}, '"': {}, '\'': {},
}

// Normalize prepares an open-answer string for comparison: punctuation from
// the fixed set is stripped, whitespace runs collapse to single spaces, and
// the result is Unicode case-folded (not merely lowercased).
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if _, drop := strippedPunctuation[r]; !drop {
			b.WriteRune(r)
		}
	}
	collapsed := strings.Join(strings.Fields(b.String()), " ")
	return cases.Fold().String(collapsed)
}

// Grade maps (question, submitted answer) to a verdict.
//
//	open:   normalised text equality
//	single: option id equality; unknown id is Incorrect, not Malformed
//	multi:  set equality; duplicates ignored; empty submission is Incorrect
func Grade(q *model.Question, submitted model.Answer) Verdict {
	switch q.Type {
	case model.QuestionOpen:
		if submitted.Kind != model.AnswerOpen {
			return Malformed
		}
		if Normalize(submitted.Text) == Normalize(q.Answer.Text) {
			return Correct
		}
		return Incorrect

	case model.QuestionSingle:
		if submitted.Kind != model.AnswerSingle {
			return Malformed
		}
		if submitted.OptionID == q.Answer.OptionID {
			return Correct
		}
		return Incorrect

	case model.QuestionMulti:
		if submitted.Kind != model.AnswerMulti {
			return Malformed
		}
		if len(submitted.OptionIDs) == 0 {
			return Incorrect
		}
		if setEqual(q.Answer.OptionIDs, submitted.OptionIDs) {
			return Correct
		}
		return Incorrect
	}

	return Malformed
}

func setEqual(want, got []string) bool {
	wantSet := make(map[string]struct{}, len(want))
	for _, id := range want {
		wantSet[id] = struct{}{}
	}
	gotSet := make(map[string]struct{}, len(got))
	for _, id := range got {
		if _, ok := wantSet[id]; !ok {
			return false
		}
		gotSet[id] = struct{}{}
	}
	return len(gotSet) == len(wantSet)
}
