package grader

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/horoquiz/horoquiz-backend/internal/model"
)

func openQuestion(answer string) *model.Question {
	return &model.Question{
		ID:     "q1",
		Type:   model.QuestionOpen,
		Prompt: "capital of France?",
		Answer: model.Answer{Kind: model.AnswerOpen, Text: answer},
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Paris", "paris"},
		{"punctuation stripped", `"Paris!"`, "paris"},
		{"whitespace collapsed", "  la   ville\tlumière ", "la ville lumière"},
		{"case folded", "STRASSE", "strasse"},
		{"sharp s folds", "Straße", "strasse"},
		{"empty", "", ""},
		{"only punctuation", `.,!?;:"'`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestGradeOpen(t *testing.T) {
	q := openQuestion("The Mitochondria.")

	assert.Equal(t, Correct, Grade(q, model.Answer{Kind: model.AnswerOpen, Text: "the   mitochondria"}))
	assert.Equal(t, Correct, Grade(q, model.Answer{Kind: model.AnswerOpen, Text: "THE MITOCHONDRIA!"}))
	assert.Equal(t, Incorrect, Grade(q, model.Answer{Kind: model.AnswerOpen, Text: "ribosome"}))
	assert.Equal(t, Malformed, Grade(q, model.Answer{Kind: model.AnswerSingle, OptionID: "a"}))
}

func TestGradeSingle(t *testing.T) {
	q := &model.Question{
		ID:   "q2",
		Type: model.QuestionSingle,
		Options: []model.Option{
			{ID: "a", Text: "one"},
			{ID: "b", Text: "two"},
		},
		Answer: model.Answer{Kind: model.AnswerSingle, OptionID: "b"},
	}

	assert.Equal(t, Correct, Grade(q, model.Answer{Kind: model.AnswerSingle, OptionID: "b"}))
	assert.Equal(t, Incorrect, Grade(q, model.Answer{Kind: model.AnswerSingle, OptionID: "a"}))
	// Unknown option id is a wrong answer, not a malformed one.
	assert.Equal(t, Incorrect, Grade(q, model.Answer{Kind: model.AnswerSingle, OptionID: "zzz"}))
	assert.Equal(t, Malformed, Grade(q, model.Answer{Kind: model.AnswerOpen, Text: "b"}))
}

func TestGradeMulti(t *testing.T) {
	q := &model.Question{
		ID:   "q3",
		Type: model.QuestionMulti,
		Options: []model.Option{
			{ID: "a", Text: "one"},
			{ID: "b", Text: "two"},
			{ID: "c", Text: "three"},
		},
		Answer: model.Answer{Kind: model.AnswerMulti, OptionIDs: []string{"a", "c"}},
	}

	assert.Equal(t, Correct, Grade(q, model.Answer{Kind: model.AnswerMulti, OptionIDs: []string{"c", "a"}}))
	// Duplicates in the submission are ignored.
	assert.Equal(t, Correct, Grade(q, model.Answer{Kind: model.AnswerMulti, OptionIDs: []string{"a", "a", "c"}}))
	assert.Equal(t, Incorrect, Grade(q, model.Answer{Kind: model.AnswerMulti, OptionIDs: []string{"a"}}))
	assert.Equal(t, Incorrect, Grade(q, model.Answer{Kind: model.AnswerMulti, OptionIDs: []string{"a", "b", "c"}}))
	assert.Equal(t, Incorrect, Grade(q, model.Answer{Kind: model.AnswerMulti, OptionIDs: []string{}}))
	assert.Equal(t, Malformed, Grade(q, model.Answer{Kind: model.AnswerSingle, OptionID: "a"}))
}

func TestGradeIsPure(t *testing.T) {
	q := openQuestion("paris")
	sub := model.Answer{Kind: model.AnswerOpen, Text: "Paris"}

	for i := 0; i < 3; i++ {
		assert.Equal(t, Correct, Grade(q, sub))
	}
	assert.Equal(t, "paris", q.Answer.Text)
	assert.Equal(t, "Paris", sub.Text)
}
