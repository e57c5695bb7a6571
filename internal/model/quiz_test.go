package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuiz() *Quiz {
	return &Quiz{
		TeacherID: 1,
		Title:     "Biology basics",
		Questions: []Question{
			{
				ID:     "q1",
				Type:   QuestionOpen,
				Prompt: "Powerhouse of the cell?",
				Answer: Answer{Kind: AnswerOpen, Text: "mitochondria"},
			},
			{
				ID:     "q2",
				Type:   QuestionSingle,
				Prompt: "Pick one",
				Options: []Option{
					{ID: "a", Text: "one"},
					{ID: "b", Text: "two"},
				},
				Answer: Answer{Kind: AnswerSingle, OptionID: "a"},
			},
			{
				ID:     "q3",
				Type:   QuestionMulti,
				Prompt: "Pick some",
				Options: []Option{
					{ID: "a", Text: "one"},
					{ID: "b", Text: "two"},
					{ID: "c", Text: "three"},
				},
				Answer: Answer{Kind: AnswerMulti, OptionIDs: []string{"a", "b"}},
			},
		},
	}
}

func issueFieldsOf(issues []FieldIssue) []string {
	fields := make([]string, 0, len(issues))
	for _, i := range issues {
		fields = append(fields, i.Field)
	}
	return fields
}

func TestValidateQuizAccepts(t *testing.T) {
	assert.Nil(t, ValidateQuiz(validQuiz()))
}

func TestValidateQuizEmptyTitle(t *testing.T) {
	q := validQuiz()
	q.Title = "   "
	assert.Contains(t, issueFieldsOf(ValidateQuiz(q)), "title")
}

func TestValidateQuizNoQuestions(t *testing.T) {
	q := validQuiz()
	q.Questions = nil
	assert.Contains(t, issueFieldsOf(ValidateQuiz(q)), "questions")
}

func TestValidateQuizDuplicateQuestionID(t *testing.T) {
	q := validQuiz()
	q.Questions[1].ID = "q1"
	assert.Contains(t, issueFieldsOf(ValidateQuiz(q)), "questions[1].id")
}

func TestValidateQuizOpenWithOptions(t *testing.T) {
	q := validQuiz()
	q.Questions[0].Options = []Option{{ID: "a", Text: "x"}}
	assert.Contains(t, issueFieldsOf(ValidateQuiz(q)), "questions[0].options")
}

func TestValidateQuizAnswerShapeMismatch(t *testing.T) {
	q := validQuiz()
	q.Questions[1].Answer = Answer{Kind: AnswerOpen, Text: "a"}
	assert.Contains(t, issueFieldsOf(ValidateQuiz(q)), "questions[1].answer")
}

func TestValidateQuizSingleOption(t *testing.T) {
	q := validQuiz()
	q.Questions[1].Options = q.Questions[1].Options[:1]
	assert.Contains(t, issueFieldsOf(ValidateQuiz(q)), "questions[1].options")
}

func TestValidateQuizAnswerKeyReferences(t *testing.T) {
	q := validQuiz()
	q.Questions[1].Answer.OptionID = "nope"
	issues := ValidateQuiz(q)
	require.NotNil(t, issues)
	assert.Contains(t, issueFieldsOf(issues), "questions[1].answer.optionId")

	q = validQuiz()
	q.Questions[2].Answer.OptionIDs = []string{"a", "nope"}
	assert.Contains(t, issueFieldsOf(ValidateQuiz(q)), "questions[2].answer.optionIds[1]")
}

func TestQuestionPublicStripsAnswer(t *testing.T) {
	q := validQuiz().Questions[1]
	pub := q.Public()
	assert.Equal(t, q.ID, pub.ID)
	assert.Equal(t, q.Options, pub.Options)
}
