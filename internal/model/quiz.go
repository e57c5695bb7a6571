package model

import (
	"fmt"
	"strings"
)

// QuestionType enumerates supported question kinds.
type QuestionType string

const (
	QuestionOpen   QuestionType = "open"
	QuestionSingle QuestionType = "single"
	QuestionMulti  QuestionType = "multi"
)

// Option is one selectable choice of a single/multi question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is a quiz question together with its canonical answer key.
// The answer key never leaves the server; clients see QuestionPublic.
type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Prompt   string       `json:"prompt"`
	Options  []Option     `json:"options,omitempty"`
	Answer   Answer       `json:"answer"`
	Position int          `json:"-"`
}

// QuestionPublic is the client-visible projection of a question.
type QuestionPublic struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Options []Option     `json:"options,omitempty"`
}

// Public strips the answer key and correctness-bearing fields.
func (q *Question) Public() QuestionPublic {
	return QuestionPublic{
		ID:      q.ID,
		Type:    q.Type,
		Prompt:  q.Prompt,
		Options: q.Options,
	}
}

// Quiz is an authored quiz. Content is immutable while a session runs.
type Quiz struct {
	ID          int64      `json:"id"`
	TeacherID   int64      `json:"teacher_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Questions   []Question `json:"questions"`
	IsPublished bool       `json:"is_published"`
}

// FieldIssue is one structural validation failure inside quiz content.
type FieldIssue struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

// ValidateQuiz checks quiz content structurally: non-empty title and prompts,
// unique question/option ids, answer keys matching their question type, and
// at least two options on choice questions. Returns nil when valid.
func ValidateQuiz(q *Quiz) []FieldIssue {
	var issues []FieldIssue

	if strings.TrimSpace(q.Title) == "" {
		issues = append(issues, FieldIssue{"title", "must not be empty"})
	}
	if q.Description != nil && strings.TrimSpace(*q.Description) == "" {
		issues = append(issues, FieldIssue{"description", "must not be empty when present"})
	}
	if len(q.Questions) == 0 {
		issues = append(issues, FieldIssue{"questions", "must contain at least one question"})
	}

	seenIDs := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		prefix := fmt.Sprintf("questions[%d]", i)

		if strings.TrimSpace(question.ID) == "" {
			issues = append(issues, FieldIssue{prefix + ".id", "must not be empty"})
		}
		if _, dup := seenIDs[question.ID]; dup {
			issues = append(issues, FieldIssue{prefix + ".id", "must be unique"})
		}
		seenIDs[question.ID] = struct{}{}

		if strings.TrimSpace(question.Prompt) == "" {
			issues = append(issues, FieldIssue{prefix + ".prompt", "must not be empty"})
		}

		switch question.Type {
		case QuestionOpen:
			if question.Options != nil {
				issues = append(issues, FieldIssue{prefix + ".options", "must be absent for open question"})
			}
			if question.Answer.Kind != AnswerOpen {
				issues = append(issues, FieldIssue{prefix + ".answer", "must match open format"})
			} else if strings.TrimSpace(question.Answer.Text) == "" {
				issues = append(issues, FieldIssue{prefix + ".answer.text", "must not be empty"})
			}

		case QuestionSingle, QuestionMulti:
			issues = append(issues, validateChoiceQuestion(prefix, &question)...)

		default:
			issues = append(issues, FieldIssue{prefix + ".type", "must be one of open, single, multi"})
		}
	}

	return issues
}

func validateChoiceQuestion(prefix string, q *Question) []FieldIssue {
	var issues []FieldIssue

	if q.Options == nil {
		issues = append(issues, FieldIssue{prefix + ".options", "is required for single/multi"})
	} else if len(q.Options) < 2 {
		issues = append(issues, FieldIssue{prefix + ".options", "must contain at least 2 options"})
	}

	optionIDs := make(map[string]struct{}, len(q.Options))
	for j, opt := range q.Options {
		if strings.TrimSpace(opt.ID) == "" || strings.TrimSpace(opt.Text) == "" {
			issues = append(issues, FieldIssue{fmt.Sprintf("%s.options[%d]", prefix, j), "id/text must not be empty"})
		}
		if _, dup := optionIDs[opt.ID]; dup {
			issues = append(issues, FieldIssue{fmt.Sprintf("%s.options[%d].id", prefix, j), "must be unique"})
		}
		optionIDs[opt.ID] = struct{}{}
	}

	switch {
	case q.Type == QuestionSingle && q.Answer.Kind == AnswerSingle:
		if strings.TrimSpace(q.Answer.OptionID) == "" {
			issues = append(issues, FieldIssue{prefix + ".answer.optionId", "must not be empty"})
		} else if _, ok := optionIDs[q.Answer.OptionID]; !ok {
			issues = append(issues, FieldIssue{prefix + ".answer.optionId", "must reference existing option id"})
		}

	case q.Type == QuestionMulti && q.Answer.Kind == AnswerMulti:
		if len(q.Answer.OptionIDs) == 0 {
			issues = append(issues, FieldIssue{prefix + ".answer.optionIds", "must not be empty"})
		}
		seen := make(map[string]struct{}, len(q.Answer.OptionIDs))
		for k, id := range q.Answer.OptionIDs {
			field := fmt.Sprintf("%s.answer.optionIds[%d]", prefix, k)
			if _, dup := seen[id]; dup {
				issues = append(issues, FieldIssue{field, "must be unique"})
			}
			seen[id] = struct{}{}
			if _, ok := optionIDs[id]; !ok {
				issues = append(issues, FieldIssue{field, "must reference existing option id"})
			}
		}

	default:
		issues = append(issues, FieldIssue{prefix + ".answer", "must match question type"})
	}

	return issues
}
