package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/horoquiz/horoquiz-backend/internal/model"
	"github.com/horoquiz/horoquiz-backend/internal/repository"
)

// Quiz service errors.
var (
	ErrQuizInvalid = errors.New("quiz content is invalid")
	ErrNotAuthor   = errors.New("quiz belongs to another teacher")
)

// QuizService owns quiz authoring: structural validation happens here,
// before anything reaches the database.
type QuizService struct {
	quizzes *repository.QuizRepository
	log     zerolog.Logger
}

func NewQuizService(quizzes *repository.QuizRepository, log zerolog.Logger) *QuizService {
	return &QuizService{
		quizzes: quizzes,
		log:     log.With().Str("component", "quiz_service").Logger(),
	}
}

// Create validates and stores a new quiz as a draft. Returned issues are
// non-nil only when validation failed.
func (s *QuizService) Create(ctx context.Context, q *model.Quiz) ([]model.FieldIssue, error) {
	if issues := model.ValidateQuiz(q); issues != nil {
		return issues, ErrQuizInvalid
	}
	q.IsPublished = false
	if err := s.quizzes.Create(ctx, q); err != nil {
		return nil, err
	}
	s.log.Info().Int64("quiz_id", q.ID).Int64("teacher_id", q.TeacherID).Msg("Quiz created")
	return nil, nil
}

// Get returns a quiz owned by teacherID.
func (s *QuizService) Get(ctx context.Context, id, teacherID int64) (*model.Quiz, error) {
	q, err := s.quizzes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.TeacherID != teacherID {
		return nil, ErrNotAuthor
	}
	return q, nil
}

// List returns every quiz owned by teacherID.
func (s *QuizService) List(ctx context.Context, teacherID int64) ([]model.Quiz, error) {
	return s.quizzes.GetByTeacher(ctx, teacherID)
}

// Update replaces a quiz's content after re-validating it.
func (s *QuizService) Update(ctx context.Context, q *model.Quiz) ([]model.FieldIssue, error) {
	if issues := model.ValidateQuiz(q); issues != nil {
		return issues, ErrQuizInvalid
	}
	return nil, s.quizzes.Update(ctx, q)
}

// Publish re-validates and marks a quiz available for sessions.
func (s *QuizService) Publish(ctx context.Context, id, teacherID int64) ([]model.FieldIssue, error) {
	q, err := s.Get(ctx, id, teacherID)
	if err != nil {
		return nil, err
	}
	if issues := model.ValidateQuiz(q); issues != nil {
		return issues, ErrQuizInvalid
	}
	return nil, s.quizzes.SetPublished(ctx, id, teacherID, true)
}

// Delete removes a quiz owned by teacherID.
func (s *QuizService) Delete(ctx context.Context, id, teacherID int64) error {
	return s.quizzes.Delete(ctx, id, teacherID)
}
