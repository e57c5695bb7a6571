package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/horoquiz/horoquiz-backend/internal/model"
)

// ErrQuizNotFound is returned when a quiz id does not exist.
var ErrQuizNotFound = errors.New("quiz not found")

type QuizRepository struct {
	pool *pgxpool.Pool
}

func NewQuizRepository(pool *pgxpool.Pool) *QuizRepository {
	return &QuizRepository{pool: pool}
}

func (r *QuizRepository) Create(ctx context.Context, q *model.Quiz) error {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO quizzes (teacher_id, title, description, questions, is_published)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		q.TeacherID, q.Title, q.Description, questions, q.IsPublished).Scan(&q.ID)
}

func (r *QuizRepository) GetByID(ctx context.Context, id int64) (*model.Quiz, error) {
	var q model.Quiz
	var questions []byte
	err := r.pool.QueryRow(ctx,
		`SELECT id, teacher_id, title, description, questions, is_published
		 FROM quizzes WHERE id = $1`,
		id).Scan(&q.ID, &q.TeacherID, &q.Title, &q.Description, &questions, &q.IsPublished)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuizNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &q.Questions); err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuizRepository) GetByTeacher(ctx context.Context, teacherID int64) ([]model.Quiz, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, teacher_id, title, description, questions, is_published
		 FROM quizzes WHERE teacher_id = $1 ORDER BY id DESC`,
		teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []model.Quiz
	for rows.Next() {
		var q model.Quiz
		var questions []byte
		if err := rows.Scan(&q.ID, &q.TeacherID, &q.Title, &q.Description, &questions, &q.IsPublished); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(questions, &q.Questions); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, q)
	}
	return quizzes, rows.Err()
}

func (r *QuizRepository) Update(ctx context.Context, q *model.Quiz) error {
	questions, err := json.Marshal(q.Questions)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE quizzes SET title = $1, description = $2, questions = $3, updated_at = NOW()
		 WHERE id = $4 AND teacher_id = $5`,
		q.Title, q.Description, questions, q.ID, q.TeacherID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuizNotFound
	}
	return nil
}

func (r *QuizRepository) SetPublished(ctx context.Context, id, teacherID int64, published bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE quizzes SET is_published = $1, updated_at = NOW() WHERE id = $2 AND teacher_id = $3`,
		published, id, teacherID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuizNotFound
	}
	return nil
}

func (r *QuizRepository) Delete(ctx context.Context, id, teacherID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM quizzes WHERE id = $1 AND teacher_id = $2`, id, teacherID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrQuizNotFound
	}
	return nil
}
