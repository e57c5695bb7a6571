package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/horoquiz/horoquiz-backend/internal/model"
)

// Session repository errors.
var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrRoomCodeConflict = errors.New("room code already in use")
)

const uniqueViolation = "23505"

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// Create inserts a session row. A room-code collision surfaces as
// ErrRoomCodeConflict so the caller can regenerate and retry.
func (r *SessionRepository) Create(ctx context.Context, s *model.Session) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO quiz_sessions (room_code, join_token, quiz_id, teacher_id, game_mode, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at`,
		s.RoomCode, s.JoinToken, s.QuizID, s.TeacherID, s.GameMode, s.Status).
		Scan(&s.ID, &s.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrRoomCodeConflict
	}
	return err
}

func (r *SessionRepository) GetByID(ctx context.Context, id int64) (*model.Session, error) {
	var s model.Session
	err := r.pool.QueryRow(ctx,
		`SELECT id, room_code, join_token, quiz_id, teacher_id, game_mode, status, started_at, ended_at, created_at
		 FROM quiz_sessions WHERE id = $1`,
		id).Scan(&s.ID, &s.RoomCode, &s.JoinToken, &s.QuizID, &s.TeacherID, &s.GameMode,
		&s.Status, &s.StartedAt, &s.EndedAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) GetByTeacher(ctx context.Context, teacherID int64) ([]model.Session, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, room_code, join_token, quiz_id, teacher_id, game_mode, status, started_at, ended_at, created_at
		 FROM quiz_sessions WHERE teacher_id = $1 ORDER BY created_at DESC`,
		teacherID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.Session
	for rows.Next() {
		var s model.Session
		if err := rows.Scan(&s.ID, &s.RoomCode, &s.JoinToken, &s.QuizID, &s.TeacherID, &s.GameMode,
			&s.Status, &s.StartedAt, &s.EndedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Results assembles the post-session report from the persisted
// aggregates and question states. The caller checks the session is
// finished before exposing it.
func (r *SessionRepository) Results(ctx context.Context, sessionID int64) (*model.SessionResults, error) {
	s, err := r.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	out := &model.SessionResults{
		SessionID:    s.ID,
		RoomCode:     s.RoomCode,
		QuizID:       s.QuizID,
		GameMode:     s.GameMode,
		StartedAt:    s.StartedAt,
		EndedAt:      s.EndedAt,
		Participants: []model.ParticipantResult{},
	}

	// Class row uses participant_id = 0 as sentinel.
	err = r.pool.QueryRow(ctx,
		`SELECT correct_count, wrong_count, correct_pct
		 FROM session_stats_aggregate WHERE session_id = $1 AND participant_id = 0`,
		sessionID).Scan(&out.Class.CorrectCount, &out.Class.WrongCount, &out.Class.CorrectPct)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT p.id, p.nickname, p.join_state,
		        COALESCE(a.correct_count, 0), COALESCE(a.wrong_count, 0), COALESCE(a.correct_pct, 0)
		 FROM session_participants p
		 LEFT JOIN session_stats_aggregate a
		   ON a.session_id = p.session_id AND a.participant_id = p.id
		 WHERE p.session_id = $1
		 ORDER BY p.nickname ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := make(map[int64]int)
	var ids []int64
	for rows.Next() {
		var id int64
		var pr model.ParticipantResult
		if err := rows.Scan(&id, &pr.Nickname, &pr.JoinState, &pr.Correct, &pr.Wrong, &pr.CorrectPct); err != nil {
			return nil, err
		}
		pr.Questions = []model.QuestionResult{}
		index[id] = len(out.Participants)
		ids = append(ids, id)
		out.Participants = append(out.Participants, pr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	qrows, err := r.pool.Query(ctx,
		`SELECT participant_id, question_id, attempts, is_correct
		 FROM session_question_states
		 WHERE session_id = $1
		 ORDER BY participant_id, question_id`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer qrows.Close()

	for qrows.Next() {
		var pid int64
		var qr model.QuestionResult
		if err := qrows.Scan(&pid, &qr.QuestionID, &qr.Attempts, &qr.IsCorrect); err != nil {
			return nil, err
		}
		if i, ok := index[pid]; ok {
			out.Participants[i].Questions = append(out.Participants[i].Questions, qr)
		}
	}
	return out, qrows.Err()
}
