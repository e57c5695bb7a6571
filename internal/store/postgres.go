package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/horoquiz/horoquiz-backend/internal/model"
)

const (
	// SessionEventsQueue is the Redis list feeding the event-log worker.
	SessionEventsQueue = "session_events_queue"

	// classAggregateID is the participant_id sentinel for the class-wide
	// aggregate row; real participant ids start at 1.
	classAggregateID int64 = 0

	quizCacheTTL = time.Hour

	pgUniqueViolation = "23505"
)

func quizCacheKey(quizID int64) string {
	return fmt.Sprintf("quiz:%d:content", quizID)
}

// PostgresGateway implements Gateway on pgx with a Redis cache for quiz
// content and a Redis queue for the answer event log.
type PostgresGateway struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

// NewPostgresGateway creates a PostgresGateway.
func NewPostgresGateway(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *PostgresGateway {
	return &PostgresGateway{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "store").Logger(),
	}
}

// LoadSession materialises session metadata, quiz content, and persisted
// participant progress in one call.
func (g *PostgresGateway) LoadSession(ctx context.Context, roomCode string) (*SessionSnapshot, error) {
	var s model.Session
	err := g.pool.QueryRow(ctx,
		`SELECT id, room_code, join_token, quiz_id, teacher_id, game_mode, status, started_at, ended_at, created_at
		 FROM quiz_sessions
		 WHERE room_code = $1`, roomCode,
	).Scan(&s.ID, &s.RoomCode, &s.JoinToken, &s.QuizID, &s.TeacherID, &s.GameMode, &s.Status, &s.StartedAt, &s.EndedAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, classify(fmt.Errorf("load session: %w", err))
	}

	questions, err := g.loadQuizContent(ctx, s.QuizID)
	if err != nil {
		return nil, err
	}

	participants, err := g.loadParticipants(ctx, s.ID)
	if err != nil {
		return nil, err
	}

	aggregates, err := g.loadAggregates(ctx, s.ID)
	if err != nil {
		return nil, err
	}

	return &SessionSnapshot{
		Session:      s,
		Questions:    questions,
		Participants: participants,
		Aggregates:   aggregates,
	}, nil
}

// loadQuizContent fetches quiz questions, going through the Redis cache on
// the hot path. A cache failure falls back to SQL silently.
func (g *PostgresGateway) loadQuizContent(ctx context.Context, quizID int64) ([]model.Question, error) {
	key := quizCacheKey(quizID)

	if raw, err := g.rdb.Get(ctx, key).Result(); err == nil {
		var questions []model.Question
		if err := json.Unmarshal([]byte(raw), &questions); err == nil {
			numberQuestions(questions)
			return questions, nil
		}
		g.log.Warn().Int64("quiz_id", quizID).Msg("Corrupt quiz cache entry, reloading")
	}

	var raw []byte
	err := g.pool.QueryRow(ctx,
		`SELECT questions FROM quizzes WHERE id = $1`, quizID,
	).Scan(&raw)
	if err != nil {
		return nil, classify(fmt.Errorf("load quiz %d: %w", quizID, err))
	}

	var questions []model.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode quiz %d content: %w", quizID, err)
	}
	numberQuestions(questions)

	if err := g.rdb.Set(ctx, key, raw, quizCacheTTL).Err(); err != nil {
		g.log.Warn().Err(err).Int64("quiz_id", quizID).Msg("Quiz cache write failed")
	}
	return questions, nil
}

// numberQuestions assigns the stable position used by question selection.
func numberQuestions(questions []model.Question) {
	for i := range questions {
		questions[i].Position = i
	}
}

func (g *PostgresGateway) loadParticipants(ctx context.Context, sessionID int64) ([]ParticipantRecord, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT id, session_id, nickname, join_state, connected_at, left_at
		 FROM session_participants
		 WHERE session_id = $1
		 ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("load participants: %w", err))
	}
	defer rows.Close()

	byID := make(map[int64]*ParticipantRecord)
	var records []*ParticipantRecord
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.ID, &p.SessionID, &p.Nickname, &p.JoinState, &p.ConnectedAt, &p.LeftAt); err != nil {
			return nil, classify(err)
		}
		rec := &ParticipantRecord{Participant: p, Questions: make(map[string]model.QuestionState)}
		byID[p.ID] = rec
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}

	stateRows, err := g.pool.Query(ctx,
		`SELECT participant_id, question_id, attempts, is_correct, first_attempt_at, last_attempt_at
		 FROM session_question_states
		 WHERE session_id = $1`, sessionID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("load question states: %w", err))
	}
	defer stateRows.Close()

	for stateRows.Next() {
		var pid int64
		var qid string
		var qs model.QuestionState
		if err := stateRows.Scan(&pid, &qid, &qs.Attempts, &qs.IsCorrect, &qs.FirstAttemptAt, &qs.LastAttemptAt); err != nil {
			return nil, classify(err)
		}
		if rec, ok := byID[pid]; ok {
			rec.Questions[qid] = qs
		}
	}
	if err := stateRows.Err(); err != nil {
		return nil, classify(err)
	}

	out := make([]ParticipantRecord, 0, len(records))
	for _, rec := range records {
		out = append(out, *rec)
	}
	return out, nil
}

func (g *PostgresGateway) loadAggregates(ctx context.Context, sessionID int64) ([]AggregateRow, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT participant_id, correct_count, wrong_count, correct_pct, updated_at
		 FROM session_stats_aggregate
		 WHERE session_id = $1`, sessionID,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("load aggregates: %w", err))
	}
	defer rows.Close()

	var out []AggregateRow
	for rows.Next() {
		var pid int64
		row := AggregateRow{SessionID: sessionID}
		if err := rows.Scan(&pid, &row.Correct, &row.Wrong, &row.Pct, &row.UpdatedAt); err != nil {
			return nil, classify(err)
		}
		if pid != classAggregateID {
			id := pid
			row.ParticipantID = &id
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CreateParticipant inserts a participant row; the unique index on
// (session_id, nickname) surfaces as ErrNicknameTaken.
func (g *PostgresGateway) CreateParticipant(ctx context.Context, sessionID int64, nickname string, connectedAt time.Time) (int64, error) {
	var id int64
	err := g.pool.QueryRow(ctx,
		`INSERT INTO session_participants (session_id, nickname, join_state, connected_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		sessionID, nickname, model.JoinStateWaiting, connectedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, ErrNicknameTaken
		}
		return 0, classify(fmt.Errorf("create participant: %w", err))
	}
	return id, nil
}

// RecordAnswer appends one attempt row, idempotent on the natural key, and
// publishes the event to the Redis queue for the event-log worker.
func (g *PostgresGateway) RecordAnswer(ctx context.Context, rec *AnswerRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encode answer payload: %w", err)
	}

	_, err = g.pool.Exec(ctx,
		`INSERT INTO session_answers (session_id, participant_id, question_id, attempt_no, payload, verdict, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, participant_id, question_id, attempt_no) DO NOTHING`,
		rec.SessionID, rec.ParticipantID, rec.QuestionID, rec.AttemptNo, payload, rec.Verdict, rec.AnsweredAt,
	)
	if err != nil {
		return classify(fmt.Errorf("record answer: %w", err))
	}

	// Best effort: the answer row is the source of truth, the queue only
	// feeds the analytics event log.
	if event, err := json.Marshal(rec); err == nil {
		if err := g.rdb.RPush(ctx, SessionEventsQueue, event).Err(); err != nil {
			g.log.Warn().Err(err).Int64("session_id", rec.SessionID).Msg("Event queue push failed")
		}
	}
	return nil
}

// UpsertQuestionState writes progress for one (participant, question).
// is_correct is sticky at the SQL level as well.
func (g *PostgresGateway) UpsertQuestionState(ctx context.Context, row *QuestionStateRow) error {
	_, err := g.pool.Exec(ctx,
		`INSERT INTO session_question_states (session_id, participant_id, question_id, attempts, is_correct, first_attempt_at, last_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id, participant_id, question_id) DO UPDATE
		 SET attempts = EXCLUDED.attempts,
		     is_correct = session_question_states.is_correct OR EXCLUDED.is_correct,
		     last_attempt_at = EXCLUDED.last_attempt_at`,
		row.SessionID, row.ParticipantID, row.QuestionID,
		row.State.Attempts, row.State.IsCorrect, row.State.FirstAttemptAt, row.State.LastAttemptAt,
	)
	if err != nil {
		return classify(fmt.Errorf("upsert question state: %w", err))
	}
	return nil
}

// UpsertAggregate writes one aggregate row; a nil ParticipantID targets the
// class-wide row.
func (g *PostgresGateway) UpsertAggregate(ctx context.Context, row *AggregateRow) error {
	pid := classAggregateID
	if row.ParticipantID != nil {
		pid = *row.ParticipantID
	}
	_, err := g.pool.Exec(ctx,
		`INSERT INTO session_stats_aggregate (session_id, participant_id, correct_count, wrong_count, correct_pct, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (session_id, participant_id) DO UPDATE
		 SET correct_count = EXCLUDED.correct_count,
		     wrong_count = EXCLUDED.wrong_count,
		     correct_pct = EXCLUDED.correct_pct,
		     updated_at = EXCLUDED.updated_at`,
		row.SessionID, pid, row.Correct, row.Wrong, row.Pct, row.UpdatedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("upsert aggregate: %w", err))
	}
	return nil
}

// SetSessionStatus transitions a session, stamping start/end when provided.
func (g *PostgresGateway) SetSessionStatus(ctx context.Context, sessionID int64, status model.SessionStatus, startedAt, endedAt *time.Time) error {
	_, err := g.pool.Exec(ctx,
		`UPDATE quiz_sessions
		 SET status = $2,
		     started_at = COALESCE($3, started_at),
		     ended_at = COALESCE($4, ended_at)
		 WHERE id = $1`,
		sessionID, status, startedAt, endedAt,
	)
	if err != nil {
		return classify(fmt.Errorf("set session status: %w", err))
	}
	return nil
}

// MarkParticipantLeft stamps left_at after the disconnect grace expires.
func (g *PostgresGateway) MarkParticipantLeft(ctx context.Context, participantID int64, leftAt time.Time) error {
	_, err := g.pool.Exec(ctx,
		`UPDATE session_participants
		 SET join_state = $2, left_at = $3
		 WHERE id = $1`,
		participantID, model.JoinStateLeft, leftAt,
	)
	if err != nil {
		return classify(fmt.Errorf("mark participant left: %w", err))
	}
	return nil
}
