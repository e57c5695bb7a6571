// Package store defines the narrow persistence surface the room actor
// depends on, together with its error taxonomy. The SQL implementation
// lives in postgres.go; memory.go provides an in-process implementation
// for tests and local development.
package store

import (
	"context"
	"time"

	"github.com/horoquiz/horoquiz-backend/internal/model"
)

// AnswerRecord is one append-only answer attempt row.
type AnswerRecord struct {
	SessionID     int64        `json:"session_id"`
	ParticipantID int64        `json:"participant_id"`
	QuestionID    string       `json:"question_id"`
	AttemptNo     int          `json:"attempt_no"`
	Payload       model.Answer `json:"payload"`
	Verdict       string       `json:"verdict"`
	AnsweredAt    time.Time    `json:"answered_at"`
}

// QuestionStateRow is the persisted per-participant per-question progress.
type QuestionStateRow struct {
	SessionID     int64
	ParticipantID int64
	QuestionID    string
	State         model.QuestionState
}

// AggregateRow is a per-participant or class-wide (ParticipantID nil) tally.
type AggregateRow struct {
	SessionID     int64
	ParticipantID *int64
	Correct       int
	Wrong         int
	Pct           float64
	UpdatedAt     time.Time
}

// ParticipantRecord is a participant together with their persisted
// question states, keyed by question id.
type ParticipantRecord struct {
	Participant model.Participant
	Questions   map[string]model.QuestionState
}

// SessionSnapshot is everything a room needs to materialise: session
// metadata, quiz content including answer keys, and previously persisted
// participants, question states, and aggregates.
type SessionSnapshot struct {
	Session      model.Session
	Questions    []model.Question
	Participants []ParticipantRecord
	Aggregates   []AggregateRow
}

// Gateway is the persistence interface the orchestrator calls. All writes
// are issued from a room's serialized context, so implementations need no
// intra-room transactional isolation, but must tolerate concurrent
// activity from other rooms.
type Gateway interface {
	// LoadSession materialises a session by room code. Returns
	// ErrRoomNotFound when no session carries the code.
	LoadSession(ctx context.Context, roomCode string) (*SessionSnapshot, error)

	// CreateParticipant inserts a participant; a unique-constraint failure
	// on (session, nickname) surfaces as ErrNicknameTaken.
	CreateParticipant(ctx context.Context, sessionID int64, nickname string, connectedAt time.Time) (int64, error)

	// RecordAnswer appends an attempt; idempotent on
	// (session, participant, question, attemptNo).
	RecordAnswer(ctx context.Context, rec *AnswerRecord) error

	UpsertQuestionState(ctx context.Context, row *QuestionStateRow) error

	UpsertAggregate(ctx context.Context, row *AggregateRow) error

	SetSessionStatus(ctx context.Context, sessionID int64, status model.SessionStatus, startedAt, endedAt *time.Time) error

	MarkParticipantLeft(ctx context.Context, participantID int64, leftAt time.Time) error
}
