// Package protocol defines the WebSocket wire schema shared by the room
// actor and the connection adapter: the message envelope, event names, and
// typed payloads for both directions.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/horoquiz/horoquiz-backend/internal/model"
)

// TimeFormat is RFC 3339 with millisecond precision, used for the envelope
// ts field and all timestamps on the wire.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ─── Events (Client → Server) ───────────────────────────────────────

const (
	EventJoinRoom        = "join_room"
	EventAnswerSubmit    = "answer_submit"
	EventRequestQuestion = "request_question"
	EventRequestStats    = "request_stats"
	// StartQuiz and EndQuiz arrive on the teacher's connection.
	EventStartQuiz = "start_quiz"
	EventEndQuiz   = "end_quiz"
)

// ─── Events (Server → Client) ───────────────────────────────────────

const (
	EventWaitingRoomUpdate = "waiting_room_update"
	EventQuestionPush      = "question_push"
	EventAnswerResult      = "answer_result"
	EventStatsUpdate       = "stats_update"
	EventNoMoreQuestions   = "no_more_questions"
	EventQuestionExpired   = "question_expired"
	EventBadRequest        = "bad_request"
	EventInternalError     = "internal_error"
)

// IsCritical reports whether an outbound event carries causal meaning to a
// specific client and therefore must never be coalesced or dropped.
func IsCritical(event string) bool {
	switch event {
	case EventQuestionPush, EventAnswerResult, EventStartQuiz, EventEndQuiz:
		return true
	}
	return false
}

// ─── Error codes carried in bad_request / internal_error payloads ───

const (
	CodeBadRequest        = "BAD_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNicknameTaken     = "NICKNAME_TAKEN"
	CodeNicknameInUse     = "NICKNAME_IN_USE"
	CodeRoomClosed        = "ROOM_CLOSED"
	CodeRoomNotFound      = "ROOM_NOT_FOUND"
	CodeInternal          = "INTERNAL_ERROR"
	CodeSupersededByNewer = "SUPERSEDED_BY_NEWER"
	CodeTimeout           = "TIMEOUT"
	CodeBackpressure      = "BACKPRESSURE_FATAL"
)

// Envelope frames every message in both directions. Payload stays raw so
// the adapter can dispatch on Event before full parsing.
type Envelope struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	TS        string          `json:"ts,omitempty"`
}

// NewEnvelope builds an outbound envelope, marshalling the payload and
// stamping the current time.
func NewEnvelope(event string, payload any, requestID string) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Event:     event,
		Payload:   raw,
		RequestID: requestID,
		TS:        time.Now().UTC().Format(TimeFormat),
	}, nil
}

// ─── Inbound payloads ───────────────────────────────────────────────

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

type JoinRoomPayload struct {
	Role     string `json:"role"`
	Nickname string `json:"nickname,omitempty"`
	CSRF     string `json:"csrf,omitempty"`
}

type AnswerSubmitPayload struct {
	QuestionID string       `json:"questionId"`
	Answer     model.Answer `json:"answer"`
}

// Request reasons are informational trigger tags from the mini-games and
// are echoed back on question_push.
const (
	ReasonDeath   = "death"
	ReasonLevelUp = "level_up"
	ReasonRetry   = "retry"
)

type RequestQuestionPayload struct {
	Reason string `json:"reason"`
}

// ValidReason reports whether a request_question reason is known.
func ValidReason(r string) bool {
	switch r {
	case ReasonDeath, ReasonLevelUp, ReasonRetry:
		return true
	}
	return false
}

// ─── Outbound payloads ──────────────────────────────────────────────

type ParticipantView struct {
	Nickname string `json:"nickname"`
	State    string `json:"state"`
}

type WaitingRoomUpdatePayload struct {
	SessionID    int64             `json:"sessionId"`
	Participants []ParticipantView `json:"participants"`
}

type StartQuizPayload struct {
	SessionID int64  `json:"sessionId"`
	GameMode  string `json:"gameMode"`
	StartedAt string `json:"startedAt"`
}

type QuestionPushPayload struct {
	Question model.QuestionPublic `json:"question"`
	Reason   string               `json:"reason"`
}

const (
	NextActionRetry    = "retry"
	NextActionContinue = "continue"
)

type AnswerResultPayload struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
	NextAction string `json:"nextAction"`
}

type ClassStatsView struct {
	CorrectPct float64 `json:"correctPct"`
	WrongPct   float64 `json:"wrongPct"`
}

type StudentStatsView struct {
	Nickname   string  `json:"nickname"`
	Correct    int     `json:"correct"`
	Wrong      int     `json:"wrong"`
	CorrectPct float64 `json:"correctPct"`
}

type StatsUpdatePayload struct {
	Class    ClassStatsView     `json:"class"`
	Students []StudentStatsView `json:"students"`
}

type EndQuizPayload struct {
	SessionID    int64  `json:"sessionId"`
	EndedAt      string `json:"endedAt"`
	ResultsReady bool   `json:"resultsReady"`
}

type NoMoreQuestionsPayload struct{}

type QuestionExpiredPayload struct {
	QuestionID string `json:"questionId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
