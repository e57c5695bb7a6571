package model

import "time"

// QuestionResult is one participant's final state on one question.
type QuestionResult struct {
	QuestionID string `json:"question_id"`
	Attempts   int    `json:"attempts"`
	IsCorrect  bool   `json:"is_correct"`
}

// ParticipantResult is one participant's final tally with per-question
// breakdown.
type ParticipantResult struct {
	Nickname   string           `json:"nickname"`
	JoinState  JoinState        `json:"join_state"`
	Correct    int              `json:"correct_count"`
	Wrong      int              `json:"wrong_count"`
	CorrectPct float64          `json:"correct_pct"`
	Questions  []QuestionResult `json:"questions"`
}

// SessionResults is the post-session report served over HTTP once the
// session has finished.
type SessionResults struct {
	SessionID    int64               `json:"session_id"`
	RoomCode     string              `json:"room_code"`
	QuizID       int64               `json:"quiz_id"`
	GameMode     GameMode            `json:"game_mode"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	EndedAt      *time.Time          `json:"ended_at,omitempty"`
	Class        Aggregate           `json:"class"`
	Participants []ParticipantResult `json:"participants"`
}
