package model

import (
	"math"
	"time"
	"unicode"
	"unicode/utf8"
)

// GameMode selects the experiential mode of a session. All game modes are
// treated uniformly by the orchestrator; classic disables the game gate.
type GameMode string

const (
	GameModePlatformer GameMode = "platformer"
	GameModeShooter    GameMode = "shooter"
	GameModeTycoon     GameMode = "tycoon"
	GameModeClassic    GameMode = "classic"
)

// Valid reports whether m is a known game mode.
func (m GameMode) Valid() bool {
	switch m {
	case GameModePlatformer, GameModeShooter, GameModeTycoon, GameModeClassic:
		return true
	}
	return false
}

// SessionStatus enumerates session lifecycle states.
type SessionStatus string

const (
	SessionWaiting  SessionStatus = "waiting"
	SessionActive   SessionStatus = "active"
	SessionFinished SessionStatus = "finished"
)

// Session is one live-quiz session row.
type Session struct {
	ID        int64         `json:"id"`
	RoomCode  string        `json:"room_code"`
	JoinToken string        `json:"-"`
	QuizID    int64         `json:"quiz_id"`
	TeacherID int64         `json:"teacher_id"`
	GameMode  GameMode      `json:"game_mode"`
	Status    SessionStatus `json:"status"`
	StartedAt *time.Time    `json:"started_at,omitempty"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// JoinState enumerates participant presence states.
type JoinState string

const (
	JoinStateWaiting JoinState = "waiting"
	JoinStatePlaying JoinState = "playing"
	JoinStateLeft    JoinState = "left"
)

// Participant is a student bound by nickname within a session.
type Participant struct {
	ID          int64      `json:"id"`
	SessionID   int64      `json:"session_id"`
	Nickname    string     `json:"nickname"`
	JoinState   JoinState  `json:"join_state"`
	ConnectedAt time.Time  `json:"connected_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}

// QuestionState tracks one participant's progress on one question.
// IsCorrect only ever transitions false to true.
type QuestionState struct {
	Attempts       int       `json:"attempts"`
	IsCorrect      bool      `json:"is_correct"`
	FirstAttemptAt time.Time `json:"first_attempt_at"`
	LastAttemptAt  time.Time `json:"last_attempt_at"`
}

// Aggregate is a running (correct, wrong, pct) tally, either per participant
// or class-wide.
type Aggregate struct {
	CorrectCount int     `json:"correct_count"`
	WrongCount   int     `json:"wrong_count"`
	CorrectPct   float64 `json:"correct_pct"`
}

// CorrectPct computes correct/(correct+wrong) as a percentage rounded to
// two decimals. Zero attempts yields zero.
func CorrectPct(correct, wrong int) float64 {
	total := correct + wrong
	if total == 0 {
		return 0
	}
	return math.Round(float64(correct)*10000/float64(total)) / 100
}

const (
	nicknameMinLen = 2
	nicknameMaxLen = 64
)

// ValidNickname enforces the nickname constraints: 2–64 characters,
// no control characters.
func ValidNickname(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < nicknameMinLen || n > nicknameMaxLen {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
