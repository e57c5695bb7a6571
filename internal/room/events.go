package room

import (
	"time"

	"github.com/horoquiz/horoquiz-backend/internal/model"
	"github.com/horoquiz/horoquiz-backend/internal/protocol"
)

// Conn is the room-side handle of one WebSocket connection. Send enqueues
// to the connection's bounded outbound queue and never blocks on the
// network; Close initiates a graceful shutdown with a terminal reason.
type Conn interface {
	ID() string
	Send(env protocol.Envelope) error
	Close(reason string)
}

// Event is a message in a room's mailbox. All room state mutations happen
// while the actor handles one of these, one at a time.
type Event interface {
	isEvent()
}

// ─── Adapter-originated events ──────────────────────────────────────

// JoinRoom binds a connection to a role: a student claiming a nickname or
// the teacher presenting the session host token.
type JoinRoom struct {
	Conn      Conn
	Role      string
	Nickname  string
	CSRF      string
	RequestID string
}

// StartQuiz transitions the session from waiting to active.
type StartQuiz struct {
	Conn      Conn
	RequestID string
}

// EndQuiz transitions the session from active to finished.
type EndQuiz struct {
	Conn      Conn
	RequestID string
}

// RequestQuestion asks for the next eligible question for the student.
type RequestQuestion struct {
	Conn      Conn
	Reason    string
	RequestID string
}

// AnswerSubmit carries a graded attempt against a reserved question.
type AnswerSubmit struct {
	Conn       Conn
	QuestionID string
	Answer     model.Answer
	RequestID  string
}

// RequestStats asks for an immediate stats snapshot (teacher only).
type RequestStats struct {
	Conn      Conn
	RequestID string
}

// ConnectionClosed reports that a connection's read loop has exited.
type ConnectionClosed struct {
	Conn Conn
}

// BadEnvelope reports an inbound frame the adapter could not parse or
// validate; the originator alone is answered.
type BadEnvelope struct {
	Conn      Conn
	Message   string
	RequestID string
}

func (JoinRoom) isEvent()         {}
func (StartQuiz) isEvent()        {}
func (EndQuiz) isEvent()          {}
func (RequestQuestion) isEvent()  {}
func (AnswerSubmit) isEvent()     {}
func (RequestStats) isEvent()     {}
func (ConnectionClosed) isEvent() {}
func (BadEnvelope) isEvent()      {}

// ─── Internal events (timers, lifecycle) ────────────────────────────

type attach struct {
	conn  Conn
	reply chan error
}

type flushStats struct{}

type flushWaiting struct{}

type leftExpired struct {
	participantID int64
	gen           int
}

type teacherGraceExpired struct {
	gen int
}

type reservationExpired struct {
	participantID int64
	seq           uint64
}

type closeAll struct{}

func (attach) isEvent()              {}
func (flushStats) isEvent()          {}
func (flushWaiting) isEvent()        {}
func (leftExpired) isEvent()         {}
func (teacherGraceExpired) isEvent() {}
func (reservationExpired) isEvent()  {}
func (closeAll) isEvent()            {}

// Timings groups every duration the actor schedules against. Tests shrink
// these to keep scenarios fast.
type Timings struct {
	// StoreTimeout bounds each store gateway call.
	StoreTimeout time.Duration
	// LeftGrace is how long a disconnected student may reconnect before
	// being marked left.
	LeftGrace time.Duration
	// TeacherGrace is how long a session runs headless before it is
	// reported as stalled. The session is never auto-finished.
	TeacherGrace time.Duration
	// ReservationTTL expires a pushed question with no answer.
	ReservationTTL time.Duration
	// StatsWindow and WaitingWindow are the broadcast coalescing windows.
	StatsWindow   time.Duration
	WaitingWindow time.Duration
	// DrainTimeout is granted to connection writers after end_quiz before
	// sockets are closed.
	DrainTimeout time.Duration
}

// DefaultTimings returns the production durations.
func DefaultTimings() Timings {
	return Timings{
		StoreTimeout:   5 * time.Second,
		LeftGrace:      30 * time.Second,
		TeacherGrace:   60 * time.Second,
		ReservationTTL: 10 * time.Minute,
		StatsWindow:    200 * time.Millisecond,
		WaitingWindow:  150 * time.Millisecond,
		DrainTimeout:   2 * time.Second,
	}
}

// TokenVerifier validates the credential a teacher presents at join_room
// against the session it targets.
type TokenVerifier func(token string, session *model.Session) error
