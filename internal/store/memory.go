package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/horoquiz/horoquiz-backend/internal/model"
)

// MemoryGateway is an in-process Gateway used by tests and local
// development. It honours the same invariants as the SQL implementation:
// nickname uniqueness, idempotent answer rows, sticky is_correct.
type MemoryGateway struct {
	mu sync.Mutex

	sessions map[int64]*model.Session
	byCode   map[string]int64
	quizzes  map[int64][]model.Question

	participants map[int64]*model.Participant
	nextPID      int64

	states     map[string]model.QuestionState
	answers    map[string]AnswerRecord
	aggregates map[string]AggregateRow

	// pending errors consumed by subsequent write calls, oldest first
	injected []error
}

// NewMemoryGateway creates an empty MemoryGateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		sessions:     make(map[int64]*model.Session),
		byCode:       make(map[string]int64),
		quizzes:      make(map[int64][]model.Question),
		participants: make(map[int64]*model.Participant),
		states:       make(map[string]model.QuestionState),
		answers:      make(map[string]AnswerRecord),
		aggregates:   make(map[string]AggregateRow),
	}
}

// SeedSession registers a session and its quiz content.
func (m *MemoryGateway) SeedSession(s model.Session, questions []model.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := s
	m.sessions[s.ID] = &copied
	m.byCode[s.RoomCode] = s.ID
	qs := make([]model.Question, len(questions))
	copy(qs, questions)
	for i := range qs {
		qs[i].Position = i
	}
	m.quizzes[s.QuizID] = qs
}

// FailNextWrites queues err to be returned by the next n write calls.
func (m *MemoryGateway) FailNextWrites(err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < n; i++ {
		m.injected = append(m.injected, err)
	}
}

// takeInjected pops a queued failure, if any. Callers hold the lock.
func (m *MemoryGateway) takeInjected() error {
	if len(m.injected) == 0 {
		return nil
	}
	err := m.injected[0]
	m.injected = m.injected[1:]
	return err
}

func stateKey(sessionID, participantID int64, questionID string) string {
	return fmt.Sprintf("%d/%d/%s", sessionID, participantID, questionID)
}

func answerKey(sessionID, participantID int64, questionID string, attemptNo int) string {
	return fmt.Sprintf("%d/%d/%s/%d", sessionID, participantID, questionID, attemptNo)
}

func aggregateKey(sessionID int64, participantID *int64) string {
	if participantID == nil {
		return fmt.Sprintf("%d/class", sessionID)
	}
	return fmt.Sprintf("%d/%d", sessionID, *participantID)
}

func (m *MemoryGateway) LoadSession(_ context.Context, roomCode string) (*SessionSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byCode[roomCode]
	if !ok {
		return nil, ErrRoomNotFound
	}
	s := *m.sessions[id]

	questions := make([]model.Question, len(m.quizzes[s.QuizID]))
	copy(questions, m.quizzes[s.QuizID])

	var participants []ParticipantRecord
	for _, p := range m.participants {
		if p.SessionID != id {
			continue
		}
		rec := ParticipantRecord{Participant: *p, Questions: make(map[string]model.QuestionState)}
		for _, q := range questions {
			if qs, ok := m.states[stateKey(id, p.ID, q.ID)]; ok {
				rec.Questions[q.ID] = qs
			}
		}
		participants = append(participants, rec)
	}

	var aggregates []AggregateRow
	for _, row := range m.aggregates {
		if row.SessionID == id {
			aggregates = append(aggregates, row)
		}
	}

	return &SessionSnapshot{
		Session:      s,
		Questions:    questions,
		Participants: participants,
		Aggregates:   aggregates,
	}, nil
}

func (m *MemoryGateway) CreateParticipant(_ context.Context, sessionID int64, nickname string, connectedAt time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInjected(); err != nil {
		return 0, err
	}
	for _, p := range m.participants {
		if p.SessionID == sessionID && p.Nickname == nickname {
			return 0, ErrNicknameTaken
		}
	}
	m.nextPID++
	p := &model.Participant{
		ID:          m.nextPID,
		SessionID:   sessionID,
		Nickname:    nickname,
		JoinState:   model.JoinStateWaiting,
		ConnectedAt: connectedAt,
	}
	m.participants[p.ID] = p
	return p.ID, nil
}

func (m *MemoryGateway) RecordAnswer(_ context.Context, rec *AnswerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInjected(); err != nil {
		return err
	}
	key := answerKey(rec.SessionID, rec.ParticipantID, rec.QuestionID, rec.AttemptNo)
	if _, exists := m.answers[key]; !exists {
		m.answers[key] = *rec
	}
	return nil
}

func (m *MemoryGateway) UpsertQuestionState(_ context.Context, row *QuestionStateRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInjected(); err != nil {
		return err
	}
	key := stateKey(row.SessionID, row.ParticipantID, row.QuestionID)
	next := row.State
	if prev, ok := m.states[key]; ok && prev.IsCorrect {
		next.IsCorrect = true
	}
	m.states[key] = next
	return nil
}

func (m *MemoryGateway) UpsertAggregate(_ context.Context, row *AggregateRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInjected(); err != nil {
		return err
	}
	m.aggregates[aggregateKey(row.SessionID, row.ParticipantID)] = *row
	return nil
}

func (m *MemoryGateway) SetSessionStatus(_ context.Context, sessionID int64, status model.SessionStatus, startedAt, endedAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInjected(); err != nil {
		return err
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session %d not found", sessionID)
	}
	s.Status = status
	if startedAt != nil {
		s.StartedAt = startedAt
	}
	if endedAt != nil {
		s.EndedAt = endedAt
	}
	return nil
}

func (m *MemoryGateway) MarkParticipantLeft(_ context.Context, participantID int64, leftAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.takeInjected(); err != nil {
		return err
	}
	p, ok := m.participants[participantID]
	if !ok {
		return fmt.Errorf("participant %d not found", participantID)
	}
	p.JoinState = model.JoinStateLeft
	t := leftAt
	p.LeftAt = &t
	return nil
}

// ─── Test inspection helpers ────────────────────────────────────────

// AnswerCount returns the number of recorded attempts for one
// (participant, question).
func (m *MemoryGateway) AnswerCount(sessionID, participantID int64, questionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, rec := range m.answers {
		if rec.SessionID == sessionID && rec.ParticipantID == participantID && rec.QuestionID == questionID {
			n++
		}
	}
	return n
}

// ParticipantByNickname looks up a persisted participant.
func (m *MemoryGateway) ParticipantByNickname(sessionID int64, nickname string) (model.Participant, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.participants {
		if p.SessionID == sessionID && p.Nickname == nickname {
			return *p, true
		}
	}
	return model.Participant{}, false
}

// AggregateFor returns a persisted aggregate row; nil participantID means
// the class row.
func (m *MemoryGateway) AggregateFor(sessionID int64, participantID *int64) (AggregateRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.aggregates[aggregateKey(sessionID, participantID)]
	return row, ok
}

// SessionStatusOf returns the persisted status of a session.
func (m *MemoryGateway) SessionStatusOf(sessionID int64) model.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		return s.Status
	}
	return ""
}
