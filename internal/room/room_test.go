package room_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horoquiz/horoquiz-backend/internal/model"
	"github.com/horoquiz/horoquiz-backend/internal/protocol"
	"github.com/horoquiz/horoquiz-backend/internal/room"
	"github.com/horoquiz/horoquiz-backend/internal/store"
)

const (
	testRoomCode  = "ABC234"
	testHostToken = "host-token-ok"
)

// fakeConn records every envelope the room sends it.
type fakeConn struct {
	id string

	mu     sync.Mutex
	frames []protocol.Envelope
	closed bool
	reason string
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(env protocol.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.reason = reason
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

// waitFor blocks until the nth (1-based) frame of the given event arrives.
func (c *fakeConn) waitFor(t *testing.T, event string, nth int) protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		seen := 0
		for _, f := range c.frames {
			if f.Event == event {
				seen++
				if seen == nth {
					c.mu.Unlock()
					return f
				}
			}
		}
		c.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for frame %d of %q on conn %s", nth, event, c.id)
	return protocol.Envelope{}
}

func decodePayload[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Payload, &out))
	return out
}

func testQuestions() []model.Question {
	return []model.Question{
		{
			ID:     "q1",
			Type:   model.QuestionOpen,
			Prompt: "Capital of France?",
			Answer: model.Answer{Kind: model.AnswerOpen, Text: "Paris"},
		},
		{
			ID:     "q2",
			Type:   model.QuestionSingle,
			Prompt: "2 + 2 = ?",
			Options: []model.Option{
				{ID: "a", Text: "3"},
				{ID: "b", Text: "4"},
			},
			Answer: model.Answer{Kind: model.AnswerSingle, OptionID: "b"},
		},
	}
}

func testTimings() room.Timings {
	return room.Timings{
		StoreTimeout:   500 * time.Millisecond,
		LeftGrace:      40 * time.Millisecond,
		TeacherGrace:   50 * time.Millisecond,
		ReservationTTL: 10 * time.Minute,
		StatsWindow:    60 * time.Millisecond,
		WaitingWindow:  20 * time.Millisecond,
		DrainTimeout:   20 * time.Millisecond,
	}
}

func verifyTestToken(token string, _ *model.Session) error {
	if token != testHostToken {
		return errors.New("bad token")
	}
	return nil
}

func newTestRoom(t *testing.T, timings room.Timings) (*room.Room, *store.MemoryGateway) {
	t.Helper()

	gw := store.NewMemoryGateway()
	gw.SeedSession(model.Session{
		ID:       1,
		RoomCode: testRoomCode,
		QuizID:   10,
		GameMode: model.GameModePlatformer,
		Status:   model.SessionWaiting,
	}, testQuestions())

	snap, err := gw.LoadSession(context.Background(), testRoomCode)
	require.NoError(t, err)

	r := room.New(snap, gw, verifyTestToken, timings, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)
	return r, gw
}

func attach(t *testing.T, r *room.Room, c *fakeConn) {
	t.Helper()
	require.NoError(t, r.Attach(context.Background(), c))
}

func joinTeacher(t *testing.T, r *room.Room) *fakeConn {
	t.Helper()
	c := newFakeConn("teacher")
	attach(t, r, c)
	r.Enqueue(room.JoinRoom{Conn: c, Role: protocol.RoleTeacher, CSRF: testHostToken})
	c.waitFor(t, protocol.EventWaitingRoomUpdate, 1)
	return c
}

func joinStudent(t *testing.T, r *room.Room, nickname string) *fakeConn {
	t.Helper()
	c := newFakeConn("student-" + nickname)
	attach(t, r, c)
	r.Enqueue(room.JoinRoom{Conn: c, Role: protocol.RoleStudent, Nickname: nickname})
	c.waitFor(t, protocol.EventWaitingRoomUpdate, 1)
	return c
}

func startQuiz(t *testing.T, r *room.Room, teacher *fakeConn) {
	t.Helper()
	r.Enqueue(room.StartQuiz{Conn: teacher})
	teacher.waitFor(t, protocol.EventStartQuiz, 1)
}

func answer(t *testing.T, r *room.Room, c *fakeConn, questionID string, a model.Answer, nth int) protocol.AnswerResultPayload {
	t.Helper()
	r.Enqueue(room.AnswerSubmit{Conn: c, QuestionID: questionID, Answer: a})
	return decodePayload[protocol.AnswerResultPayload](t, c.waitFor(t, protocol.EventAnswerResult, nth))
}

// ─── Scenarios ──────────────────────────────────────────────────────

func TestHappyPath(t *testing.T) {
	r, gw := newTestRoom(t, testTimings())

	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")

	p, ok := gw.ParticipantByNickname(1, "alice")
	require.True(t, ok)

	startQuiz(t, r, teacher)
	alice.waitFor(t, protocol.EventStartQuiz, 1)
	assert.Equal(t, model.SessionActive, gw.SessionStatusOf(1))

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonDeath})
	pushEnv := alice.waitFor(t, protocol.EventQuestionPush, 1)
	push := decodePayload[protocol.QuestionPushPayload](t, pushEnv)
	assert.Equal(t, "q1", push.Question.ID)
	assert.Equal(t, protocol.ReasonDeath, push.Reason)
	// The answer key never reaches a client.
	assert.NotContains(t, string(pushEnv.Payload), `"answer"`)
	assert.NotContains(t, string(pushEnv.Payload), "Paris")

	res := answer(t, r, alice, "q1", model.Answer{Kind: model.AnswerOpen, Text: "  paris! "}, 1)
	assert.True(t, res.Correct)
	assert.Equal(t, protocol.NextActionContinue, res.NextAction)

	assert.Equal(t, 1, gw.AnswerCount(1, p.ID, "q1"))
	agg, ok := gw.AggregateFor(1, &p.ID)
	require.True(t, ok)
	assert.Equal(t, 1, agg.Correct)
	assert.Equal(t, 0, agg.Wrong)
	classAgg, ok := gw.AggregateFor(1, nil)
	require.True(t, ok)
	assert.Equal(t, 1, classAgg.Correct)

	stats := decodePayload[protocol.StatsUpdatePayload](t, teacher.waitFor(t, protocol.EventStatsUpdate, 1))
	require.Len(t, stats.Students, 1)
	assert.Equal(t, "alice", stats.Students[0].Nickname)
	assert.Equal(t, 100.0, stats.Students[0].CorrectPct)
}

func TestWrongAnswerRetriesSameQuestion(t *testing.T) {
	r, gw := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")
	startQuiz(t, r, teacher)

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonDeath})
	alice.waitFor(t, protocol.EventQuestionPush, 1)

	res := answer(t, r, alice, "q1", model.Answer{Kind: model.AnswerOpen, Text: "London"}, 1)
	assert.False(t, res.Correct)
	assert.Equal(t, protocol.NextActionRetry, res.NextAction)

	// The same question comes back until answered correctly.
	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonRetry})
	push := decodePayload[protocol.QuestionPushPayload](t, alice.waitFor(t, protocol.EventQuestionPush, 2))
	assert.Equal(t, "q1", push.Question.ID)

	res = answer(t, r, alice, "q1", model.Answer{Kind: model.AnswerOpen, Text: "Paris"}, 2)
	assert.True(t, res.Correct)

	p, _ := gw.ParticipantByNickname(1, "alice")
	assert.Equal(t, 2, gw.AnswerCount(1, p.ID, "q1"))
}

func TestNoMoreQuestions(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")
	startQuiz(t, r, teacher)

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonDeath})
	alice.waitFor(t, protocol.EventQuestionPush, 1)
	answer(t, r, alice, "q1", model.Answer{Kind: model.AnswerOpen, Text: "Paris"}, 1)

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonLevelUp})
	alice.waitFor(t, protocol.EventQuestionPush, 2)
	answer(t, r, alice, "q2", model.Answer{Kind: model.AnswerSingle, OptionID: "b"}, 2)

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonLevelUp})
	alice.waitFor(t, protocol.EventNoMoreQuestions, 1)
}

func TestReservationBlocksSecondDispatch(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")
	startQuiz(t, r, teacher)

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonDeath})
	alice.waitFor(t, protocol.EventQuestionPush, 1)

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonDeath})
	bad := decodePayload[protocol.ErrorPayload](t, alice.waitFor(t, protocol.EventBadRequest, 1))
	assert.Equal(t, protocol.CodeBadRequest, bad.Code)
	assert.Equal(t, 1, alice.count(protocol.EventQuestionPush))
}

func TestReservationExpiry(t *testing.T) {
	timings := testTimings()
	timings.ReservationTTL = 30 * time.Millisecond
	r, _ := newTestRoom(t, timings)
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")
	startQuiz(t, r, teacher)

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonDeath})
	alice.waitFor(t, protocol.EventQuestionPush, 1)

	exp := decodePayload[protocol.QuestionExpiredPayload](t, alice.waitFor(t, protocol.EventQuestionExpired, 1))
	assert.Equal(t, "q1", exp.QuestionID)

	// The reservation is gone; a late answer no longer matches.
	r.Enqueue(room.AnswerSubmit{Conn: alice, QuestionID: "q1", Answer: model.Answer{Kind: model.AnswerOpen, Text: "Paris"}})
	alice.waitFor(t, protocol.EventBadRequest, 1)

	// A fresh request re-reserves the same question.
	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonRetry})
	alice.waitFor(t, protocol.EventQuestionPush, 2)
}

func TestMalformedAnswerKeepsReservation(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")
	startQuiz(t, r, teacher)

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonDeath})
	alice.waitFor(t, protocol.EventQuestionPush, 1)

	// Wrong shape for an open question: not an attempt.
	r.Enqueue(room.AnswerSubmit{Conn: alice, QuestionID: "q1", Answer: model.Answer{Kind: model.AnswerSingle, OptionID: "a"}})
	alice.waitFor(t, protocol.EventBadRequest, 1)

	// The reservation survived; a proper answer still lands.
	res := answer(t, r, alice, "q1", model.Answer{Kind: model.AnswerOpen, Text: "Paris"}, 1)
	assert.True(t, res.Correct)
}

func TestNicknameRules(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())
	joinStudent(t, r, "alice")

	// Live duplicate is rejected with its own code.
	dup := newFakeConn("dup")
	attach(t, r, dup)
	r.Enqueue(room.JoinRoom{Conn: dup, Role: protocol.RoleStudent, Nickname: "alice"})
	bad := decodePayload[protocol.ErrorPayload](t, dup.waitFor(t, protocol.EventBadRequest, 1))
	assert.Equal(t, protocol.CodeNicknameInUse, bad.Code)

	// Invalid nicknames never reach the store.
	short := newFakeConn("short")
	attach(t, r, short)
	r.Enqueue(room.JoinRoom{Conn: short, Role: protocol.RoleStudent, Nickname: "x"})
	bad = decodePayload[protocol.ErrorPayload](t, short.waitFor(t, protocol.EventBadRequest, 1))
	assert.Equal(t, protocol.CodeBadRequest, bad.Code)
}

func TestReconnectWithinGrace(t *testing.T) {
	r, gw := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")
	startQuiz(t, r, teacher)

	first, ok := gw.ParticipantByNickname(1, "alice")
	require.True(t, ok)

	r.Enqueue(room.ConnectionClosed{Conn: alice})

	// Same nickname, new connection, inside the grace window.
	alice2 := newFakeConn("student-alice-2")
	attach(t, r, alice2)
	r.Enqueue(room.JoinRoom{Conn: alice2, Role: protocol.RoleStudent, Nickname: "alice"})
	alice2.waitFor(t, protocol.EventWaitingRoomUpdate, 1)

	second, ok := gw.ParticipantByNickname(1, "alice")
	require.True(t, ok)
	assert.Equal(t, first.ID, second.ID)
	// The grace timer must not fire after the rebind.
	time.Sleep(80 * time.Millisecond)
	third, _ := gw.ParticipantByNickname(1, "alice")
	assert.NotEqual(t, model.JoinStateLeft, third.JoinState)
}

func TestLeftAfterGraceThenRejoin(t *testing.T) {
	r, gw := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")
	startQuiz(t, r, teacher)

	r.Enqueue(room.ConnectionClosed{Conn: alice})

	require.Eventually(t, func() bool {
		p, ok := gw.ParticipantByNickname(1, "alice")
		return ok && p.JoinState == model.JoinStateLeft
	}, time.Second, 5*time.Millisecond)

	// The nickname is reclaimable by a fresh connection.
	alice2 := newFakeConn("student-alice-2")
	attach(t, r, alice2)
	r.Enqueue(room.JoinRoom{Conn: alice2, Role: protocol.RoleStudent, Nickname: "alice"})
	alice2.waitFor(t, protocol.EventWaitingRoomUpdate, 1)
}

func TestTeacherSupersession(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())
	first := joinTeacher(t, r)

	second := newFakeConn("teacher-2")
	attach(t, r, second)
	r.Enqueue(room.JoinRoom{Conn: second, Role: protocol.RoleTeacher, CSRF: testHostToken})
	second.waitFor(t, protocol.EventWaitingRoomUpdate, 1)

	bad := decodePayload[protocol.ErrorPayload](t, first.waitFor(t, protocol.EventBadRequest, 1))
	assert.Equal(t, protocol.CodeSupersededByNewer, bad.Code)
	require.Eventually(t, first.isClosed, time.Second, 2*time.Millisecond)

	// The new connection holds the teacher role.
	r.Enqueue(room.RequestStats{Conn: second})
	second.waitFor(t, protocol.EventStatsUpdate, 1)
}

func TestTeacherBadToken(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())

	c := newFakeConn("impostor")
	attach(t, r, c)
	r.Enqueue(room.JoinRoom{Conn: c, Role: protocol.RoleTeacher, CSRF: "wrong"})
	bad := decodePayload[protocol.ErrorPayload](t, c.waitFor(t, protocol.EventBadRequest, 1))
	assert.Equal(t, protocol.CodeUnauthorized, bad.Code)
	require.Eventually(t, c.isClosed, time.Second, 2*time.Millisecond)
}

func TestStatsCoalescing(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")
	startQuiz(t, r, teacher)

	// Three grading events in quick succession inside one window.
	for i := 0; i < 3; i++ {
		reason := protocol.ReasonRetry
		if i == 0 {
			reason = protocol.ReasonDeath
		}
		r.Enqueue(room.RequestQuestion{Conn: alice, Reason: reason})
		alice.waitFor(t, protocol.EventQuestionPush, i+1)
		answer(t, r, alice, "q1", model.Answer{Kind: model.AnswerOpen, Text: "London"}, i+1)
	}

	// One immediate broadcast plus one flush at window close.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 2, teacher.count(protocol.EventStatsUpdate))
}

func TestStatsRounding(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")
	startQuiz(t, r, teacher)

	// Two correct, one wrong: 66.67 percent.
	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonDeath})
	alice.waitFor(t, protocol.EventQuestionPush, 1)
	answer(t, r, alice, "q1", model.Answer{Kind: model.AnswerOpen, Text: "London"}, 1)

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonRetry})
	alice.waitFor(t, protocol.EventQuestionPush, 2)
	answer(t, r, alice, "q1", model.Answer{Kind: model.AnswerOpen, Text: "Paris"}, 2)

	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonLevelUp})
	alice.waitFor(t, protocol.EventQuestionPush, 3)
	answer(t, r, alice, "q2", model.Answer{Kind: model.AnswerSingle, OptionID: "b"}, 3)

	r.Enqueue(room.RequestStats{Conn: teacher, RequestID: "rq"})
	var stats protocol.StatsUpdatePayload
	require.Eventually(t, func() bool {
		teacher.mu.Lock()
		defer teacher.mu.Unlock()
		for _, f := range teacher.frames {
			if f.Event == protocol.EventStatsUpdate && f.RequestID == "rq" {
				return json.Unmarshal(f.Payload, &stats) == nil
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)

	assert.Equal(t, 66.67, stats.Class.CorrectPct)
	assert.Equal(t, 33.33, stats.Class.WrongPct)
	require.Len(t, stats.Students, 1)
	assert.Equal(t, 2, stats.Students[0].Correct)
	assert.Equal(t, 1, stats.Students[0].Wrong)
	assert.Equal(t, 66.67, stats.Students[0].CorrectPct)
}

func TestEndQuizAndFinishedRejects(t *testing.T) {
	r, gw := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")
	startQuiz(t, r, teacher)

	r.Enqueue(room.EndQuiz{Conn: teacher})
	end := decodePayload[protocol.EndQuizPayload](t, alice.waitFor(t, protocol.EventEndQuiz, 1))
	assert.True(t, end.ResultsReady)
	teacher.waitFor(t, protocol.EventEndQuiz, 1)
	assert.Equal(t, model.SessionFinished, gw.SessionStatusOf(1))

	// Anything after the end answers with ROOM_CLOSED.
	r.Enqueue(room.RequestQuestion{Conn: alice, Reason: protocol.ReasonDeath})
	bad := decodePayload[protocol.ErrorPayload](t, alice.waitFor(t, protocol.EventBadRequest, 1))
	assert.Equal(t, protocol.CodeRoomClosed, bad.Code)

	// New connections cannot attach to a finished room.
	late := newFakeConn("late")
	err := r.Attach(context.Background(), late)
	assert.ErrorIs(t, err, room.ErrRoomClosed)
}

func TestStudentEventsRequireJoin(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())

	c := newFakeConn("lurker")
	attach(t, r, c)
	r.Enqueue(room.RequestQuestion{Conn: c, Reason: protocol.ReasonDeath})
	bad := decodePayload[protocol.ErrorPayload](t, c.waitFor(t, protocol.EventBadRequest, 1))
	assert.Equal(t, protocol.CodeBadRequest, bad.Code)
}

func TestOnlyTeacherControlsLifecycle(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())
	joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")

	r.Enqueue(room.StartQuiz{Conn: alice})
	alice.waitFor(t, protocol.EventBadRequest, 1)

	r.Enqueue(room.EndQuiz{Conn: alice})
	alice.waitFor(t, protocol.EventBadRequest, 2)
}

func TestTransientWriteRetries(t *testing.T) {
	r, gw := newTestRoom(t, testTimings())

	// Two transient failures, then success: the join must still land.
	gw.FailNextWrites(store.Transient(errors.New("connection reset")), 2)
	joinStudent(t, r, "alice")

	_, ok := gw.ParticipantByNickname(1, "alice")
	assert.True(t, ok)
}

func TestTransientExhaustionLeavesStateClean(t *testing.T) {
	r, gw := newTestRoom(t, testTimings())

	// Exactly the whole retry schedule fails: initial attempt plus three
	// retries. The store is healthy again afterwards.
	gw.FailNextWrites(store.Transient(errors.New("connection reset")), 4)

	c := newFakeConn("student-alice")
	attach(t, r, c)
	r.Enqueue(room.JoinRoom{Conn: c, Role: protocol.RoleStudent, Nickname: "alice"})
	bad := decodePayload[protocol.ErrorPayload](t, c.waitFor(t, protocol.EventInternalError, 1))
	assert.Equal(t, protocol.CodeInternal, bad.Code)

	// No phantom participant in memory: the same join succeeds once the
	// store recovers.
	r.Enqueue(room.JoinRoom{Conn: c, Role: protocol.RoleStudent, Nickname: "alice"})
	c.waitFor(t, protocol.EventWaitingRoomUpdate, 1)
}

func TestPermanentWriteTerminatesSession(t *testing.T) {
	r, gw := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")

	gw.FailNextWrites(errors.New("constraint violated"), 1)
	r.Enqueue(room.StartQuiz{Conn: teacher})

	teacher.waitFor(t, protocol.EventInternalError, 1)
	alice.waitFor(t, protocol.EventEndQuiz, 1)
	assert.Equal(t, model.SessionFinished, gw.SessionStatusOf(1))
}

func TestWaitingRoomSnapshotContents(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	joinStudent(t, r, "bob")
	joinStudent(t, r, "alice")

	var snap protocol.WaitingRoomUpdatePayload
	require.Eventually(t, func() bool {
		teacher.mu.Lock()
		defer teacher.mu.Unlock()
		for i := len(teacher.frames) - 1; i >= 0; i-- {
			f := teacher.frames[i]
			if f.Event != protocol.EventWaitingRoomUpdate {
				continue
			}
			if json.Unmarshal(f.Payload, &snap) != nil {
				return false
			}
			return len(snap.Participants) == 2
		}
		return false
	}, time.Second, 5*time.Millisecond)

	// Sorted by nickname for a stable wire shape.
	names := make([]string, 0, 2)
	for _, p := range snap.Participants {
		names = append(names, p.Nickname)
	}
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestBadEnvelopeAnswersOriginatorOnly(t *testing.T) {
	r, _ := newTestRoom(t, testTimings())
	teacher := joinTeacher(t, r)
	alice := joinStudent(t, r, "alice")

	r.Enqueue(room.BadEnvelope{Conn: alice, Message: "malformed envelope", RequestID: "x1"})
	env := alice.waitFor(t, protocol.EventBadRequest, 1)
	assert.Equal(t, "x1", env.RequestID)
	bad := decodePayload[protocol.ErrorPayload](t, env)
	assert.True(t, strings.Contains(bad.Message, "malformed"), fmt.Sprintf("got %q", bad.Message))
	assert.Equal(t, 0, teacher.count(protocol.EventBadRequest))
}
