// Package room hosts the live session orchestrator: a per-room
// single-writer actor that owns all mutable session state, and the
// process-wide registry that materialises rooms from storage.
package room

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/horoquiz/horoquiz-backend/internal/grader"
	"github.com/horoquiz/horoquiz-backend/internal/model"
	"github.com/horoquiz/horoquiz-backend/internal/protocol"
	"github.com/horoquiz/horoquiz-backend/internal/store"
)

// ErrRoomClosed is returned when a connection targets a finished room.
var ErrRoomClosed = errors.New("room closed")

const mailboxSize = 256

// storeBackoff: first entry is the initial attempt, the rest are retries.
var storeBackoff = []time.Duration{0, 50 * time.Millisecond, 150 * time.Millisecond, 400 * time.Millisecond}

// participant is the in-room runtime state of one student.
type participant struct {
	model.Participant

	conn   Conn
	states map[string]*model.QuestionState

	// incremental counters; wrong = attemptsTotal - correct
	attemptsTotal int
	correct       int

	// leftGen invalidates stale left-grace timers after a reconnect
	leftGen int
}

// reservation remembers that a question was pushed to a participant and is
// awaiting an answer. It prevents double-dispatch.
type reservation struct {
	questionID string
	seq        uint64
	issuedAt   time.Time
	timer      *time.Timer
}

// Room is the live, in-memory representation of one session. All state is
// owned by the actor goroutine draining the mailbox; nothing else touches
// it.
type Room struct {
	code    string
	log     zerolog.Logger
	gw      store.Gateway
	verify  TokenVerifier
	timings Timings

	mailbox chan Event
	done    chan struct{}

	onDispose func(*Room)

	// ─── actor-owned state ───
	session   model.Session
	questions []model.Question
	qByID     map[string]*model.Question

	participants map[string]*participant // by nickname
	byID         map[int64]*participant
	connOwner    map[string]*participant // conn id → participant

	teacher    Conn
	teacherGen int

	conns   int
	crashed bool

	reservations map[int64]*reservation
	resSeq       uint64

	classCorrect  int
	classAttempts int

	statsWindowOpen bool
	statsDirty      bool
	waitWindowOpen  bool
	waitDirty       bool
}

// New builds a Room from a storage snapshot. The actor does not run until
// Run is called.
func New(snap *store.SessionSnapshot, gw store.Gateway, verify TokenVerifier, timings Timings, log zerolog.Logger, onDispose func(*Room)) *Room {
	questions := make([]model.Question, len(snap.Questions))
	copy(questions, snap.Questions)
	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].Position < questions[j].Position
	})

	r := &Room{
		code:         snap.Session.RoomCode,
		log:          log.With().Str("component", "room").Str("room_code", snap.Session.RoomCode).Logger(),
		gw:           gw,
		verify:       verify,
		timings:      timings,
		mailbox:      make(chan Event, mailboxSize),
		done:         make(chan struct{}),
		onDispose:    onDispose,
		session:      snap.Session,
		questions:    questions,
		qByID:        make(map[string]*model.Question, len(questions)),
		participants: make(map[string]*participant),
		byID:         make(map[int64]*participant),
		connOwner:    make(map[string]*participant),
		reservations: make(map[int64]*reservation),
	}
	for i := range r.questions {
		r.qByID[r.questions[i].ID] = &r.questions[i]
	}

	for _, rec := range snap.Participants {
		p := &participant{
			Participant: rec.Participant,
			states:      make(map[string]*model.QuestionState, len(rec.Questions)),
		}
		for qid, qs := range rec.Questions {
			s := qs
			p.states[qid] = &s
			p.attemptsTotal += s.Attempts
			if s.IsCorrect {
				p.correct++
			}
		}
		r.participants[p.Nickname] = p
		r.byID[p.ID] = p
		r.classCorrect += p.correct
		r.classAttempts += p.attemptsTotal
	}

	return r
}

// Code returns the room code.
func (r *Room) Code() string { return r.code }

// SessionID returns the session id the room materialises.
func (r *Room) SessionID() int64 { return r.session.ID }

// Attach registers a connection with the room before its read loop starts.
// The socket refcount drives room disposal.
func (r *Room) Attach(ctx context.Context, c Conn) error {
	reply := make(chan error, 1)
	select {
	case r.mailbox <- attach{conn: c, reply: reply}:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-r.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrRoomClosed
		}
	}
}

// Enqueue posts an event into the mailbox. It blocks when the mailbox is
// full (backpressure onto the reader) and drops once the room is gone.
func (r *Room) Enqueue(ev Event) {
	select {
	case r.mailbox <- ev:
	case <-r.done:
	}
}

// after schedules ev to be enqueued after d.
func (r *Room) after(d time.Duration, ev Event) *time.Timer {
	return time.AfterFunc(d, func() { r.Enqueue(ev) })
}

// Run drains the mailbox until the room disposes or ctx is cancelled.
// It is the only goroutine mutating room state.
func (r *Room) Run(ctx context.Context) {
	r.log.Info().Int64("session_id", r.session.ID).Msg("Room started")
	defer r.log.Info().Msg("Room stopped")

	for {
		select {
		case <-ctx.Done():
			r.teardown("server shutting down")
			return
		case ev := <-r.mailbox:
			r.handle(ev)
			if r.session.Status == model.SessionFinished && r.conns == 0 {
				r.teardown("")
				return
			}
		}
	}
}

func (r *Room) handle(ev Event) {
	switch e := ev.(type) {
	case attach:
		r.handleAttach(e)
	case JoinRoom:
		r.handleJoin(e)
	case StartQuiz:
		r.handleStart(e)
	case EndQuiz:
		r.handleEnd(e)
	case RequestQuestion:
		r.handleRequestQuestion(e)
	case AnswerSubmit:
		r.handleAnswer(e)
	case RequestStats:
		r.handleRequestStats(e)
	case ConnectionClosed:
		r.handleConnClosed(e)
	case BadEnvelope:
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, e.Message, e.RequestID)
	case flushStats:
		r.handleFlushStats()
	case flushWaiting:
		r.handleFlushWaiting()
	case leftExpired:
		r.handleLeftExpired(e)
	case teacherGraceExpired:
		r.handleTeacherGrace(e)
	case reservationExpired:
		r.handleReservationExpired(e)
	case closeAll:
		r.handleCloseAll()
	}
}

// ─── connection lifecycle ───────────────────────────────────────────

func (r *Room) handleAttach(e attach) {
	if r.session.Status == model.SessionFinished {
		e.reply <- ErrRoomClosed
		return
	}
	r.conns++
	e.reply <- nil
}

func (r *Room) handleConnClosed(e ConnectionClosed) {
	if r.conns > 0 {
		r.conns--
	}

	if r.teacher != nil && r.teacher.ID() == e.Conn.ID() {
		r.teacher = nil
		r.teacherGen++
		if r.session.Status == model.SessionActive {
			r.after(r.timings.TeacherGrace, teacherGraceExpired{gen: r.teacherGen})
		}
		return
	}

	p, ok := r.connOwner[e.Conn.ID()]
	if !ok {
		return
	}
	delete(r.connOwner, e.Conn.ID())
	p.conn = nil
	r.dropReservation(p)
	p.leftGen++
	if r.session.Status != model.SessionFinished {
		r.after(r.timings.LeftGrace, leftExpired{participantID: p.ID, gen: p.leftGen})
	}
}

func (r *Room) handleLeftExpired(e leftExpired) {
	p, ok := r.byID[e.participantID]
	if !ok || p.leftGen != e.gen || p.conn != nil {
		return
	}
	now := time.Now().UTC()
	p.JoinState = model.JoinStateLeft
	p.LeftAt = &now

	if err := r.persist(func(ctx context.Context) error {
		return r.gw.MarkParticipantLeft(ctx, p.ID, now)
	}); err != nil {
		// Presence is advisory; the in-memory state stays authoritative.
		r.log.Error().Err(err).Str("nickname", p.Nickname).Msg("Persist participant left failed")
	}
	r.markWaitingDirty()
}

func (r *Room) handleTeacherGrace(e teacherGraceExpired) {
	if r.teacher != nil || e.gen != r.teacherGen || r.session.Status != model.SessionActive {
		return
	}
	// Policy: never auto-finish; the session keeps running headless.
	r.log.Warn().Int64("session_id", r.session.ID).Msg("Teacher has not reconnected, session stalled")
}

// ─── join ───────────────────────────────────────────────────────────

func (r *Room) handleJoin(e JoinRoom) {
	if r.session.Status == model.SessionFinished {
		r.rejectClosed(e.Conn, e.RequestID)
		return
	}

	switch e.Role {
	case protocol.RoleTeacher:
		r.joinTeacher(e)
	case protocol.RoleStudent:
		r.joinStudent(e)
	default:
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "role must be student or teacher", e.RequestID)
	}
}

func (r *Room) joinTeacher(e JoinRoom) {
	if err := r.verify(e.CSRF, &r.session); err != nil {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeUnauthorized, "invalid host token", e.RequestID)
		e.Conn.Close(protocol.CodeUnauthorized)
		return
	}

	if r.teacher != nil && r.teacher.ID() != e.Conn.ID() {
		old := r.teacher
		r.sendError(old, protocol.EventBadRequest, protocol.CodeSupersededByNewer, "a newer teacher connection took over", "")
		old.Close(protocol.CodeSupersededByNewer)
	}
	r.teacher = e.Conn
	r.teacherGen++

	r.send(e.Conn, protocol.EventWaitingRoomUpdate, r.waitingSnapshot(), e.RequestID)
	r.log.Info().Msg("Teacher joined")
}

func (r *Room) joinStudent(e JoinRoom) {
	nickname := strings.TrimSpace(e.Nickname)
	if !model.ValidNickname(nickname) {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "nickname must be 2-64 characters without control characters", e.RequestID)
		return
	}

	p, exists := r.participants[nickname]
	if exists {
		if p.conn != nil {
			r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeNicknameInUse, "nickname is bound to a live connection", e.RequestID)
			return
		}
		// Reconnect: re-bind to the existing participant, cancel the
		// left-grace timer, and restore presence.
		p.leftGen++
		p.LeftAt = nil
	} else {
		now := time.Now().UTC()
		var id int64
		err := r.persist(func(ctx context.Context) error {
			var err error
			id, err = r.gw.CreateParticipant(ctx, r.session.ID, nickname, now)
			return err
		})
		if errors.Is(err, store.ErrNicknameTaken) {
			r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeNicknameTaken, "nickname already taken", e.RequestID)
			return
		}
		if err != nil {
			r.failStore(e.Conn, e.RequestID, err)
			return
		}
		p = &participant{
			Participant: model.Participant{
				ID:          id,
				SessionID:   r.session.ID,
				Nickname:    nickname,
				JoinState:   model.JoinStateWaiting,
				ConnectedAt: now,
			},
			states: make(map[string]*model.QuestionState),
		}
		r.participants[nickname] = p
		r.byID[p.ID] = p
	}

	p.conn = e.Conn
	r.connOwner[e.Conn.ID()] = p
	if r.session.Status == model.SessionActive {
		p.JoinState = model.JoinStatePlaying
	} else {
		p.JoinState = model.JoinStateWaiting
	}

	// Immediate ack to the joiner; the teacher copy is coalesced.
	r.send(e.Conn, protocol.EventWaitingRoomUpdate, r.waitingSnapshot(), e.RequestID)
	r.markWaitingDirty()
	r.log.Info().Str("nickname", nickname).Bool("reconnect", exists).Msg("Student joined")
}

// ─── quiz lifecycle ─────────────────────────────────────────────────

func (r *Room) handleStart(e StartQuiz) {
	if !r.isTeacherConn(e.Conn) {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "only the teacher can start the quiz", e.RequestID)
		return
	}
	if r.session.Status != model.SessionWaiting {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "session is not waiting", e.RequestID)
		return
	}

	now := time.Now().UTC()
	if err := r.persist(func(ctx context.Context) error {
		return r.gw.SetSessionStatus(ctx, r.session.ID, model.SessionActive, &now, nil)
	}); err != nil {
		r.failStore(e.Conn, e.RequestID, err)
		return
	}

	r.session.Status = model.SessionActive
	r.session.StartedAt = &now
	for _, p := range r.participants {
		if p.JoinState == model.JoinStateWaiting {
			p.JoinState = model.JoinStatePlaying
		}
	}

	r.broadcast(protocol.EventStartQuiz, protocol.StartQuizPayload{
		SessionID: r.session.ID,
		GameMode:  string(r.session.GameMode),
		StartedAt: now.Format(protocol.TimeFormat),
	})
	r.markWaitingDirty()
	r.log.Info().Msg("Quiz started")
}

func (r *Room) handleEnd(e EndQuiz) {
	if !r.isTeacherConn(e.Conn) {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "only the teacher can end the quiz", e.RequestID)
		return
	}
	if r.session.Status != model.SessionActive {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "session is not active", e.RequestID)
		return
	}

	now := time.Now().UTC()
	if err := r.persist(func(ctx context.Context) error {
		return r.gw.SetSessionStatus(ctx, r.session.ID, model.SessionFinished, nil, &now)
	}); err != nil {
		r.failStore(e.Conn, e.RequestID, err)
		return
	}

	r.finish(now)
	r.log.Info().Msg("Quiz ended")
}

// finish switches the room into its terminal state: broadcast end_quiz,
// cancel timers and reservations, then close sockets after the drain
// window. Disposal follows once the refcount reaches zero.
func (r *Room) finish(endedAt time.Time) {
	r.session.Status = model.SessionFinished
	r.session.EndedAt = &endedAt

	for _, p := range r.byID {
		r.dropReservation(p)
	}
	r.statsDirty = false
	r.waitDirty = false

	r.broadcast(protocol.EventEndQuiz, protocol.EndQuizPayload{
		SessionID:    r.session.ID,
		EndedAt:      endedAt.Format(protocol.TimeFormat),
		ResultsReady: true,
	})
	r.after(r.timings.DrainTimeout, closeAll{})
}

func (r *Room) handleCloseAll() {
	reason := "quiz ended"
	if r.crashed {
		reason = "session crashed"
	}
	if r.teacher != nil {
		r.teacher.Close(reason)
	}
	for _, p := range r.byID {
		if p.conn != nil {
			p.conn.Close(reason)
		}
	}
}

// ─── question flow ──────────────────────────────────────────────────

func (r *Room) handleRequestQuestion(e RequestQuestion) {
	p := r.studentFor(e.Conn, e.RequestID)
	if p == nil {
		return
	}
	if r.session.Status == model.SessionFinished {
		r.rejectClosed(e.Conn, e.RequestID)
		return
	}
	if r.session.Status != model.SessionActive {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "quiz has not started", e.RequestID)
		return
	}
	if !protocol.ValidReason(e.Reason) {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "reason must be death, level_up or retry", e.RequestID)
		return
	}
	if _, pending := r.reservations[p.ID]; pending {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "a question is already pending", e.RequestID)
		return
	}

	q := r.nextQuestion(p)
	if q == nil {
		r.send(e.Conn, protocol.EventNoMoreQuestions, protocol.NoMoreQuestionsPayload{}, e.RequestID)
		return
	}

	r.resSeq++
	res := &reservation{
		questionID: q.ID,
		seq:        r.resSeq,
		issuedAt:   time.Now().UTC(),
	}
	res.timer = r.after(r.timings.ReservationTTL, reservationExpired{participantID: p.ID, seq: res.seq})
	r.reservations[p.ID] = res

	r.send(e.Conn, protocol.EventQuestionPush, protocol.QuestionPushPayload{
		Question: q.Public(),
		Reason:   e.Reason,
	}, e.RequestID)
}

// nextQuestion picks the first question in position order the participant
// has not yet answered correctly. Selection is independent per student.
func (r *Room) nextQuestion(p *participant) *model.Question {
	for i := range r.questions {
		q := &r.questions[i]
		if s, ok := p.states[q.ID]; ok && s.IsCorrect {
			continue
		}
		return q
	}
	return nil
}

func (r *Room) handleReservationExpired(e reservationExpired) {
	p, ok := r.byID[e.participantID]
	if !ok {
		return
	}
	res := r.reservations[p.ID]
	if res == nil || res.seq != e.seq {
		return
	}
	delete(r.reservations, p.ID)
	if p.conn != nil {
		r.send(p.conn, protocol.EventQuestionExpired, protocol.QuestionExpiredPayload{QuestionID: res.questionID}, "")
	}
}

func (r *Room) handleAnswer(e AnswerSubmit) {
	p := r.studentFor(e.Conn, e.RequestID)
	if p == nil {
		return
	}
	if r.session.Status == model.SessionFinished {
		r.rejectClosed(e.Conn, e.RequestID)
		return
	}

	res := r.reservations[p.ID]
	if res == nil || res.questionID != e.QuestionID {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "no pending question matches this submission", e.RequestID)
		return
	}
	q := r.qByID[e.QuestionID]

	verdict := grader.Grade(q, e.Answer)
	if verdict == grader.Malformed {
		// The reservation stays live; a malformed payload is not an attempt.
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "answer shape does not match the question type", e.RequestID)
		return
	}
	correct := verdict == grader.Correct

	// Compute the post-answer values first; memory is only mutated after
	// every persist succeeded, so a failed event can be retried verbatim.
	now := time.Now().UTC()
	prev := p.states[e.QuestionID]
	next := model.QuestionState{
		Attempts:       1,
		IsCorrect:      correct,
		FirstAttemptAt: now,
		LastAttemptAt:  now,
	}
	if prev != nil {
		next.Attempts = prev.Attempts + 1
		next.IsCorrect = prev.IsCorrect || correct // sticky
		next.FirstAttemptAt = prev.FirstAttemptAt
	}
	newlyCorrect := next.IsCorrect && (prev == nil || !prev.IsCorrect)

	pCorrect := p.correct
	if newlyCorrect {
		pCorrect++
	}
	pAttempts := p.attemptsTotal + 1
	pWrong := pAttempts - pCorrect

	classCorrect := r.classCorrect
	if newlyCorrect {
		classCorrect++
	}
	classAttempts := r.classAttempts + 1
	classWrong := classAttempts - classCorrect

	rec := &store.AnswerRecord{
		SessionID:     r.session.ID,
		ParticipantID: p.ID,
		QuestionID:    e.QuestionID,
		AttemptNo:     next.Attempts,
		Payload:       e.Answer,
		Verdict:       string(verdict),
		AnsweredAt:    now,
	}
	pid := p.ID
	err := r.persist(func(ctx context.Context) error {
		if err := r.gw.RecordAnswer(ctx, rec); err != nil {
			return err
		}
		if err := r.gw.UpsertQuestionState(ctx, &store.QuestionStateRow{
			SessionID:     r.session.ID,
			ParticipantID: p.ID,
			QuestionID:    e.QuestionID,
			State:         next,
		}); err != nil {
			return err
		}
		if err := r.gw.UpsertAggregate(ctx, &store.AggregateRow{
			SessionID:     r.session.ID,
			ParticipantID: &pid,
			Correct:       pCorrect,
			Wrong:         pWrong,
			Pct:           model.CorrectPct(pCorrect, pWrong),
			UpdatedAt:     now,
		}); err != nil {
			return err
		}
		return r.gw.UpsertAggregate(ctx, &store.AggregateRow{
			SessionID: r.session.ID,
			Correct:   classCorrect,
			Wrong:     classWrong,
			Pct:       model.CorrectPct(classCorrect, classWrong),
			UpdatedAt: now,
		})
	})
	if err != nil {
		r.failStore(e.Conn, e.RequestID, err)
		return
	}

	// Commit.
	stateCopy := next
	p.states[e.QuestionID] = &stateCopy
	p.attemptsTotal = pAttempts
	p.correct = pCorrect
	r.classCorrect = classCorrect
	r.classAttempts = classAttempts
	r.clearReservation(p)

	nextAction := protocol.NextActionRetry
	if correct {
		nextAction = protocol.NextActionContinue
	}
	r.send(e.Conn, protocol.EventAnswerResult, protocol.AnswerResultPayload{
		QuestionID: e.QuestionID,
		Correct:    correct,
		NextAction: nextAction,
	}, e.RequestID)

	// answer_result is enqueued before any stats broadcast this answer
	// caused; per-connection queues preserve that order.
	r.markStatsDirty()
}

// ─── stats ──────────────────────────────────────────────────────────

func (r *Room) handleRequestStats(e RequestStats) {
	if !r.isTeacherConn(e.Conn) {
		r.sendError(e.Conn, protocol.EventBadRequest, protocol.CodeBadRequest, "stats are teacher only", e.RequestID)
		return
	}
	r.send(e.Conn, protocol.EventStatsUpdate, r.statsSnapshot(), e.RequestID)
}

func (r *Room) statsSnapshot() protocol.StatsUpdatePayload {
	classWrong := r.classAttempts - r.classCorrect
	out := protocol.StatsUpdatePayload{
		Class: protocol.ClassStatsView{
			CorrectPct: model.CorrectPct(r.classCorrect, classWrong),
			WrongPct:   model.CorrectPct(classWrong, r.classCorrect),
		},
		Students: make([]protocol.StudentStatsView, 0, len(r.participants)),
	}
	for _, p := range r.participants {
		wrong := p.attemptsTotal - p.correct
		out.Students = append(out.Students, protocol.StudentStatsView{
			Nickname:   p.Nickname,
			Correct:    p.correct,
			Wrong:      wrong,
			CorrectPct: model.CorrectPct(p.correct, wrong),
		})
	}
	sort.Slice(out.Students, func(i, j int) bool {
		return out.Students[i].Nickname < out.Students[j].Nickname
	})
	return out
}

func (r *Room) waitingSnapshot() protocol.WaitingRoomUpdatePayload {
	out := protocol.WaitingRoomUpdatePayload{
		SessionID:    r.session.ID,
		Participants: make([]protocol.ParticipantView, 0, len(r.participants)),
	}
	for _, p := range r.participants {
		out.Participants = append(out.Participants, protocol.ParticipantView{
			Nickname: p.Nickname,
			State:    string(p.JoinState),
		})
	}
	sort.Slice(out.Participants, func(i, j int) bool {
		return out.Participants[i].Nickname < out.Participants[j].Nickname
	})
	return out
}

// markStatsDirty implements the coalescing policy: first change inside a
// closed window broadcasts immediately and opens the window; changes while
// the window is open only mark the room dirty.
func (r *Room) markStatsDirty() {
	if r.statsWindowOpen {
		r.statsDirty = true
		return
	}
	r.publishStats()
}

func (r *Room) publishStats() {
	if r.teacher != nil {
		r.send(r.teacher, protocol.EventStatsUpdate, r.statsSnapshot(), "")
	}
	r.statsWindowOpen = true
	r.after(r.timings.StatsWindow, flushStats{})
}

func (r *Room) handleFlushStats() {
	r.statsWindowOpen = false
	if r.statsDirty && r.session.Status != model.SessionFinished {
		r.statsDirty = false
		r.publishStats()
	}
}

func (r *Room) markWaitingDirty() {
	if r.waitWindowOpen {
		r.waitDirty = true
		return
	}
	r.publishWaiting()
}

func (r *Room) publishWaiting() {
	if r.teacher != nil {
		r.send(r.teacher, protocol.EventWaitingRoomUpdate, r.waitingSnapshot(), "")
	}
	r.waitWindowOpen = true
	r.after(r.timings.WaitingWindow, flushWaiting{})
}

func (r *Room) handleFlushWaiting() {
	r.waitWindowOpen = false
	if r.waitDirty && r.session.Status != model.SessionFinished {
		r.waitDirty = false
		r.publishWaiting()
	}
}

// ─── store failure handling ─────────────────────────────────────────

// persist runs one gateway write with the retry schedule. Transient errors
// retry in place on the actor goroutine; a live session requires a healthy
// store, so blocking the room is acceptable.
func (r *Room) persist(fn func(ctx context.Context) error) error {
	var last error
	for _, delay := range storeBackoff {
		if delay > 0 {
			time.Sleep(delay)
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timings.StoreTimeout)
		err := fn(ctx)
		cancel()
		if err == nil {
			return nil
		}
		last = err
		if !store.IsTransient(err) {
			return err
		}
	}
	return last
}

// failStore answers the originator after persist gave up. Exhausted
// transient errors leave in-memory state untouched so the client can
// retry; permanent errors terminate the session.
func (r *Room) failStore(origin Conn, requestID string, err error) {
	if store.IsTransient(err) {
		r.log.Error().Err(err).Msg("Store retries exhausted")
		r.sendError(origin, protocol.EventInternalError, protocol.CodeInternal, "temporary storage failure, please retry", requestID)
		return
	}

	r.log.Error().Err(err).Msg("Permanent store error, terminating session")
	r.sendError(origin, protocol.EventInternalError, protocol.CodeInternal, "storage failure, session terminated", requestID)
	r.crashed = true

	now := time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), r.timings.StoreTimeout)
	if err := r.gw.SetSessionStatus(ctx, r.session.ID, model.SessionFinished, nil, &now); err != nil {
		r.log.Error().Err(err).Msg("Best-effort crash status write failed")
	}
	cancel()

	r.finish(now)
}

// ─── helpers ────────────────────────────────────────────────────────

func (r *Room) isTeacherConn(c Conn) bool {
	return r.teacher != nil && c != nil && r.teacher.ID() == c.ID()
}

// studentFor resolves the participant bound to a connection, answering the
// connection with bad_request when it never joined as a student.
func (r *Room) studentFor(c Conn, requestID string) *participant {
	if p, ok := r.connOwner[c.ID()]; ok {
		return p
	}
	r.sendError(c, protocol.EventBadRequest, protocol.CodeBadRequest, "join the room as a student first", requestID)
	return nil
}

func (r *Room) rejectClosed(c Conn, requestID string) {
	r.sendError(c, protocol.EventBadRequest, protocol.CodeRoomClosed, "session already finished", requestID)
}

func (r *Room) dropReservation(p *participant) {
	if res, ok := r.reservations[p.ID]; ok {
		if res.timer != nil {
			res.timer.Stop()
		}
		delete(r.reservations, p.ID)
	}
}

func (r *Room) clearReservation(p *participant) {
	r.dropReservation(p)
}

func (r *Room) send(c Conn, event string, payload any, requestID string) {
	if c == nil {
		return
	}
	env, err := protocol.NewEnvelope(event, payload, requestID)
	if err != nil {
		r.log.Error().Err(err).Str("event", event).Msg("Encode envelope failed")
		return
	}
	if err := c.Send(env); err != nil {
		r.log.Debug().Err(err).Str("event", event).Str("conn_id", c.ID()).Msg("Outbound enqueue failed")
	}
}

func (r *Room) sendError(c Conn, event, code, message, requestID string) {
	r.send(c, event, protocol.ErrorPayload{Code: code, Message: message}, requestID)
}

func (r *Room) broadcast(event string, payload any) {
	if r.teacher != nil {
		r.send(r.teacher, event, payload, "")
	}
	for _, p := range r.byID {
		if p.conn != nil {
			r.send(p.conn, event, payload, "")
		}
	}
}

// teardown releases every resource. Called exactly once from Run.
func (r *Room) teardown(closeReason string) {
	for _, p := range r.byID {
		r.dropReservation(p)
		if closeReason != "" && p.conn != nil {
			p.conn.Close(closeReason)
		}
	}
	if closeReason != "" && r.teacher != nil {
		r.teacher.Close(closeReason)
	}
	close(r.done)
	if r.onDispose != nil {
		r.onDispose(r)
	}
}
