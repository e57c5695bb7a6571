package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horoquiz/horoquiz-backend/internal/model"
)

func seededGateway(t *testing.T) *MemoryGateway {
	t.Helper()
	m := NewMemoryGateway()
	m.SeedSession(model.Session{
		ID:       1,
		RoomCode: "ABC234",
		QuizID:   10,
		Status:   model.SessionWaiting,
		GameMode: model.GameModeClassic,
	}, []model.Question{
		{ID: "q1", Type: model.QuestionOpen, Prompt: "p", Answer: model.Answer{Kind: model.AnswerOpen, Text: "x"}},
	})
	return m
}

func TestMemoryLoadSession(t *testing.T) {
	m := seededGateway(t)

	snap, err := m.LoadSession(context.Background(), "ABC234")
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Session.ID)
	assert.Len(t, snap.Questions, 1)

	_, err = m.LoadSession(context.Background(), "NOPE42")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMemoryNicknameUniqueness(t *testing.T) {
	m := seededGateway(t)
	ctx := context.Background()
	now := time.Now()

	_, err := m.CreateParticipant(ctx, 1, "alice", now)
	require.NoError(t, err)
	_, err = m.CreateParticipant(ctx, 1, "alice", now)
	assert.ErrorIs(t, err, ErrNicknameTaken)
}

func TestMemoryAnswerIdempotent(t *testing.T) {
	m := seededGateway(t)
	ctx := context.Background()

	rec := &AnswerRecord{
		SessionID:     1,
		ParticipantID: 5,
		QuestionID:    "q1",
		AttemptNo:     1,
		Payload:       model.Answer{Kind: model.AnswerOpen, Text: "x"},
		Verdict:       "correct",
		AnsweredAt:    time.Now(),
	}
	require.NoError(t, m.RecordAnswer(ctx, rec))
	require.NoError(t, m.RecordAnswer(ctx, rec))
	assert.Equal(t, 1, m.AnswerCount(1, 5, "q1"))
}

func TestMemoryStickyCorrect(t *testing.T) {
	m := seededGateway(t)
	ctx := context.Background()
	now := time.Now()

	pid, err := m.CreateParticipant(ctx, 1, "alice", now)
	require.NoError(t, err)

	row := &QuestionStateRow{
		SessionID: 1, ParticipantID: pid, QuestionID: "q1",
		State: model.QuestionState{Attempts: 1, IsCorrect: true, FirstAttemptAt: now, LastAttemptAt: now},
	}
	require.NoError(t, m.UpsertQuestionState(ctx, row))

	// A later incorrect write must not clear is_correct.
	row.State.Attempts = 2
	row.State.IsCorrect = false
	require.NoError(t, m.UpsertQuestionState(ctx, row))

	snap, err := m.LoadSession(ctx, "ABC234")
	require.NoError(t, err)
	require.Len(t, snap.Participants, 1)
	state := snap.Participants[0].Questions["q1"]
	assert.Equal(t, 2, state.Attempts)
	assert.True(t, state.IsCorrect)
}

func TestMemoryFailureInjection(t *testing.T) {
	m := seededGateway(t)
	ctx := context.Background()

	boom := Transient(errors.New("boom"))
	m.FailNextWrites(boom, 2)

	_, err := m.CreateParticipant(ctx, 1, "bob", time.Now())
	assert.ErrorIs(t, err, boom)
	err = m.SetSessionStatus(ctx, 1, model.SessionActive, nil, nil)
	assert.ErrorIs(t, err, boom)

	// Injection exhausted; writes succeed again.
	_, err = m.CreateParticipant(ctx, 1, "bob", time.Now())
	assert.NoError(t, err)
}

func TestTransientTaxonomy(t *testing.T) {
	assert.True(t, IsTransient(Transient(errors.New("x"))))
	assert.False(t, IsTransient(errors.New("x")))
	assert.True(t, IsTransient(classify(context.DeadlineExceeded)))
	assert.False(t, IsTransient(classify(errors.New("constraint violated"))))
	assert.Nil(t, Transient(nil))
}
