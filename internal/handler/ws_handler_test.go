package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/horoquiz/horoquiz-backend/internal/model"
	"github.com/horoquiz/horoquiz-backend/internal/protocol"
	"github.com/horoquiz/horoquiz-backend/internal/room"
	"github.com/horoquiz/horoquiz-backend/internal/store"
)

const wsTestHostToken = "host-token"

func wsTestServer(t *testing.T) (*httptest.Server, *store.MemoryGateway) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := store.NewMemoryGateway()
	gw.SeedSession(model.Session{
		ID:       1,
		RoomCode: "ABC234",
		QuizID:   10,
		GameMode: model.GameModePlatformer,
		Status:   model.SessionWaiting,
	}, []model.Question{
		{
			ID:     "q1",
			Type:   model.QuestionOpen,
			Prompt: "Capital of France?",
			Answer: model.Answer{Kind: model.AnswerOpen, Text: "Paris"},
		},
	})

	verify := func(token string, _ *model.Session) error {
		if token != wsTestHostToken {
			return assert.AnError
		}
		return nil
	}

	timings := room.DefaultTimings()
	timings.StatsWindow = 20 * time.Millisecond
	timings.WaitingWindow = 20 * time.Millisecond
	registry := room.NewRegistry(gw, verify, timings, zerolog.Nop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = registry.Shutdown(ctx)
	})

	h := NewWSHandler(registry, zerolog.Nop(), nil)
	r := gin.New()
	r.GET("/ws/v1/sessions/:room_code", h.SessionStream)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, gw
}

func dialRoom(t *testing.T, srv *httptest.Server, roomCode string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/sessions/" + roomCode
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(protocol.Envelope{Event: event, Payload: raw}))
}

func readFrame(t *testing.T, conn *websocket.Conn, event string) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env protocol.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if env.Event == event {
			return env
		}
	}
}

func TestSessionStreamRoundTrip(t *testing.T) {
	srv, gw := wsTestServer(t)

	teacher := dialRoom(t, srv, "ABC234")
	sendFrame(t, teacher, protocol.EventJoinRoom, protocol.JoinRoomPayload{
		Role: protocol.RoleTeacher,
		CSRF: wsTestHostToken,
	})
	readFrame(t, teacher, protocol.EventWaitingRoomUpdate)

	// Room codes are case-insensitive at the edge.
	student := dialRoom(t, srv, "abc234")
	sendFrame(t, student, protocol.EventJoinRoom, protocol.JoinRoomPayload{
		Role:     protocol.RoleStudent,
		Nickname: "alice",
	})
	readFrame(t, student, protocol.EventWaitingRoomUpdate)

	sendFrame(t, teacher, protocol.EventStartQuiz, struct{}{})
	readFrame(t, student, protocol.EventStartQuiz)

	sendFrame(t, student, protocol.EventRequestQuestion, protocol.RequestQuestionPayload{Reason: protocol.ReasonDeath})
	push := readFrame(t, student, protocol.EventQuestionPush)
	var pushPayload protocol.QuestionPushPayload
	require.NoError(t, json.Unmarshal(push.Payload, &pushPayload))
	assert.Equal(t, "q1", pushPayload.Question.ID)

	sendFrame(t, student, protocol.EventAnswerSubmit, protocol.AnswerSubmitPayload{
		QuestionID: "q1",
		Answer:     model.Answer{Kind: model.AnswerOpen, Text: "paris"},
	})
	result := readFrame(t, student, protocol.EventAnswerResult)
	var resultPayload protocol.AnswerResultPayload
	require.NoError(t, json.Unmarshal(result.Payload, &resultPayload))
	assert.True(t, resultPayload.Correct)

	// The grading reached the teacher's live stats.
	readFrame(t, teacher, protocol.EventStatsUpdate)

	p, ok := gw.ParticipantByNickname(1, "alice")
	require.True(t, ok)
	assert.Equal(t, 1, gw.AnswerCount(1, p.ID, "q1"))
}

func TestSessionStreamUnknownRoom(t *testing.T) {
	srv, _ := wsTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/sessions/NOPE42"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionStreamFinishedRoom(t *testing.T) {
	srv, gw := wsTestServer(t)
	require.NoError(t, gw.SetSessionStatus(context.Background(), 1, model.SessionFinished, nil, nil))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/v1/sessions/ABC234"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestSessionStreamMalformedFrame(t *testing.T) {
	srv, _ := wsTestServer(t)

	conn := dialRoom(t, srv, "ABC234")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	env := readFrame(t, conn, protocol.EventBadRequest)
	var payload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, protocol.CodeBadRequest, payload.Code)
}
