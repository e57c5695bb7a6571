// Package ws adapts raw WebSocket connections to the room actor's typed
// event interface: a reader pump parses inbound envelopes into room
// events, a writer pump drains the bounded outbox and keeps the
// heartbeat.
package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/horoquiz/horoquiz-backend/internal/protocol"
	"github.com/horoquiz/horoquiz-backend/internal/room"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 20 * time.Second
	// A peer has pongGrace after a ping before its reads time out.
	pongGrace = 15 * time.Second
	pongWait  = pingPeriod + pongGrace

	maxMessageSize = 32 * 1024
)

// Conn is one client connection. It satisfies room.Conn: Send enqueues
// without touching the network, Close initiates a graceful teardown.
type Conn struct {
	id  string
	ws  *websocket.Conn
	log zerolog.Logger
	out *outbox

	closeOnce sync.Once
	closing   chan struct{}
	reason    string
}

// NewConn wraps an upgraded WebSocket.
func NewConn(wsConn *websocket.Conn, log zerolog.Logger) *Conn {
	id := uuid.NewString()
	return &Conn{
		id:      id,
		ws:      wsConn,
		log:     log.With().Str("component", "ws").Str("conn_id", id).Logger(),
		out:     newOutbox(),
		closing: make(chan struct{}),
	}
}

// ID returns the connection's unique id.
func (c *Conn) ID() string { return c.id }

// Send queues an outbound envelope. A critical frame that cannot be
// queued makes the connection incoherent; it is closed with the
// backpressure code.
func (c *Conn) Send(env protocol.Envelope) error {
	err := c.out.push(env)
	if errors.Is(err, errBackpressure) {
		c.log.Warn().Str("event", env.Event).Msg("Critical frame dropped, closing connection")
		c.Close(protocol.CodeBackpressure)
	}
	return err
}

// Close starts a graceful shutdown: the outbox stops accepting frames,
// the writer drains what is queued and sends a close frame carrying the
// reason. Idempotent.
func (c *Conn) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		c.out.close()
		close(c.closing)
	})
}

// Serve runs both pumps. It blocks until the read side exits and always
// reports the closure to the room, so the actor's refcount stays exact.
func (c *Conn) Serve(r *room.Room) {
	go c.writePump()
	c.readPump(r)
}

func (c *Conn) readPump(r *room.Room) {
	defer func() {
		c.Close("")
		c.ws.Close()
		r.Enqueue(room.ConnectionClosed{Conn: c})
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("Read loop ended")
			}
			return
		}
		c.dispatch(r, data)
	}
}

// dispatch parses one inbound frame and posts the matching typed event.
// Parse failures answer only this connection via BadEnvelope.
func (c *Conn) dispatch(r *room.Room, data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		r.Enqueue(room.BadEnvelope{Conn: c, Message: "malformed envelope"})
		return
	}

	switch env.Event {
	case protocol.EventJoinRoom:
		var p protocol.JoinRoomPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.Enqueue(room.BadEnvelope{Conn: c, Message: "malformed join_room payload", RequestID: env.RequestID})
			return
		}
		r.Enqueue(room.JoinRoom{Conn: c, Role: p.Role, Nickname: p.Nickname, CSRF: p.CSRF, RequestID: env.RequestID})

	case protocol.EventAnswerSubmit:
		var p protocol.AnswerSubmitPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.Enqueue(room.BadEnvelope{Conn: c, Message: "malformed answer_submit payload", RequestID: env.RequestID})
			return
		}
		r.Enqueue(room.AnswerSubmit{Conn: c, QuestionID: p.QuestionID, Answer: p.Answer, RequestID: env.RequestID})

	case protocol.EventRequestQuestion:
		var p protocol.RequestQuestionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			r.Enqueue(room.BadEnvelope{Conn: c, Message: "malformed request_question payload", RequestID: env.RequestID})
			return
		}
		r.Enqueue(room.RequestQuestion{Conn: c, Reason: p.Reason, RequestID: env.RequestID})

	case protocol.EventRequestStats:
		r.Enqueue(room.RequestStats{Conn: c, RequestID: env.RequestID})

	case protocol.EventStartQuiz:
		r.Enqueue(room.StartQuiz{Conn: c, RequestID: env.RequestID})

	case protocol.EventEndQuiz:
		r.Enqueue(room.EndQuiz{Conn: c, RequestID: env.RequestID})

	default:
		r.Enqueue(room.BadEnvelope{Conn: c, Message: "unknown event", RequestID: env.RequestID})
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.out.wake:
			if !c.flush() {
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closing:
			// Drain what was queued before the close, then say goodbye.
			c.flush()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason)
			_ = c.ws.WriteMessage(websocket.CloseMessage, msg)
			return
		}
	}
}

// flush writes every queued frame; false means the socket is broken.
func (c *Conn) flush() bool {
	for {
		env, ok := c.out.pop()
		if !ok {
			return true
		}
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.ws.WriteJSON(env); err != nil {
			c.log.Debug().Err(err).Msg("Write failed")
			return false
		}
	}
}
