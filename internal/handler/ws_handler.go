package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/horoquiz/horoquiz-backend/internal/response"
	"github.com/horoquiz/horoquiz-backend/internal/room"
	"github.com/horoquiz/horoquiz-backend/internal/store"
	"github.com/horoquiz/horoquiz-backend/internal/ws"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler upgrades live-session connections and hands them to their
// room. Roles are not decided here; the socket declares itself with
// join_room once connected.
type WSHandler struct {
	registry *room.Registry
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(registry *room.Registry, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		registry: registry,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:room_code
// Upgrades to WebSocket and binds the connection to the live room.
func (h *WSHandler) SessionStream(c *gin.Context) {
	roomCode := strings.ToUpper(strings.TrimSpace(c.Param("room_code")))
	if roomCode == "" {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Resolve the room before upgrading so HTTP errors stay HTTP errors.
	r, err := h.registry.Acquire(c.Request.Context(), roomCode)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrRoomNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrRoomNotFound)
		case errors.Is(err, room.ErrRoomClosed):
			response.Fail(c, http.StatusGone, response.ErrRoomClosed)
		default:
			h.log.Error().Err(err).Str("room_code", roomCode).Msg("Room acquire failed")
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	conn := ws.NewConn(wsConn, h.log)
	if err := r.Attach(c.Request.Context(), conn); err != nil {
		// The room finished between Acquire and Attach. The pumps never
		// started, so close the raw socket directly.
		conn.Close("session already finished")
		wsConn.Close()
		return
	}

	h.log.Info().Str("room_code", roomCode).Str("conn_id", conn.ID()).Msg("Connection bound to room")
	conn.Serve(r)
}
