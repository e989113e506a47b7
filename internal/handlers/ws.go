package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/warpfence/ptime/internal/services"
	"github.com/warpfence/ptime/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

type WSHandler struct {
	router     *services.Router
	rooms      *services.RoomService
	sendBuffer int
	log        zerolog.Logger
}

func NewWSHandler(router *services.Router, rooms *services.RoomService, sendBuffer int, logger zerolog.Logger) *WSHandler {
	return &WSHandler{router: router, rooms: rooms, sendBuffer: sendBuffer, log: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleWebSocket upgrades the socket and runs the read loop. Which session
// the conn belongs to is decided by its join_session event, not the URL.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConn(socket, h.sendBuffer, h.log)
	conn.SetupRead()
	go conn.WritePump()

	defer func() {
		h.rooms.Disconnect(context.Background(), conn)
		conn.Close()
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var evt ws.Inbound
		if err := json.Unmarshal(data, &evt); err != nil {
			h.log.Debug().Err(err).Str("conn_id", conn.ID).Msg("unparseable frame dropped")
			continue
		}
		h.router.Handle(c.Request.Context(), conn, evt)
	}
}
