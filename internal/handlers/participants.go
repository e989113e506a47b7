package handlers

import (
	"net/http"

	"github.com/warpfence/ptime/internal/services"

	"github.com/gin-gonic/gin"
)

type ParticipantHandler struct {
	rooms        *services.RoomService
	sessions     *services.SessionService
	participants *services.ParticipantService
}

func NewParticipantHandler(rooms *services.RoomService, sessions *services.SessionService, participants *services.ParticipantService) *ParticipantHandler {
	return &ParticipantHandler{rooms: rooms, sessions: sessions, participants: participants}
}

// ListParticipants returns the live presence snapshot for a session; the
// presenter dashboard polls this between websocket count updates. With
// include_offline=true it returns every participant ever recorded instead.
func (h *ParticipantHandler) ListParticipants(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.sessions.Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	if c.Query("include_offline") == "true" {
		records, err := h.participants.ListBySession(sessionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load participants"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"participants": records,
			"total_count":  len(records),
		})
		return
	}

	snapshot, err := h.rooms.Snapshot(c.Request.Context(), sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load participants"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
