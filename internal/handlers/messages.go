package handlers

import (
	"net/http"
	"strconv"

	"github.com/warpfence/ptime/internal/services"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messages *services.MessageService
	sessions *services.SessionService
}

func NewMessageHandler(messages *services.MessageService, sessions *services.SessionService) *MessageHandler {
	return &MessageHandler{messages: messages, sessions: sessions}
}

type MessageListResponse struct {
	Messages   interface{} `json:"messages"`
	TotalCount int64       `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.sessions.Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	messages, total, err := h.messages.ListBySession(sessionID, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load messages"})
		return
	}

	c.JSON(http.StatusOK, MessageListResponse{
		Messages:   messages,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	})
}

func (h *MessageHandler) GetMessageStats(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.sessions.Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return
	}

	stats, err := h.messages.Stats(sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
