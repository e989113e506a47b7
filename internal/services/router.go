package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/warpfence/ptime/internal/models"
	"github.com/warpfence/ptime/internal/presence"
	"github.com/warpfence/ptime/internal/ws"

	"github.com/rs/zerolog"
)

// Router validates and classifies inbound wire events and dispatches them to
// the room lifecycle and message services. Every per-event failure is
// reported to the originating conn only; nothing a single client sends can
// take down the room.
type Router struct {
	rooms    *RoomService
	hub      *ws.Hub
	store    presence.Store
	messages *MessageService
	ttl      time.Duration
	maxLen   int
	log      zerolog.Logger
}

func NewRouter(rooms *RoomService, hub *ws.Hub, store presence.Store, messages *MessageService, ttl time.Duration, maxLen int, logger zerolog.Logger) *Router {
	return &Router{
		rooms:    rooms,
		hub:      hub,
		store:    store,
		messages: messages,
		ttl:      ttl,
		maxLen:   maxLen,
		log:      logger,
	}
}

func (rt *Router) Handle(ctx context.Context, conn *ws.Conn, evt ws.Inbound) {
	var err error
	switch evt.Type {
	case ws.EventJoinSession:
		err = rt.handleJoin(ctx, conn, evt.Data)
	case ws.EventSendMessage:
		err = rt.handleSendMessage(ctx, conn, evt.Data)
	case ws.EventHeartbeat:
		err = rt.handleHeartbeat(ctx, conn)
	case ws.EventGetParticipantList:
		err = rt.handleParticipantList(ctx, conn)
	case ws.EventLeaveSession:
		err = rt.rooms.Leave(ctx, conn)
	default:
		err = fmt.Errorf("%w: unknown event type %q", ErrValidation, evt.Type)
	}

	if err != nil {
		rt.sendError(conn, err)
	}
}

func (rt *Router) handleJoin(ctx context.Context, conn *ws.Conn, data json.RawMessage) error {
	var payload ws.JoinSessionPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%w: malformed join payload", ErrValidation)
	}
	return rt.rooms.Join(ctx, conn, payload.SessionID, payload.ParticipantID, payload.Nickname)
}

func (rt *Router) handleSendMessage(ctx context.Context, conn *ws.Conn, data json.RawMessage) error {
	sessionID, participantID, nickname := conn.Identity()
	if sessionID == "" {
		return ErrNotInSession
	}

	var payload ws.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%w: malformed message payload", ErrValidation)
	}

	body := strings.TrimSpace(payload.Message)
	if body == "" {
		return fmt.Errorf("%w: message is empty", ErrValidation)
	}
	if utf8.RuneCountInString(body) > rt.maxLen {
		return fmt.Errorf("%w: message exceeds %d characters", ErrValidation, rt.maxLen)
	}

	msg, err := rt.messages.Create(ctx, sessionID, participantID, nickname, body, models.MessageTypeText)
	if err != nil {
		// Availability over durability: the write failed, delivery goes on.
		rt.log.Warn().Err(err).Str("session_id", sessionID).Str("message_id", msg.ID).Msg("message not persisted")
	}

	rt.hub.Broadcast(sessionID, ws.Event{
		Type: ws.EventNewMessage,
		Data: ws.NewMessagePayload{
			ID:            msg.ID,
			ParticipantID: msg.ParticipantID,
			Nickname:      msg.Nickname,
			Message:       msg.Body,
			Timestamp:     msg.CreatedAt,
			Type:          msg.Type,
			Seq:           msg.Seq,
		},
	}, nil)

	// Sending counts as activity.
	if err := rt.store.Refresh(ctx, sessionID, participantID, rt.ttl); err != nil && !errors.Is(err, presence.ErrNoEntry) {
		rt.log.Warn().Err(err).Str("session_id", sessionID).Msg("presence refresh failed")
	}
	return nil
}

func (rt *Router) handleHeartbeat(ctx context.Context, conn *ws.Conn) error {
	sessionID, participantID, _ := conn.Identity()
	if sessionID == "" {
		return ErrNotInSession
	}

	if err := rt.store.Refresh(ctx, sessionID, participantID, rt.ttl); err != nil {
		if errors.Is(err, presence.ErrNoEntry) {
			return ErrNotInSession
		}
		return err
	}

	rt.hub.SendTo(sessionID, conn, ws.Event{
		Type: ws.EventHeartbeatAck,
		Data: ws.HeartbeatAckPayload{Timestamp: time.Now().UTC()},
	})
	return nil
}

func (rt *Router) handleParticipantList(ctx context.Context, conn *ws.Conn) error {
	sessionID, _, _ := conn.Identity()
	if sessionID == "" {
		return ErrNotInSession
	}

	snapshot, err := rt.rooms.Snapshot(ctx, sessionID)
	if err != nil {
		return err
	}
	rt.hub.SendTo(sessionID, conn, ws.Event{
		Type: ws.EventParticipantList,
		Data: snapshot,
	})
	return nil
}

// sendError converts a handler failure into an error event for the
// originating conn only; client mistakes are described, internal failures
// are not leaked.
func (rt *Router) sendError(conn *ws.Conn, err error) {
	msg := "internal error"
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrSessionNotActive),
		errors.Is(err, ErrNotInSession):
		msg = err.Error()
	default:
		rt.log.Error().Err(err).Msg("event handler failed")
	}

	sessionID, _, _ := conn.Identity()
	rt.hub.SendTo(sessionID, conn, ws.Event{
		Type: ws.EventError,
		Data: ws.ErrorPayload{Message: msg},
	})
}
