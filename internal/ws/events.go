package ws

import (
	"encoding/json"
	"time"

	"github.com/warpfence/ptime/internal/presence"
)

// Client -> server event types.
const (
	EventJoinSession        = "join_session"
	EventLeaveSession       = "leave_session"
	EventSendMessage        = "send_message"
	EventHeartbeat          = "heartbeat"
	EventGetParticipantList = "get_participant_list"
)

// Server -> client event types.
const (
	EventSessionJoined           = "session_joined"
	EventNewMessage              = "new_message"
	EventParticipantJoined       = "participant_joined"
	EventParticipantLeft         = "participant_left"
	EventParticipantCountUpdated = "participant_count_updated"
	EventParticipantList         = "participant_list"
	EventHeartbeatAck            = "heartbeat_ack"
	EventError                   = "error"
)

type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// Inbound defers payload decoding until the event type is known.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinSessionPayload struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	Nickname      string `json:"nickname"`
}

type SendMessagePayload struct {
	Message string `json:"message"`
}

type SessionJoinedPayload struct {
	Message       string `json:"message"`
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
}

type NewMessagePayload struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id,omitempty"`
	Nickname      string    `json:"nickname"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	Seq           int64     `json:"seq"`
}

type ParticipantJoinedPayload struct {
	ParticipantID string    `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	JoinedAt      time.Time `json:"joined_at"`
}

type ParticipantLeftPayload struct {
	ParticipantID string    `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	LeftAt        time.Time `json:"left_at"`
}

type CountUpdatedPayload struct {
	SessionID   string    `json:"session_id"`
	TotalCount  int       `json:"total_count"`
	OnlineCount int       `json:"online_count"`
	Timestamp   time.Time `json:"timestamp"`
}

type ParticipantListPayload struct {
	Participants []presence.Entry `json:"participants"`
	TotalCount   int              `json:"total_count"`
	OnlineCount  int              `json:"online_count"`
}

type HeartbeatAckPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
