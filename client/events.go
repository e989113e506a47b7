package client

import (
	"encoding/json"
	"time"
)

// Server -> client event names; observer registration is keyed by these.
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

const (
	eventJoinSession        = "join_session"
	eventLeaveSession       = "leave_session"
	eventSendMessage        = "send_message"
	eventHeartbeat          = "heartbeat"
	eventGetParticipantList = "get_participant_list"
)

// Event is one wire frame; Data stays raw so observers can decode the
// payload type they registered for.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type outbound struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type SessionJoined struct {
	Message       string `json:"message"`
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
}

type NewMessage struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id,omitempty"`
	Nickname      string    `json:"nickname"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	Seq           int64     `json:"seq"`
}

type ParticipantJoined struct {
	ParticipantID string    `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	JoinedAt      time.Time `json:"joined_at"`
}

type ParticipantLeft struct {
	ParticipantID string    `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	LeftAt        time.Time `json:"left_at"`
}

type CountUpdated struct {
	SessionID   string    `json:"session_id"`
	TotalCount  int       `json:"total_count"`
	OnlineCount int       `json:"online_count"`
	Timestamp   time.Time `json:"timestamp"`
}

type Participant struct {
	ParticipantID string    `json:"participant_id"`
	SessionID     string    `json:"session_id"`
	Nickname      string    `json:"nickname"`
	JoinedAt      time.Time `json:"joined_at"`
	LastSeen      time.Time `json:"last_seen"`
}

type ParticipantList struct {
	Participants []Participant `json:"participants"`
	TotalCount   int           `json:"total_count"`
	OnlineCount  int           `json:"online_count"`
}

type HeartbeatAck struct {
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
