package models

import "time"

type Message struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	SessionID     string    `gorm:"not null;index;size:36" json:"session_id"`
	ParticipantID string    `gorm:"size:36" json:"participant_id,omitempty"`
	Nickname      string    `gorm:"size:100;not null" json:"nickname"`
	Body          string    `gorm:"size:500;not null" json:"message"`
	Type          string    `gorm:"size:20;not null;default:'text'" json:"type"`
	Seq           int64     `gorm:"not null;index:idx_messages_session_seq" json:"seq"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
)
