package models

import "time"

type Participant struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID string    `gorm:"not null;index;size:36" json:"session_id"`
	Nickname  string    `gorm:"size:100;not null" json:"nickname"`
	JoinedAt  time.Time `json:"joined_at"`
	LastSeen  time.Time `json:"last_seen"`
}
