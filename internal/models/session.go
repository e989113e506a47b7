package models

import "time"

type Session struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	HostID    uint       `gorm:"not null;index" json:"host_id"`
	Title     string     `gorm:"size:200;not null" json:"title"`
	Code      string     `gorm:"size:8;uniqueIndex" json:"code"`
	Status    string     `gorm:"size:20;not null;default:'active'" json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

const (
	SessionStatusActive = "active"
	SessionStatusPaused = "paused"
	SessionStatusEnded  = "ended"
)
