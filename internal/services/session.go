package services

import (
	"errors"

	"github.com/warpfence/ptime/internal/models"

	"gorm.io/gorm"
)

// SessionService exposes the session metadata lookups the realtime core
// consumes; session CRUD itself belongs to the session-management service.
type SessionService struct {
	db *gorm.DB
}

func NewSessionService(db *gorm.DB) *SessionService {
	return &SessionService{db: db}
}

func (s *SessionService) Get(sessionID string) (*models.Session, error) {
	var session models.Session
	if err := s.db.First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *SessionService) Exists(sessionID string) (bool, error) {
	var count int64
	if err := s.db.Model(&models.Session{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SessionService) IsActive(sessionID string) (bool, error) {
	session, err := s.Get(sessionID)
	if err != nil {
		return false, err
	}
	return session.Status == models.SessionStatusActive, nil
}
