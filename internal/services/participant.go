package services

import (
	"context"
	"time"

	"github.com/warpfence/ptime/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ParticipantService keeps the durable participant records that outlive
// presence entries; a rejoin updates the existing row instead of creating a
// duplicate.
type ParticipantService struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewParticipantService(db *gorm.DB, logger zerolog.Logger) *ParticipantService {
	return &ParticipantService{db: db, log: logger}
}

func (s *ParticipantService) Upsert(ctx context.Context, sessionID, participantID, nickname string, joinedAt time.Time) error {
	record := models.Participant{
		ID:        participantID,
		SessionID: sessionID,
		Nickname:  nickname,
		JoinedAt:  joinedAt,
		LastSeen:  joinedAt,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nickname", "last_seen"}),
	}).Create(&record).Error
}

func (s *ParticipantService) TouchLastSeen(ctx context.Context, participantID string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&models.Participant{}).
		Where("id = ?", participantID).
		Update("last_seen", at).Error
}

func (s *ParticipantService) ListBySession(sessionID string) ([]models.Participant, error) {
	var participants []models.Participant
	if err := s.db.Where("session_id = ?", sessionID).
		Order("joined_at ASC").
		Find(&participants).Error; err != nil {
		return nil, err
	}
	return participants, nil
}
