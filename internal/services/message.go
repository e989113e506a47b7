package services

import (
	"context"
	"sync"
	"time"

	"github.com/warpfence/ptime/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// MessageService builds chat messages with per-session ordering keys and
// appends them to storage best-effort: a failed write is the caller's cue to
// log, never to withhold the broadcast.
type MessageService struct {
	db  *gorm.DB
	log zerolog.Logger

	mu      sync.Mutex
	lastSeq map[string]int64
}

func NewMessageService(db *gorm.DB, logger zerolog.Logger) *MessageService {
	return &MessageService{
		db:      db,
		log:     logger,
		lastSeq: make(map[string]int64),
	}
}

// nextSeq returns a strictly increasing key per session: wall-clock
// microseconds, bumped past the previous key when two sends land in the
// same tick. Not persisted across restarts; post-restart keys stay ordered
// as long as the clock is sane.
func (s *MessageService) nextSeq(sessionID string) int64 {
	seq := time.Now().UnixMicro()
	s.mu.Lock()
	defer s.mu.Unlock()
	if last := s.lastSeq[sessionID]; seq <= last {
		seq = last + 1
	}
	s.lastSeq[sessionID] = seq
	return seq
}

// Create assigns identity and ordering, then persists. The message is
// returned even when persistence fails so delivery can proceed.
func (s *MessageService) Create(ctx context.Context, sessionID, participantID, nickname, body, msgType string) (*models.Message, error) {
	msg := &models.Message{
		ID:            "msg_" + uuid.NewString(),
		SessionID:     sessionID,
		ParticipantID: participantID,
		Nickname:      nickname,
		Body:          body,
		Type:          msgType,
		Seq:           s.nextSeq(sessionID),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return msg, err
	}
	return msg, nil
}

func (s *MessageService) ListBySession(sessionID string, page, pageSize int) ([]models.Message, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}

	query := s.db.Model(&models.Message{}).Where("session_id = ?", sessionID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var messages []models.Message
	if err := query.Order("seq ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&messages).Error; err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

type MessageStats struct {
	TotalCount    int64      `json:"total_count"`
	TextCount     int64      `json:"text_count"`
	SystemCount   int64      `json:"system_count"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

func (s *MessageService) Stats(sessionID string) (*MessageStats, error) {
	stats := &MessageStats{}
	base := s.db.Model(&models.Message{}).Where("session_id = ?", sessionID)

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).Where("type = ?", models.MessageTypeText).Count(&stats.TextCount).Error; err != nil {
		return nil, err
	}
	stats.SystemCount = stats.TotalCount - stats.TextCount

	if stats.TotalCount > 0 {
		var last models.Message
		if err := s.db.Where("session_id = ?", sessionID).Order("seq DESC").First(&last).Error; err != nil {
			return nil, err
		}
		stats.LastMessageAt = &last.CreatedAt
	}
	return stats, nil
}
