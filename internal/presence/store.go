package presence

import (
	"context"
	"errors"
	"time"
)

// ErrNoEntry is returned when refreshing or reading a participant whose
// presence record has expired or was never written.
var ErrNoEntry = errors.New("presence: no entry")

type Entry struct {
	ParticipantID string    `json:"participant_id"`
	SessionID     string    `json:"session_id"`
	Nickname      string    `json:"nickname"`
	JoinedAt      time.Time `json:"joined_at"`
	LastSeen      time.Time `json:"last_seen"`
}

// Store holds the set of live participants per session. An entry that is not
// refreshed within its TTL stops being listed; the live cardinality reported
// by Count is the authoritative online count for a session.
type Store interface {
	Set(ctx context.Context, sessionID string, entry Entry, ttl time.Duration) error
	Refresh(ctx context.Context, sessionID, participantID string, ttl time.Duration) error
	Remove(ctx context.Context, sessionID, participantID string) error
	List(ctx context.Context, sessionID string) ([]Entry, error)
	Count(ctx context.Context, sessionID string) (int, error)
}
