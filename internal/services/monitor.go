package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PresenceMonitor periodically reconciles room rosters against the presence
// store. A participant the room still holds but the store no longer lists
// stopped refreshing its TTL; the monitor runs the expire path for it. This
// catches ungraceful transport terminations where no read error ever fires.
type PresenceMonitor struct {
	rooms    *RoomService
	interval time.Duration
	log      zerolog.Logger
	stop     chan struct{}
	done     chan struct{}
}

func NewPresenceMonitor(rooms *RoomService, interval time.Duration, logger zerolog.Logger) *PresenceMonitor {
	return &PresenceMonitor{
		rooms:    rooms,
		interval: interval,
		log:      logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *PresenceMonitor) Start() {
	go m.run()
	m.log.Info().Dur("interval", m.interval).Msg("presence monitor started")
}

func (m *PresenceMonitor) Stop() {
	close(m.stop)
	<-m.done
}

func (m *PresenceMonitor) run() {
	ticker := time.NewTicker(m.interval)
	defer func() {
		ticker.Stop()
		close(m.done)
	}()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep(context.Background())
		}
	}
}

// Sweep evicts every roster member whose presence entry has expired.
// Exposed so tests can drive it without the ticker.
func (m *PresenceMonitor) Sweep(ctx context.Context) {
	for _, sessionID := range m.rooms.ActiveSessions() {
		entries, err := m.rooms.Snapshot(ctx, sessionID)
		if err != nil {
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("sweep: presence list failed")
			continue
		}
		live := make(map[string]bool, len(entries.Participants))
		for _, e := range entries.Participants {
			live[e.ParticipantID] = true
		}

		for _, participantID := range m.rooms.RosterIDs(sessionID) {
			if live[participantID] {
				continue
			}
			if m.rooms.Expire(ctx, sessionID, participantID) {
				m.log.Info().Str("session_id", sessionID).Str("participant_id", participantID).Msg("sweep: evicted expired participant")
			}
		}
	}
}
