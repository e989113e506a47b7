package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warpfence/ptime/internal/models"
	"github.com/warpfence/ptime/internal/presence"
	"github.com/warpfence/ptime/internal/ws"

	"github.com/rs/zerolog"
)

// RoomService orchestrates join/leave/expire for a session and keeps the
// presence store and the connection registry consistent. All counts sent to
// clients are re-queried from the presence store at broadcast time; the
// store's live cardinality is the one authoritative online count.
type RoomService struct {
	hub          *ws.Hub
	store        presence.Store
	sessions     *SessionService
	messages     *MessageService
	participants *ParticipantService
	ttl          time.Duration
	log          zerolog.Logger

	mu      sync.Mutex
	rosters map[string]*roster
}

// roster tracks which participant owns which conn for one session. Its lock
// serializes that session's lifecycle transitions; different sessions never
// contend.
type roster struct {
	mu      sync.Mutex
	members map[string]*member
}

type member struct {
	conn     *ws.Conn
	nickname string
}

func NewRoomService(hub *ws.Hub, store presence.Store, sessions *SessionService, messages *MessageService, participants *ParticipantService, ttl time.Duration, logger zerolog.Logger) *RoomService {
	return &RoomService{
		hub:          hub,
		store:        store,
		sessions:     sessions,
		messages:     messages,
		participants: participants,
		ttl:          ttl,
		log:          logger,
		rosters:      make(map[string]*roster),
	}
}

func (r *RoomService) roster(sessionID string, create bool) *roster {
	r.mu.Lock()
	defer r.mu.Unlock()
	ros := r.rosters[sessionID]
	if ros == nil && create {
		ros = &roster{members: make(map[string]*member)}
		r.rosters[sessionID] = ros
	}
	return ros
}

func (r *RoomService) dropIfEmpty(sessionID string, ros *roster) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ros.mu.Lock()
	defer ros.mu.Unlock()
	if len(ros.members) == 0 && r.rosters[sessionID] == ros {
		delete(r.rosters, sessionID)
	}
}

// Join runs the join handshake: validate the session, write presence,
// register the conn, ack the caller, then announce to the rest of the room.
func (r *RoomService) Join(ctx context.Context, conn *ws.Conn, sessionID, participantID, nickname string) error {
	if sessionID == "" || participantID == "" || nickname == "" {
		return fmt.Errorf("%w: session_id, participant_id and nickname are required", ErrValidation)
	}

	active, err := r.sessions.IsActive(sessionID)
	if err != nil {
		return err
	}
	if !active {
		return ErrSessionNotActive
	}

	now := time.Now().UTC()
	entry := presence.Entry{
		ParticipantID: participantID,
		SessionID:     sessionID,
		Nickname:      nickname,
		JoinedAt:      now,
		LastSeen:      now,
	}
	if err := r.store.Set(ctx, sessionID, entry, r.ttl); err != nil {
		return fmt.Errorf("presence write: %w", err)
	}
	if err := r.participants.Upsert(ctx, sessionID, participantID, nickname, now); err != nil {
		// The durable record is history, not liveness; a failed write must
		// not block the join.
		r.log.Warn().Err(err).Str("session_id", sessionID).Msg("participant record not persisted")
	}

	ros := r.roster(sessionID, true)
	ros.mu.Lock()
	if old, ok := ros.members[participantID]; ok && old.conn != conn {
		// Reconnect overlap: the fresh conn supersedes the stale one.
		r.hub.Unregister(sessionID, old.conn)
		old.conn.Close()
	}
	ros.members[participantID] = &member{conn: conn, nickname: nickname}
	conn.SetIdentity(sessionID, participantID, nickname)
	r.hub.Register(sessionID, conn)
	ros.mu.Unlock()

	r.hub.SendTo(sessionID, conn, ws.Event{
		Type: ws.EventSessionJoined,
		Data: ws.SessionJoinedPayload{
			Message:       fmt.Sprintf("%s joined the session", nickname),
			SessionID:     sessionID,
			ParticipantID: participantID,
		},
	})
	r.hub.Broadcast(sessionID, ws.Event{
		Type: ws.EventParticipantJoined,
		Data: ws.ParticipantJoinedPayload{
			ParticipantID: participantID,
			Nickname:      nickname,
			JoinedAt:      now,
		},
	}, conn)
	r.systemMessage(ctx, sessionID, fmt.Sprintf("%s joined", nickname))
	r.BroadcastCount(ctx, sessionID)

	r.log.Info().Str("session_id", sessionID).Str("participant_id", participantID).Str("nickname", nickname).Msg("participant joined")
	return nil
}

// Leave handles an explicit leave_session: the participant exits the room
// but the socket stays open.
func (r *RoomService) Leave(ctx context.Context, conn *ws.Conn) error {
	sessionID, participantID, nickname := conn.Identity()
	if sessionID == "" {
		return ErrNotInSession
	}

	removed := r.removeMember(sessionID, participantID, conn)
	r.hub.Unregister(sessionID, conn)
	conn.ClearIdentity()

	// A leave on a conn that a reconnect already superseded must not touch
	// the live participant's presence entry.
	if removed {
		if err := r.store.Remove(ctx, sessionID, participantID); err != nil {
			r.log.Warn().Err(err).Str("session_id", sessionID).Msg("presence remove failed")
		}
		r.announceLeft(ctx, sessionID, participantID, nickname)
		r.log.Info().Str("session_id", sessionID).Str("participant_id", participantID).Msg("participant left")
	}
	return nil
}

// Disconnect is the transport-death path: same observable effect as Leave,
// triggered by a read failure instead of a client request. A conn that was
// already superseded by a reconnect only gets unregistered.
func (r *RoomService) Disconnect(ctx context.Context, conn *ws.Conn) {
	sessionID, participantID, nickname := conn.Identity()
	if sessionID == "" {
		return
	}
	r.hub.Unregister(sessionID, conn)

	if r.removeMember(sessionID, participantID, conn) {
		if err := r.store.Remove(ctx, sessionID, participantID); err != nil {
			r.log.Warn().Err(err).Str("session_id", sessionID).Msg("presence remove failed")
		}
		r.announceLeft(ctx, sessionID, participantID, nickname)
		r.log.Info().Str("session_id", sessionID).Str("participant_id", participantID).Msg("participant disconnected")
	}
}

// Expire evicts a participant whose presence TTL elapsed without a refresh.
// Reports whether this call performed the eviction, so the sweep and the
// disconnect path can never double-announce.
func (r *RoomService) Expire(ctx context.Context, sessionID, participantID string) bool {
	ros := r.roster(sessionID, false)
	if ros == nil {
		return false
	}
	ros.mu.Lock()
	m, ok := ros.members[participantID]
	if !ok {
		ros.mu.Unlock()
		return false
	}
	// Re-check liveness while holding the roster lock: the caller decided on
	// a store snapshot that may predate a join which wrote a fresh entry.
	// Join writes presence before it takes this lock, so a live entry is
	// visible here whenever the roster entry is.
	entries, err := r.store.List(ctx, sessionID)
	if err != nil {
		ros.mu.Unlock()
		r.log.Warn().Err(err).Str("session_id", sessionID).Msg("presence list failed, eviction skipped")
		return false
	}
	for _, e := range entries {
		if e.ParticipantID == participantID {
			ros.mu.Unlock()
			return false
		}
	}
	delete(ros.members, participantID)
	empty := len(ros.members) == 0
	ros.mu.Unlock()
	if empty {
		r.dropIfEmpty(sessionID, ros)
	}

	if err := r.store.Remove(ctx, sessionID, participantID); err != nil {
		r.log.Warn().Err(err).Str("session_id", sessionID).Msg("presence remove failed")
	}
	r.hub.Unregister(sessionID, m.conn)
	m.conn.Close()

	r.announceLeft(ctx, sessionID, participantID, m.nickname)
	r.log.Info().Str("session_id", sessionID).Str("participant_id", participantID).Msg("participant expired")
	return true
}

// removeMember deletes the roster entry iff it is still owned by conn.
func (r *RoomService) removeMember(sessionID, participantID string, conn *ws.Conn) bool {
	ros := r.roster(sessionID, false)
	if ros == nil {
		return false
	}
	ros.mu.Lock()
	m, ok := ros.members[participantID]
	owned := ok && m.conn == conn
	if owned {
		delete(ros.members, participantID)
	}
	empty := len(ros.members) == 0
	ros.mu.Unlock()

	if owned && empty {
		r.dropIfEmpty(sessionID, ros)
	}
	return owned
}

func (r *RoomService) announceLeft(ctx context.Context, sessionID, participantID, nickname string) {
	if err := r.participants.TouchLastSeen(ctx, participantID, time.Now().UTC()); err != nil {
		r.log.Warn().Err(err).Str("participant_id", participantID).Msg("last_seen not updated")
	}
	r.hub.Broadcast(sessionID, ws.Event{
		Type: ws.EventParticipantLeft,
		Data: ws.ParticipantLeftPayload{
			ParticipantID: participantID,
			Nickname:      nickname,
			LeftAt:        time.Now().UTC(),
		},
	}, nil)
	r.systemMessage(ctx, sessionID, fmt.Sprintf("%s left", nickname))
	r.BroadcastCount(ctx, sessionID)
}

// BroadcastCount emits participant_count_updated with counts taken from the
// presence store at this moment, never from cached deltas.
func (r *RoomService) BroadcastCount(ctx context.Context, sessionID string) {
	entries, err := r.store.List(ctx, sessionID)
	if err != nil {
		r.log.Warn().Err(err).Str("session_id", sessionID).Msg("presence list failed")
		return
	}
	r.hub.Broadcast(sessionID, ws.Event{
		Type: ws.EventParticipantCountUpdated,
		Data: ws.CountUpdatedPayload{
			SessionID:   sessionID,
			TotalCount:  len(entries),
			OnlineCount: len(entries),
			Timestamp:   time.Now().UTC(),
		},
	}, nil)
}

// Snapshot returns the full presence view for late-join resync and the REST
// surface.
func (r *RoomService) Snapshot(ctx context.Context, sessionID string) (*ws.ParticipantListPayload, error) {
	entries, err := r.store.List(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].JoinedAt.Before(entries[j].JoinedAt) })
	return &ws.ParticipantListPayload{
		Participants: entries,
		TotalCount:   len(entries),
		OnlineCount:  len(entries),
	}, nil
}

// ActiveSessions lists sessions that currently have roster members; the
// presence monitor sweeps only these.
func (r *RoomService) ActiveSessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.rosters))
	for id := range r.rosters {
		ids = append(ids, id)
	}
	return ids
}

// RosterIDs lists the participant ids the room believes are connected.
func (r *RoomService) RosterIDs(sessionID string) []string {
	ros := r.roster(sessionID, false)
	if ros == nil {
		return nil
	}
	ros.mu.Lock()
	defer ros.mu.Unlock()
	ids := make([]string, 0, len(ros.members))
	for id := range ros.members {
		ids = append(ids, id)
	}
	return ids
}

func (r *RoomService) systemMessage(ctx context.Context, sessionID, body string) {
	if _, err := r.messages.Create(ctx, sessionID, "", "system", body, models.MessageTypeSystem); err != nil {
		r.log.Warn().Err(err).Str("session_id", sessionID).Msg("system message not persisted")
	}
}
