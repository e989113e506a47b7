package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/warpfence/ptime/internal/models"
	"github.com/warpfence/ptime/internal/presence"
	"github.com/warpfence/ptime/internal/ws"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTTL = 2 * time.Minute

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	db       *gorm.DB
	store    *presence.MemoryStore
	clock    *fakeClock
	hub      *ws.Hub
	sessions *SessionService
	messages *MessageService
	rooms    *RoomService
	router   *Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Session{}, &models.Participant{}, &models.Message{}))

	require.NoError(t, db.Create(&models.Session{
		ID: "s1", HostID: 1, Title: "demo", Code: "ABC123",
		Status: models.SessionStatusActive, CreatedAt: time.Now(),
	}).Error)
	require.NoError(t, db.Create(&models.Session{
		ID: "s-ended", HostID: 1, Title: "over", Code: "DEAD01",
		Status: models.SessionStatusEnded, CreatedAt: time.Now(),
	}).Error)

	store := presence.NewMemoryStore()
	clock := &fakeClock{now: time.Now()}
	store.SetClock(clock.Now)

	hub := ws.NewHub(zerolog.Nop())
	sessions := NewSessionService(db)
	messages := NewMessageService(db, zerolog.Nop())
	participants := NewParticipantService(db, zerolog.Nop())
	rooms := NewRoomService(hub, store, sessions, messages, participants, testTTL, zerolog.Nop())
	router := NewRouter(rooms, hub, store, messages, testTTL, 500, zerolog.Nop())

	return &testEnv{
		db:       db,
		store:    store,
		clock:    clock,
		hub:      hub,
		sessions: sessions,
		messages: messages,
		rooms:    rooms,
		router:   router,
	}
}

func (e *testEnv) newConn() *ws.Conn {
	return ws.NewConn(nil, 32, zerolog.Nop())
}

func (e *testEnv) join(t *testing.T, conn *ws.Conn, sessionID, participantID, nickname string) {
	t.Helper()
	require.NoError(t, e.rooms.Join(context.Background(), conn, sessionID, participantID, nickname))
}

// drain returns every event currently queued on the conn, in order.
func drain(t *testing.T, conn *ws.Conn) []ws.Event {
	t.Helper()
	var events []ws.Event
	for {
		select {
		case data := <-conn.Send:
			var evt ws.Event
			require.NoError(t, json.Unmarshal(data, &evt))
			events = append(events, evt)
		default:
			return events
		}
	}
}

func eventTypes(events []ws.Event) []string {
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func payload(t *testing.T, evt ws.Event) map[string]interface{} {
	t.Helper()
	m, ok := evt.Data.(map[string]interface{})
	require.True(t, ok, "event %s has no object payload", evt.Type)
	return m
}

func inbound(t *testing.T, eventType string, data interface{}) ws.Inbound {
	t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		require.NoError(t, err)
		raw = b
	}
	return ws.Inbound{Type: eventType, Data: raw}
}
