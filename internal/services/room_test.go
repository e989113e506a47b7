package services

import (
	"context"
	"testing"
	"time"

	"github.com/warpfence/ptime/internal/models"
	"github.com/warpfence/ptime/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinAcksCallerAndAnnouncesToRoom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.newConn()
	env.join(t, a, "s1", "p-a", "alice")

	events := drain(t, a)
	require.Equal(t, []string{ws.EventSessionJoined, ws.EventParticipantCountUpdated}, eventTypes(events))
	joined := payload(t, events[0])
	assert.Equal(t, "s1", joined["session_id"])
	assert.Equal(t, "p-a", joined["participant_id"])
	count := payload(t, events[1])
	assert.EqualValues(t, 1, count["online_count"])

	b := env.newConn()
	env.join(t, b, "s1", "p-b", "bob")

	aEvents := drain(t, a)
	require.Equal(t, []string{ws.EventParticipantJoined, ws.EventParticipantCountUpdated}, eventTypes(aEvents))
	assert.Equal(t, "bob", payload(t, aEvents[0])["nickname"])
	assert.EqualValues(t, 2, payload(t, aEvents[1])["online_count"])

	bEvents := drain(t, b)
	require.Equal(t, []string{ws.EventSessionJoined, ws.EventParticipantCountUpdated}, eventTypes(bEvents))
	assert.EqualValues(t, 2, payload(t, bEvents[1])["online_count"])

	n, err := env.store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestJoinValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.rooms.Join(ctx, env.newConn(), "s1", "", "alice")
	assert.ErrorIs(t, err, ErrValidation)

	err = env.rooms.Join(ctx, env.newConn(), "nope", "p1", "alice")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	err = env.rooms.Join(ctx, env.newConn(), "s-ended", "p1", "alice")
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestLeaveAnnouncesAndKeepsSocketUsable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.newConn()
	b := env.newConn()
	env.join(t, a, "s1", "p-a", "alice")
	env.join(t, b, "s1", "p-b", "bob")
	drain(t, a)
	drain(t, b)

	require.NoError(t, env.rooms.Leave(ctx, b))

	assert.Empty(t, drain(t, b), "leaver is unregistered before the announcements")

	events := drain(t, a)
	require.Equal(t, []string{ws.EventParticipantLeft, ws.EventParticipantCountUpdated}, eventTypes(events))
	assert.Equal(t, "bob", payload(t, events[0])["nickname"])
	assert.EqualValues(t, 1, payload(t, events[1])["online_count"])

	n, err := env.store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The socket survives an explicit leave; without a join it has no room.
	assert.False(t, b.Closed())
	assert.ErrorIs(t, env.rooms.Leave(ctx, b), ErrNotInSession)
}

func TestDisconnectBehavesLikeLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.newConn()
	b := env.newConn()
	env.join(t, a, "s1", "p-a", "alice")
	env.join(t, b, "s1", "p-b", "bob")
	drain(t, a)

	env.rooms.Disconnect(ctx, b)

	events := drain(t, a)
	require.Equal(t, []string{ws.EventParticipantLeft, ws.EventParticipantCountUpdated}, eventTypes(events))
	assert.EqualValues(t, 1, payload(t, events[1])["online_count"])
}

func TestReconnectOverlapSupersedesOldConn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.newConn()
	b := env.newConn()
	env.join(t, a, "s1", "p-a", "alice")
	env.join(t, b, "s1", "p-b", "bob")
	drain(t, a)
	drain(t, b)

	// Same participant joins on a fresh conn while the old one lingers.
	b2 := env.newConn()
	env.join(t, b2, "s1", "p-b", "bob")
	assert.True(t, b.Closed(), "superseded conn is closed")

	aEvents := drain(t, a)
	require.Equal(t, []string{ws.EventParticipantJoined, ws.EventParticipantCountUpdated}, eventTypes(aEvents))
	assert.EqualValues(t, 2, payload(t, aEvents[1])["online_count"], "rejoin does not inflate the count")

	// The stale conn's death must not evict the participant.
	env.rooms.Disconnect(ctx, b)
	assert.Empty(t, drain(t, a))

	n, err := env.store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLeaveOnSupersededConnKeepsParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.newConn()
	old := env.newConn()
	env.join(t, a, "s1", "p-a", "alice")
	env.join(t, old, "s1", "p-b", "bob")

	// bob reconnects; the old conn lingers with its identity still set.
	fresh := env.newConn()
	env.join(t, fresh, "s1", "p-b", "bob")
	drain(t, a)

	require.NoError(t, env.rooms.Leave(ctx, old))

	n, err := env.store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "live participant's presence survives a stale leave")
	assert.Contains(t, env.rooms.RosterIDs("s1"), "p-b")
	assert.Empty(t, drain(t, a), "no departure is announced")
	assert.False(t, fresh.Closed())
}

func TestExpireIsExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.newConn()
	b := env.newConn()
	env.join(t, a, "s1", "p-a", "alice")
	env.join(t, b, "s1", "p-b", "bob")
	drain(t, a)

	// Lapse bob's TTL while alice keeps refreshing.
	env.clock.Advance(testTTL - time.Second)
	require.NoError(t, env.store.Refresh(ctx, "s1", "p-a", testTTL))
	env.clock.Advance(2 * time.Second)

	assert.True(t, env.rooms.Expire(ctx, "s1", "p-b"))
	assert.False(t, env.rooms.Expire(ctx, "s1", "p-b"), "second expire is a no-op")
	assert.True(t, b.Closed())

	events := drain(t, a)
	require.Equal(t, []string{ws.EventParticipantLeft, ws.EventParticipantCountUpdated}, eventTypes(events))
	assert.EqualValues(t, 1, payload(t, events[1])["online_count"])
}

func TestExpireRefusesLiveParticipant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.newConn()
	b := env.newConn()
	env.join(t, a, "s1", "p-a", "alice")
	env.join(t, b, "s1", "p-b", "bob")
	drain(t, a)

	assert.False(t, env.rooms.Expire(ctx, "s1", "p-b"), "an unexpired entry must not be evicted")
	assert.False(t, b.Closed())
	assert.Empty(t, drain(t, a))
	assert.Contains(t, env.rooms.RosterIDs("s1"), "p-b")
}

func TestCountAlwaysMatchesPresenceStore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	observer := env.newConn()
	env.join(t, observer, "s1", "p-obs", "watcher")
	drain(t, observer)

	conns := make([]*ws.Conn, 0, 5)
	for i := 0; i < 5; i++ {
		c := env.newConn()
		env.join(t, c, "s1", string(rune('a'+i)), "guest")
		conns = append(conns, c)
	}
	env.rooms.Disconnect(ctx, conns[0])
	require.NoError(t, env.rooms.Leave(ctx, conns[1]))
	env.rooms.Expire(ctx, "s1", string(rune('a'+2)))

	// Every count broadcast must equal the store's live cardinality at the
	// time it was emitted; the final one reflects the final store state.
	var lastCount float64
	for _, evt := range drain(t, observer) {
		if evt.Type == ws.EventParticipantCountUpdated {
			lastCount = payload(t, evt)["online_count"].(float64)
		}
	}
	n, err := env.store.Count(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, n, lastCount)
}

func TestJoinPersistsParticipantRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.newConn()
	env.join(t, a, "s1", "p-a", "alice")

	var record models.Participant
	require.NoError(t, env.db.First(&record, "id = ?", "p-a").Error)
	assert.Equal(t, "s1", record.SessionID)
	assert.Equal(t, "alice", record.Nickname)

	// Rejoin under a new nickname updates the row instead of duplicating it.
	b := env.newConn()
	env.join(t, b, "s1", "p-a", "alice2")

	var count int64
	require.NoError(t, env.db.Model(&models.Participant{}).Where("id = ?", "p-a").Count(&count).Error)
	assert.EqualValues(t, 1, count)
	require.NoError(t, env.db.First(&record, "id = ?", "p-a").Error)
	assert.Equal(t, "alice2", record.Nickname)

	// Leaving stamps last_seen but keeps the record.
	require.NoError(t, env.rooms.Leave(ctx, b))
	require.NoError(t, env.db.First(&record, "id = ?", "p-a").Error)
	assert.True(t, record.LastSeen.After(record.JoinedAt) || record.LastSeen.Equal(record.JoinedAt))
}

func TestSnapshotSortedByJoinTime(t *testing.T) {
	env := newTestEnv(t)

	a := env.newConn()
	env.join(t, a, "s1", "p-a", "alice")
	b := env.newConn()
	env.join(t, b, "s1", "p-b", "bob")

	snapshot, err := env.rooms.Snapshot(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, snapshot.Participants, 2)
	assert.Equal(t, 2, snapshot.TotalCount)
	assert.Equal(t, 2, snapshot.OnlineCount)
	assert.False(t, snapshot.Participants[1].JoinedAt.Before(snapshot.Participants[0].JoinedAt))
}
