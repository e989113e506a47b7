package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "ptime:presence:"

type RedisStore struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewRedisStore(client *redis.Client, logger zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, log: logger}
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID + ":members"
}

func participantKey(sessionID, participantID string) string {
	return keyPrefix + sessionID + ":" + participantID
}

func (s *RedisStore) Set(ctx context.Context, sessionID string, entry Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, sessionKey(sessionID), entry.ParticipantID)
	// The member set outlives individual entries so late expirations can
	// still be pruned by List.
	pipe.Expire(ctx, sessionKey(sessionID), 2*ttl)
	pipe.Set(ctx, participantKey(sessionID, entry.ParticipantID), data, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Refresh(ctx context.Context, sessionID, participantID string, ttl time.Duration) error {
	key := participantKey(sessionID, participantID)
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return ErrNoEntry
	}
	if err != nil {
		return err
	}
	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return err
	}
	entry.LastSeen = time.Now().UTC()
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.Expire(ctx, sessionKey(sessionID), 2*ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Remove(ctx context.Context, sessionID, participantID string) error {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, sessionKey(sessionID), participantID)
	pipe.Del(ctx, participantKey(sessionID, participantID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) List(ctx context.Context, sessionID string) ([]Entry, error) {
	ids, err := s.client.SMembers(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = participantKey(sessionID, id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(ids))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Entry TTL elapsed; drop the dangling set member.
			stale = append(stale, ids[i])
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID).Msg("presence: corrupt entry dropped")
			stale = append(stale, ids[i])
			continue
		}
		entries = append(entries, entry)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, sessionKey(sessionID), stale...).Err(); err != nil {
			s.log.Warn().Err(err).Str("session_id", sessionID).Msg("presence: prune failed")
		}
	}
	return entries, nil
}

func (s *RedisStore) Count(ctx context.Context, sessionID string) (int, error) {
	entries, err := s.List(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
