package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aws-samples/sample-ai-agent-accelerator/internal/domain"
)

const defaultKeyPrefix = "chat:memory:"

// RedisOption customizes RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the prefix of every key the store writes.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.prefix = trimmed
		}
	}
}

// WithTTL expires a session's keys ttl after its last append. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// RedisStore implements Store on Redis: one list of events per session and
// one sorted set of sessions per actor, scored by creation time.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	owned  bool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore wraps an existing client. The caller keeps ownership of it.
func NewRedisStore(client redis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// NewRedisStoreFromURL dials redis at url (redis://host:port/db).
func NewRedisStoreFromURL(url string, opts ...RedisOption) (*RedisStore, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	s := NewRedisStore(redis.NewClient(options), opts...)
	s.owned = true
	return s, nil
}

func (s *RedisStore) eventsKey(key domain.MemoryKey) string {
	return s.prefix + key.MemoryID + ":" + key.ActorID + ":" + key.SessionID + ":events"
}

func (s *RedisStore) sessionsKey(memoryID, actorID string) string {
	return s.prefix + memoryID + ":" + actorID + ":sessions"
}

// Append pushes msgs onto the session list and registers the session.
func (s *RedisStore) Append(ctx context.Context, key domain.MemoryKey, msgs ...domain.Message) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		raw, err := json.Marshal(domain.MemoryEvent{
			EventID:   "evt_" + uuid.New().String(),
			Key:       key,
			Message:   msg,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		values = append(values, string(raw))
	}

	eventsKey := s.eventsKey(key)
	sessionsKey := s.sessionsKey(key.MemoryID, key.ActorID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, sessionsKey, redis.Z{Score: float64(now.UnixMilli()), Member: key.SessionID})
		pipe.RPush(ctx, eventsKey, values...)
		if s.ttl > 0 {
			pipe.Expire(ctx, eventsKey, s.ttl)
			pipe.Expire(ctx, sessionsKey, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append: %w", err)
	}
	return nil
}

// Events reads the whole session list.
func (s *RedisStore) Events(ctx context.Context, key domain.MemoryKey) ([]domain.MemoryEvent, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	raw, err := s.client.LRange(ctx, s.eventsKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	events := make([]domain.MemoryEvent, 0, len(raw))
	for i, item := range raw {
		var evt domain.MemoryEvent
		if err := json.Unmarshal([]byte(item), &evt); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, evt)
	}
	return events, nil
}

// ListSessions reads the actor's session index, newest first.
func (s *RedisStore) ListSessions(ctx context.Context, memoryID, actorID string, limit int) ([]domain.SessionSummary, error) {
	if err := validateActor(memoryID, actorID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.SessionSummary{}, nil
	}

	members, err := s.client.ZRevRangeWithScores(ctx, s.sessionsKey(memoryID, actorID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", err)
	}

	sessions := make([]domain.SessionSummary, 0, len(members))
	for _, z := range members {
		sessionID, ok := z.Member.(string)
		if !ok {
			continue
		}
		sessions = append(sessions, domain.SessionSummary{
			SessionID: sessionID,
			ActorID:   actorID,
			CreatedAt: time.UnixMilli(int64(z.Score)).UTC(),
		})
	}
	return sessions, nil
}

// Close closes the client when the store dialed it.
func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
