package detect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "cogniguard:conv:"

// RedisStore persists conversations in Redis so multiple nodes can share
// tracker state. Per-conversation serialization uses process-local keyed
// mutexes, reference-counted and reaped once the last holder releases, so
// the lock table tracks in-flight updates rather than every conversation id
// ever seen. Route a conversation to one node at a time for cross-node
// exclusivity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	locks map[string]*convLock
}

type convLock struct {
	mu   sync.Mutex
	refs int
}

// NewRedisStore connects and verifies the server is reachable.
func NewRedisStore(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		locks:  make(map[string]*convLock),
	}, nil
}

// acquire takes the per-conversation lock, registering as a holder before
// blocking so release cannot reap an entry that still has waiters.
func (s *RedisStore) acquire(id string) *convLock {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &convLock{}
		s.locks[id] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return l
}

func (s *RedisStore) release(id string, l *convLock) {
	l.mu.Unlock()
	s.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, id)
	}
	s.mu.Unlock()
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*Conversation) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.acquire(id)
	defer s.release(id, l)

	conv, _, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if conv == nil {
		conv = newConversation(id)
	}

	if err := fn(conv); err != nil {
		return err
	}
	conv.UpdatedAt = time.Now()

	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("marshal conversation %s: %w", id, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store conversation %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Conversation, bool, error) {
	conv, found, err := s.load(ctx, id)
	if err != nil || !found {
		return nil, false, err
	}
	return conv, true, nil
}

func (s *RedisStore) load(ctx context.Context, id string) (*Conversation, bool, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load conversation %s: %w", id, err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, false, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	if conv.Participants == nil {
		conv.Participants = make(map[string]bool)
	}
	if conv.AgentTrends == nil {
		conv.AgentTrends = make(map[string]map[Category]int)
	}
	return &conv, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) Close() {
	s.client.Close()
}
