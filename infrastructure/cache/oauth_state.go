package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"social-publisher/domain/model"

	"github.com/redis/go-redis/v9"
)

const (
	oauthStatePrefix = "oauth:state:"
	// DefaultStateTTL bounds how long a user has to finish the consent screen.
	DefaultStateTTL = 10 * time.Minute
)

// RedisOAuthState keeps OAuth state envelopes in Redis with a TTL.
type RedisOAuthState struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisOAuthState(client *redis.Client, ttl time.Duration) *RedisOAuthState {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &RedisOAuthState{client: client, ttl: ttl}
}

func (s *RedisOAuthState) Save(ctx context.Context, state string, entry model.OAuthState) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, oauthStatePrefix+state, raw, s.ttl).Err()
}

// Consume reads and deletes the entry in one round trip so a state can only be
// used once.
func (s *RedisOAuthState) Consume(ctx context.Context, state string) (*model.OAuthState, error) {
	raw, err := s.client.GetDel(ctx, oauthStatePrefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrInvalidState
		}
		return nil, err
	}
	var out model.OAuthState
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type memoryEntry struct {
	entry     model.OAuthState
	expiresAt time.Time
}

// MemoryOAuthState is used when Redis is not configured. States do not survive
// a restart and are not shared between instances.
type MemoryOAuthState struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryOAuthState(ttl time.Duration) *MemoryOAuthState {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &MemoryOAuthState{entries: map[string]memoryEntry{}, ttl: ttl, now: time.Now}
}

func (s *MemoryOAuthState) Save(_ context.Context, state string, entry model.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[state] = memoryEntry{entry: entry, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryOAuthState) Consume(_ context.Context, state string) (*model.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[state]
	if !ok {
		return nil, model.ErrInvalidState
	}
	delete(s.entries, state)
	if s.now().After(e.expiresAt) {
		return nil, model.ErrInvalidState
	}
	out := e.entry
	return &out, nil
}
