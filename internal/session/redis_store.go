package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
	}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) Create(ctx context.Context, s Session) error {
	if s.SessionID == "" || s.AccountID == "" {
		return fmt.Errorf("session: missing session_id or account_id")
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session: expires_at must be in the future")
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	return r.client.Set(ctx, r.key(s.SessionID), data, ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil // not found
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}

	return &s, nil
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, r.key(sessionID)).Err()
}

func (r *RedisStore) Update(ctx context.Context, s Session) error {
	if s.SessionID == "" {
		return fmt.Errorf("session: missing session_id")
	}

	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		// Expired sessions are deleted, never extended.
		return r.client.Del(ctx, r.key(s.SessionID)).Err()
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	return r.client.Set(ctx, r.key(s.SessionID), data, ttl).Err()
}

// RedisPendingStore keeps pending signups under "signup:" with a TTL.
type RedisPendingStore struct {
	client *redis.Client
	prefix string
}

func NewRedisPendingStore(client *redis.Client) *RedisPendingStore {
	return &RedisPendingStore{
		client: client,
		prefix: "signup:",
	}
}

func (r *RedisPendingStore) Put(ctx context.Context, p PendingSignup) error {
	if p.ID == "" {
		return fmt.Errorf("session: missing pending signup id")
	}
	if err := p.Extra.Validate(); err != nil {
		return err
	}

	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session: expires_at must be in the future")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("session: failed to marshal pending signup: %w", err)
	}

	return r.client.Set(ctx, r.prefix+p.ID, data, ttl).Err()
}

func (r *RedisPendingStore) Take(ctx context.Context, id string) (*PendingSignup, error) {
	val, err := r.client.GetDel(ctx, r.prefix+id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPendingNotFound
	}
	if err != nil {
		return nil, err
	}

	var p PendingSignup
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal pending signup: %w", err)
	}
	return &p, nil
}
