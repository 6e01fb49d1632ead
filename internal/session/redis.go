package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"calobot.app/bot/internal/model"
)

type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore returns a Store backed by redis. Sessions are JSON-encoded
// under prefix:userID. A zero ttl stores sessions without expiry; expiry is a
// store configuration concern, the collector never relies on it.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) Store {
	if prefix == "" {
		prefix = "session"
	}
	return &redisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *redisStore) key(userID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, userID)
}

func (s *redisStore) Get(ctx context.Context, userID string) (*model.Session, error) {
	data, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching session: %w", err)
	}

	var sess model.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}

func (s *redisStore) Put(ctx context.Context, sess *model.Session) error {
	sess.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(sess.UserID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}
