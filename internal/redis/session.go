package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/grus-gras/internal/config"
	"github.com/grus-gras/internal/session"
	"github.com/redis/go-redis/v9"
)

// ChangesChannel is the pub/sub channel carrying session changes between
// server instances
const ChangesChannel = "grus:session-changes"

// SessionStore persists session values in Redis and fans out changes over
// pub/sub. It implements session.Store, session.Notifier and
// session.Subscriber.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewSessionStore connects to Redis and returns a session store
func NewSessionStore(cfg *config.RedisConfig, ttl time.Duration, logger *slog.Logger) (*SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewSessionStoreWithClient(client, ttl, logger), nil
}

// NewSessionStoreWithClient wraps an existing client
func NewSessionStoreWithClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Close closes the Redis connection
func (s *SessionStore) Close() error {
	return s.client.Close()
}

// Client returns the underlying Redis client
func (s *SessionStore) Client() *redis.Client {
	return s.client
}

// valueKey returns the Redis key for one session value
func (s *SessionStore) valueKey(sessionID, key string) string {
	return fmt.Sprintf("grus:session:%s:%s", sessionID, key)
}

// Get returns a session value, or session.ErrNotFound
func (s *SessionStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	v, err := s.client.Get(ctx, s.valueKey(sessionID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", session.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting session value: %w", err)
	}
	return v, nil
}

// Set stores a session value and refreshes its expiry
func (s *SessionStore) Set(ctx context.Context, sessionID, key, value string) error {
	if err := s.client.Set(ctx, s.valueKey(sessionID, key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("setting session value: %w", err)
	}
	return nil
}

// Delete removes a session value
func (s *SessionStore) Delete(ctx context.Context, sessionID, key string) error {
	if err := s.client.Del(ctx, s.valueKey(sessionID, key)).Err(); err != nil {
		return fmt.Errorf("deleting session value: %w", err)
	}
	return nil
}

// Touch extends the expiry of every known value of a session
func (s *SessionStore) Touch(ctx context.Context, sessionID string) error {
	if s.ttl <= 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, key := range []string{session.KeyCurrentUser, session.KeySelectedArea, session.KeyFavoriteAreas} {
		pipe.Expire(ctx, s.valueKey(sessionID, key), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return nil
}

// Publish announces a change to every subscribed server
func (s *SessionStore) Publish(ctx context.Context, change session.Change) error {
	data, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encoding session change: %w", err)
	}
	if err := s.client.Publish(ctx, ChangesChannel, data).Err(); err != nil {
		return fmt.Errorf("publishing session change: %w", err)
	}
	return nil
}

// Subscribe delivers changes to fn until ctx is done. It returns once the
// subscription is torn down.
func (s *SessionStore) Subscribe(ctx context.Context, fn func(session.Change)) error {
	pubsub := s.client.Subscribe(ctx, ChangesChannel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribing to session changes: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var change session.Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				s.logger.Warn("discarding malformed session change", "error", err)
				continue
			}
			fn(change)
		}
	}
}
