package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrUnauthenticated indicates the presented token does not resolve to a
// live actor.
var ErrUnauthenticated = errors.New("identity: unauthenticated")

// SessionStore keeps bearer tokens in Redis. Tokens are opaque and expire
// after the configured TTL; both the HTTP layer and the realtime broker
// resolve credentials through it.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// Issue creates a new token for the actor.
func (s *SessionStore) Issue(ctx context.Context, actorID int64) (string, error) {
	token, err := generateToken()
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.key(token), strconv.FormatInt(actorID, 10), s.ttl).Err(); err != nil {
		return "", fmt.Errorf("identity: store session: %w", err)
	}
	return token, nil
}

// Resolve maps a token back to an actor id, refreshing the TTL.
func (s *SessionStore) Resolve(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrUnauthenticated
	}
	val, err := s.client.Get(ctx, s.key(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrUnauthenticated
		}
		return 0, fmt.Errorf("identity: load session: %w", err)
	}
	actorID, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, ErrUnauthenticated
	}
	_ = s.client.Expire(ctx, s.key(token), s.ttl).Err()
	return actorID, nil
}

// Revoke deletes a token.
func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.key(token)).Err()
}

func (s *SessionStore) key(token string) string {
	return "session:" + token
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
