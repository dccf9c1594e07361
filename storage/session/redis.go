// Package sessionstore keeps auth.Session values server side, keyed by the session cookie.
package sessionstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
)

// RedisStore stores sessions as JSON with a sliding TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ auth.SessionStore = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: "cs61as:session:", ttl: ttl}
}

// NewRedisClient opens a client from the redis config and checks the connection.
func NewRedisClient(ctx context.Context, conf core.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "pinging redis")
	}
	return client, nil
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (*auth.Session, error) {
	if id == "" {
		return nil, auth.ErrSessionNotFound
	}
	data, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrSessionNotFound
		}
		return nil, errors.Wrap(err, "redis get")
	}

	var sess auth.Session
	if err = json.Unmarshal(data, &sess); err != nil {
		return nil, errors.Wrap(err, "unmarshalling session")
	}
	return &sess, nil
}

func (s *RedisStore) SaveSession(ctx context.Context, sess *auth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "marshalling session")
	}
	return errors.Wrap(s.client.Set(ctx, s.prefix+sess.ID, data, s.ttl).Err(), "redis set")
}

func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return errors.Wrap(s.client.Del(ctx, s.prefix+id).Err(), "redis del")
}
