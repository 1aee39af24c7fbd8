// ABOUTME: Redis-backed session store so conversation history survives restarts
// ABOUTME: Sessions are JSON values under a key prefix with a sliding TTL

package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces session keys.
const DefaultRedisPrefix = "algosensei:session:"

// maxTxRetries bounds optimistic-lock retries in Append.
const maxTxRetries = 5

// RedisOptions configures NewRedisSessionStore.
type RedisOptions struct {
	Addr       string
	Password   string
	DB         int
	Prefix     string
	TTL        time.Duration
	MaxHistory int
}

// RedisSessionStore keeps sessions in redis.
type RedisSessionStore struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	maxHistory int
	now        func() time.Time
}

// NewRedisSessionStore connects to redis and verifies it with PING.
func NewRedisSessionStore(ctx context.Context, opts RedisOptions) (*RedisSessionStore, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	return &RedisSessionStore{
		client:     client,
		prefix:     prefix,
		ttl:        opts.TTL,
		maxHistory: opts.MaxHistory,
		now:        time.Now,
	}, nil
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + id
}

// CreateOrGet sets an empty session with SETNX, falling back to a read when
// another writer got there first.
func (s *RedisSessionStore) CreateOrGet(ctx context.Context, key string) (*Session, bool, error) {
	k := s.key(key)

	for attempt := 0; attempt < 2; attempt++ {
		now := s.now().UTC()
		fresh := &Session{Key: key, CreatedAt: now, UpdatedAt: now}
		data, err := json.Marshal(fresh)
		if err != nil {
			return nil, false, err
		}

		ok, err := s.client.SetNX(ctx, k, data, s.ttl).Result()
		if err != nil {
			return nil, false, fmt.Errorf("creating session: %w", err)
		}
		if ok {
			return fresh, true, nil
		}

		sess, err := s.read(ctx, s.client.Get, k)
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET.
			continue
		}
		if err != nil {
			return nil, false, err
		}

		if s.ttl > 0 {
			if err := s.client.Expire(ctx, k, s.ttl).Err(); err != nil {
				return nil, false, fmt.Errorf("refreshing session ttl: %w", err)
			}
		}
		return sess, false, nil
	}

	return nil, false, fmt.Errorf("session %q kept expiring during lookup", key)
}

// Append adds msgs under WATCH so concurrent writers never drop turns.
func (s *RedisSessionStore) Append(ctx context.Context, key string, msgs ...Message) error {
	k := s.key(key)

	txf := func(tx *redis.Tx) error {
		sess, err := s.read(ctx, tx.Get, k)
		if errors.Is(err, redis.Nil) {
			sess = &Session{Key: key, CreatedAt: s.now().UTC()}
		} else if err != nil {
			return err
		}

		sess.Messages = trimHistory(append(sess.Messages, msgs...), s.maxHistory)
		sess.UpdatedAt = s.now().UTC()

		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("appending to session: %w", err)
		}
		return nil
	}
	return fmt.Errorf("appending to session %q: too much contention", key)
}

func (s *RedisSessionStore) read(ctx context.Context, get func(context.Context, string) *redis.StringCmd, k string) (*Session, error) {
	raw, err := get(ctx, k).Bytes()
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &sess, nil
}

// Ping checks the redis connection.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

var _ SessionStore = (*RedisSessionStore)(nil)
