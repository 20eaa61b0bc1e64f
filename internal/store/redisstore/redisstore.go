package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suPer8Hu/research-chat/internal/store"
)

const keyPrefix = "research:blob:"

// redisAPI is the subset of redis.Cmdable the store uses.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

type Store struct {
	api    redisAPI
	closer func() error
}

// New dials Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", addr, err)
	}
	return &Store{api: rdb, closer: rdb.Close}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(api redisAPI) (*Store, error) {
	if api == nil {
		return nil, errors.New("redisstore: client must not be nil")
	}
	return &Store{api: api}, nil
}

func blobKey(key string) string {
	return keyPrefix + strings.TrimSpace(key)
}

func (s *Store) Save(ctx context.Context, key string, data []byte) error {
	if err := s.api.Set(ctx, blobKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, key string) ([]byte, error) {
	b, err := s.api.Get(ctx, blobKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("redisstore: get %q: %w", key, err)
	}
	return b, nil
}

func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
