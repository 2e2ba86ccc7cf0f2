package blob

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/aristath/foresight/internal/domain"
)

var _ domain.BlobStore = (*RedisStore)(nil)

// RedisStore keeps artifacts as plain redis values without expiry
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore creates a redis-backed blob store. prefix may be empty.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, domain.Unavailable("blob get "+key, err)
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return domain.Unavailable("blob set "+key, err)
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, domain.Unavailable("blob exists "+key, err)
	}
	return n > 0, nil
}
