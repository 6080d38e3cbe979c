package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNoObservation is returned when a source has nothing published yet.
var ErrNoObservation = errors.New("no observation published")

// RedisSource reads observations published under a redis key.
type RedisSource struct {
	client redis.UniversalClient
	key    string
}

func NewRedisSource(client redis.UniversalClient, key string) (*RedisSource, error) {
	if key == "" {
		return nil, fmt.Errorf("redis key is required")
	}
	return &RedisSource{client: client, key: key}, nil
}

func (s *RedisSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis %s: %w", s.key, ErrNoObservation)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	return data, nil
}

// Publish stores an observation for readers of key.
func Publish(ctx context.Context, client redis.UniversalClient, key string, observation []byte) error {
	if err := client.Set(ctx, key, observation, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
