package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"forecastbot/internal/storage"
)

const defaultKey = "forecastbot:seen_ids"

func init() {
	storage.RegisterFactory("redis", New)
}

// RedisStore keeps the blob under a single key; SET replaces it atomically.
type RedisStore struct {
	client *goredis.Client
	key    string
}

func New(ctx context.Context, cfg storage.Config) (storage.BlobStore, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis storage requires an address")
	}
	key := cfg.Key
	if key == "" {
		key = defaultKey
	}

	slog.Info("Initializing Redis storage", "address", cfg.Address, "db", cfg.DB, "key", key)

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Address, err)
	}

	return &RedisStore{client: client, key: key}, nil
}

func (s *RedisStore) Name() string {
	return "redis:" + s.key
}

func (s *RedisStore) Read(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", s.key, err)
	}
	return data, nil
}

func (s *RedisStore) Write(ctx context.Context, data []byte) error {
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
