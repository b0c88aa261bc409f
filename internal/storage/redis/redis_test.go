package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"forecastbot/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreRequiresAddress(t *testing.T) {
	_, err := New(context.Background(), storage.Config{Type: "redis"})
	require.Error(t, err)
}

func TestRedisStoreUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := New(ctx, storage.Config{Address: "127.0.0.1:1"})
	require.Error(t, err)
}

// Set FORECASTBOT_TEST_REDIS=host:port to run against a live server.
func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("FORECASTBOT_TEST_REDIS")
	if addr == "" {
		t.Skip("FORECASTBOT_TEST_REDIS not set")
	}
	ctx := context.Background()
	key := fmt.Sprintf("forecastbot:test:%d", time.Now().UnixNano())

	s, err := New(ctx, storage.Config{Address: addr, Key: key})
	require.NoError(t, err)
	rs := s.(*RedisStore)
	defer func() {
		rs.client.Del(ctx, key)
		s.Close()
	}()

	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Write(ctx, []byte(`["x"]`)))
	data, err := s.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `["x"]`, string(data))
}
