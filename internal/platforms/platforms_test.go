package platforms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bluesky-social/indigo/xrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDiscordPlatformRequiresToken(t *testing.T) {
	_, err := NewDiscordPlatform("", 0, 0)
	require.Error(t, err)

	p, err := NewDiscordPlatform("token", 0, 2)
	require.NoError(t, err)

	require.NoError(t, p.Initialize(context.Background()))
	require.NotNil(t, p.Session())
	assert.Equal(t, "Bot token", p.Session().Token)
	assert.Equal(t, 15*time.Second, p.Session().Client.Timeout)
	assert.Equal(t, 2, p.Session().MaxRestRetries)
	assert.False(t, p.Session().ShouldRetryOnRateLimit)

	require.NoError(t, p.Close(context.Background()))
	assert.Nil(t, p.Session())
}

func TestNewBlueskyPlatformValidates(t *testing.T) {
	_, err := NewBlueskyPlatform("", "", "pw")
	require.Error(t, err)
	_, err = NewBlueskyPlatform("", "me.bsky.social", "")
	require.Error(t, err)

	p, err := NewBlueskyPlatform("", "me.bsky.social", "pw")
	require.NoError(t, err)
	assert.Equal(t, DefaultBlueskyHost, p.host)
}

func sessionServer(t *testing.T, logins *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xrpc/com.atproto.server.createSession", r.URL.Path)
		n := logins.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"accessJwt":  fmt.Sprintf("access-%d", n),
			"refreshJwt": "refresh",
			"handle":     "me.bsky.social",
			"did":        "did:plc:test",
		})
	}))
}

func TestBlueskyDoRetriesOnceOnAuthError(t *testing.T) {
	var logins atomic.Int32
	srv := sessionServer(t, &logins)
	defer srv.Close()

	p, err := NewBlueskyPlatform(srv.URL, "me.bsky.social", "pw")
	require.NoError(t, err)

	calls := 0
	err = p.Do(context.Background(), func(c *xrpc.Client) error {
		calls++
		if calls == 1 {
			return &xrpc.Error{StatusCode: 401, Wrapped: errors.New("expired")}
		}
		assert.Equal(t, "did:plc:test", c.Auth.Did)
		assert.Equal(t, "access-2", c.Auth.AccessJwt)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int32(2), logins.Load())
}

func TestBlueskyDoDoesNotRetryOtherErrors(t *testing.T) {
	var logins atomic.Int32
	srv := sessionServer(t, &logins)
	defer srv.Close()

	p, err := NewBlueskyPlatform(srv.URL, "me.bsky.social", "pw")
	require.NoError(t, err)

	calls := 0
	err = p.Do(context.Background(), func(c *xrpc.Client) error {
		calls++
		return errors.New("record invalid")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int32(1), logins.Load())
}
