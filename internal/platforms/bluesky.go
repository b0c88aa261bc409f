package platforms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/xrpc"
)

const DefaultBlueskyHost = "https://bsky.social"

type BlueskyPlatform struct {
	host       string
	identifier string
	password   string

	mu     sync.Mutex
	client *xrpc.Client
}

func NewBlueskyPlatform(host, identifier, password string) (*BlueskyPlatform, error) {
	if identifier == "" {
		return nil, fmt.Errorf("bluesky platform: identifier is required")
	}
	if password == "" {
		return nil, fmt.Errorf("bluesky platform: password is required (or set BLUESKY_PASSWORD)")
	}
	if host == "" {
		host = DefaultBlueskyHost
	}
	return &BlueskyPlatform{host: host, identifier: identifier, password: password}, nil
}

func (p *BlueskyPlatform) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.login(ctx)
}

func (p *BlueskyPlatform) login(ctx context.Context) error {
	client := &xrpc.Client{Host: p.host}

	auth, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: p.identifier,
		Password:   p.password,
	})
	if err != nil {
		return fmt.Errorf("failed to authenticate with bluesky: %w", err)
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  auth.AccessJwt,
		RefreshJwt: auth.RefreshJwt,
		Handle:     auth.Handle,
		Did:        auth.Did,
	}
	p.client = client
	return nil
}

// Do runs fn with an authenticated client. A call rejected for an expired or
// invalid session is retried once after a fresh login.
func (p *BlueskyPlatform) Do(ctx context.Context, fn func(c *xrpc.Client) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		if err := p.login(ctx); err != nil {
			return err
		}
	}

	err := fn(p.client)
	if err == nil || !isAuthError(err) {
		return err
	}

	slog.Debug("Bluesky call failed, re-authenticating", "error", err)
	if loginErr := p.login(ctx); loginErr != nil {
		return fmt.Errorf("%w (re-login failed: %v)", err, loginErr)
	}
	return fn(p.client)
}

func (p *BlueskyPlatform) Close(ctx context.Context) error {
	return nil
}

func isAuthError(err error) bool {
	var xe *xrpc.Error
	if !errors.As(err, &xe) {
		return false
	}
	if xe.StatusCode == 401 {
		return true
	}
	return xe.StatusCode == 400 && strings.Contains(err.Error(), "ExpiredToken")
}
