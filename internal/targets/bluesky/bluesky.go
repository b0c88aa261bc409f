// Package bluesky posts opportunity announcements to a Bluesky account.
package bluesky

import (
	"context"
	"fmt"
	"time"

	"forecastbot/internal/platforms"
	"forecastbot/internal/types"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

type Target struct {
	name      string
	platform  *platforms.BlueskyPlatform
	languages []string
}

func New(name string, platform *platforms.BlueskyPlatform, languages []string) (*Target, error) {
	if platform == nil {
		return nil, fmt.Errorf("bluesky target %s: platform is required", name)
	}
	if len(languages) == 0 {
		languages = []string{"en"}
	}
	return &Target{name: name, platform: platform, languages: languages}, nil
}

func (t *Target) Name() string {
	return t.name
}

func (t *Target) Notify(ctx context.Context, msg *types.Message) (*types.DeliveryResult, error) {
	post := FromMessage(msg)
	record := BuildPost(post.Into(), post.Embed, t.languages, time.Now())

	var resp *atproto.RepoCreateRecord_Output
	err := t.platform.Do(ctx, func(c *xrpc.Client) error {
		var err error
		resp, err = atproto.RepoCreateRecord(ctx, c, &atproto.RepoCreateRecord_Input{
			Collection: "app.bsky.feed.post",
			Repo:       c.Auth.Did,
			Record:     &util.LexiconTypeDecoder{Val: record},
		})
		return err
	})

	if err != nil {
		err = fmt.Errorf("bluesky create record: %w", err)
		return &types.DeliveryResult{
			Success:   false,
			Target:    t.name,
			ItemID:    msg.OpportunityID,
			Timestamp: time.Now(),
			Error:     err,
		}, err
	}

	return &types.DeliveryResult{
		Success:   true,
		Target:    t.name,
		ItemID:    msg.OpportunityID,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"uri": resp.Uri,
			"cid": resp.Cid,
		},
	}, nil
}
