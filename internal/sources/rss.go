package sources

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"forecastbot/internal/types"
	"forecastbot/internal/utils"

	"github.com/mmcdole/gofeed"
)

// RSSSource reads one or more RSS/Atom feeds. Feeds are fetched concurrently
// and merged in configuration order; any failing feed fails the fetch.
type RSSSource struct {
	name      string
	feeds     []string
	maxItems  int
	codeField string
	client    *http.Client
	logger    *slog.Logger
}

func NewRSSSource(spec Spec) (*RSSSource, error) {
	feeds := spec.Feeds
	if spec.URL != "" {
		feeds = append([]string{spec.URL}, feeds...)
	}
	if len(feeds) == 0 {
		return nil, types.NewConfigError("source.url", "rss source requires a url or feeds")
	}
	codeField := spec.CodeField
	if codeField == "" {
		codeField = "CATEGORY"
	}
	return &RSSSource{
		name:      spec.Name,
		feeds:     feeds,
		maxItems:  spec.MaxItems,
		codeField: codeField,
		client:    &http.Client{Timeout: spec.Timeout},
		logger:    spec.Logger,
	}, nil
}

func (r *RSSSource) Name() string {
	return r.name
}

func (r *RSSSource) Initialize(ctx context.Context) error {
	r.logger.Info("RSS source initializing", "source", r.name, "feeds", len(r.feeds), "max_items", r.maxItems)
	return nil
}

func (r *RSSSource) Fetch(ctx context.Context) ([]*types.Opportunity, error) {
	results := make([][]*types.Opportunity, len(r.feeds))
	errs := make([]error, len(r.feeds))

	var wg sync.WaitGroup
	for i, feedURL := range r.feeds {
		wg.Add(1)
		go func(i int, feedURL string) {
			defer wg.Done()
			results[i], errs[i] = r.fetchFeed(ctx, feedURL)
		}(i, feedURL)
	}
	wg.Wait()

	var batch []*types.Opportunity
	for i := range r.feeds {
		if errs[i] != nil {
			return nil, fmt.Errorf("feed %s: %w", r.feeds[i], errs[i])
		}
		batch = append(batch, results[i]...)
	}

	r.logger.Info("RSS source fetched listings", "source", r.name, "count", len(batch))
	return batch, nil
}

func (r *RSSSource) fetchFeed(ctx context.Context, feedURL string) ([]*types.Opportunity, error) {
	parser := gofeed.NewParser()
	parser.Client = r.client
	parser.UserAgent = userAgent

	feed, err := parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	items := feed.Items
	if r.maxItems > 0 && len(items) > r.maxItems {
		items = items[:r.maxItems]
	}

	now := time.Now()
	out := make([]*types.Opportunity, 0, len(items))
	for _, item := range items {
		opp, err := r.convert(item, now)
		if err != nil {
			return nil, err
		}
		out = append(out, opp)
	}
	return out, nil
}

func (r *RSSSource) convert(item *gofeed.Item, now time.Time) (*types.Opportunity, error) {
	id := item.GUID
	if id == "" {
		id = item.Link
	}
	if id == "" {
		return nil, fmt.Errorf("item %q has neither guid nor link", item.Title)
	}

	description := item.Description
	if description == "" {
		description = item.Content
	}

	fields := map[string]string{
		"ID":          id,
		"TITLE":       item.Title,
		"LINK":        item.Link,
		"DESCRIPTION": utils.StripHTML(description),
		"PUBLISHED":   item.Published,
	}
	if len(item.Categories) > 0 {
		fields["CATEGORY"] = item.Categories[0]
		fields["CATEGORIES"] = strings.Join(item.Categories, ", ")
	}
	if item.Author != nil {
		fields["AUTHOR"] = item.Author.Name
	}

	return newOpportunity(r.name, fields, "ID", r.codeField, now)
}

func (r *RSSSource) Shutdown(ctx context.Context) error {
	r.client.CloseIdleConnections()
	return nil
}
