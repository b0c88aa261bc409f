// Package sources fetches raw opportunity listings. Every source returns the
// whole listing or an error; partial results are never returned.
package sources

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"forecastbot/internal/types"
	"forecastbot/internal/utils/hash"
)

const (
	TypeAPFS      = "apfs"
	TypeHTMLTable = "html_table"
	TypeRSS       = "rss"
	TypeScraper   = "scraper"

	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 64 << 20
	userAgent      = "Mozilla/5.0 (compatible; forecastbot/1)"
)

// Spec carries the settings of every source type; each type reads its own.
type Spec struct {
	Type    string
	Name    string
	URL     string
	Timeout time.Duration
	Logger  *slog.Logger

	IDField   string
	CodeField string

	Selector string

	Feeds    []string
	MaxItems int

	ScraperName string
	ScriptPath  string
	Config      map[string]any
}

func New(spec Spec) (types.Source, error) {
	if spec.Name == "" {
		spec.Name = spec.Type
	}
	if spec.Timeout <= 0 {
		spec.Timeout = defaultTimeout
	}
	if spec.Logger == nil {
		spec.Logger = slog.Default()
	}

	switch spec.Type {
	case TypeAPFS:
		return NewAPFSSource(spec)
	case TypeHTMLTable:
		return NewHTMLTableSource(spec)
	case TypeRSS:
		return NewRSSSource(spec)
	case TypeScraper:
		return NewScraperSource(spec)
	default:
		return nil, types.NewConfigError("source.type", fmt.Sprintf("unknown source type %q", spec.Type))
	}
}

func fetchBody(ctx context.Context, client *http.Client, url, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// newOpportunity upper-cases field keys and derives the identifier from
// idField, falling back to a content hash when idField is empty.
func newOpportunity(source string, fields map[string]string, idField, codeField string, fetchedAt time.Time) (*types.Opportunity, error) {
	opp := &types.Opportunity{
		Source:    source,
		Fields:    make(map[string]string, len(fields)),
		FetchedAt: fetchedAt,
	}
	for k, v := range fields {
		opp.SetField(k, strings.TrimSpace(v))
	}

	if idField == "" {
		opp.ID = hash.FromFields(opp.Fields).ComputeHash()
	} else {
		opp.ID = opp.Field(idField)
		if opp.ID == "" {
			return nil, fmt.Errorf("record has no %s value", strings.ToUpper(idField))
		}
	}
	opp.TargetCode = opp.Field(codeField)
	return opp, nil
}
