package sources

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"forecastbot/internal/lua"
	"forecastbot/internal/types"
)

//go:embed scrapers/*.lua
var embeddedScrapers embed.FS

// ScraperSource runs a Lua script's scrape(config) function. The script
// returns a list of {id = ..., code = ..., fields = {...}} tables.
type ScraperSource struct {
	name        string
	scraperName string
	scriptPath  string
	config      map[string]any
	timeout     time.Duration
	runtime     *lua.Runtime
	logger      *slog.Logger
}

func NewScraperSource(spec Spec) (*ScraperSource, error) {
	if (spec.ScraperName == "") == (spec.ScriptPath == "") {
		return nil, types.NewConfigError("source.settings", "scraper source requires exactly one of scraper or script")
	}

	cfg := make(map[string]any, len(spec.Config)+2)
	for k, v := range spec.Config {
		cfg[k] = v
	}
	if spec.URL != "" {
		cfg["url"] = spec.URL
	}
	if spec.MaxItems > 0 {
		cfg["max_items"] = spec.MaxItems
	}

	return &ScraperSource{
		name:        spec.Name,
		scraperName: spec.ScraperName,
		scriptPath:  spec.ScriptPath,
		config:      cfg,
		timeout:     spec.Timeout,
		logger:      spec.Logger,
	}, nil
}

func (s *ScraperSource) Name() string {
	return s.name
}

func (s *ScraperSource) Initialize(ctx context.Context) error {
	var loader lua.Loader
	identifier := s.scraperName
	if identifier != "" {
		loader = lua.NewFSLoader(embeddedScrapers, "scrapers")
	} else {
		loader = lua.NewFilesystemLoader(filepath.Dir(s.scriptPath))
		identifier = filepath.Base(s.scriptPath)
	}

	s.runtime = lua.NewRuntime(
		lua.WithLoader(loader),
		lua.WithSecureMode(true),
		lua.WithHTTPClient(&http.Client{Timeout: s.timeout}),
		lua.WithModules(
			lua.NewHTMLModule(),
			lua.NewLogModule(s.logger.With("source", s.name)),
		),
	)

	script, err := loader.Load(identifier)
	if err != nil {
		return err
	}
	if err := s.runtime.LoadScript(script); err != nil {
		return err
	}

	s.logger.Info("Scraper source initialized", "source", s.name, "script", identifier)
	return nil
}

func (s *ScraperSource) Fetch(ctx context.Context) ([]*types.Opportunity, error) {
	if s.runtime == nil {
		return nil, fmt.Errorf("scraper %s not initialized", s.name)
	}

	results, err := s.runtime.Call(ctx, "scrape", s.config)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || results[0] == nil {
		return []*types.Opportunity{}, nil
	}

	var list []any
	switch v := results[0].(type) {
	case []any:
		list = v
	case map[string]any:
		if len(v) != 0 {
			return nil, fmt.Errorf("expected a list of items, got a table with keys")
		}
	default:
		return nil, fmt.Errorf("expected a list of items, got %T", results[0])
	}

	now := time.Now()
	batch := make([]*types.Opportunity, 0, len(list))
	for i, entry := range list {
		m, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("item %d: expected a table, got %T", i+1, entry)
		}
		fields := lua.StringMap(m["fields"])
		if fields == nil {
			fields = map[string]string{}
		}
		fields["ID"] = lua.Stringify(m["id"])
		fields["CODE"] = lua.Stringify(m["code"])

		opp, err := newOpportunity(s.name, fields, "ID", "CODE", now)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		batch = append(batch, opp)
	}

	s.logger.Info("Scraper source fetched listings", "source", s.name, "count", len(batch))
	return batch, nil
}

func (s *ScraperSource) Shutdown(ctx context.Context) error {
	if s.runtime != nil {
		return s.runtime.Close()
	}
	return nil
}
