package config

import (
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"forecastbot/internal/archive"
	"forecastbot/internal/components"
	"forecastbot/internal/core"
	"forecastbot/internal/dispatch"
	"forecastbot/internal/identity"
	"forecastbot/internal/metrics"
	"forecastbot/internal/processors"
	"forecastbot/internal/server"
	"forecastbot/internal/sources"
	"forecastbot/internal/storage"
	"forecastbot/internal/targets"
	"forecastbot/internal/types"
	"forecastbot/internal/utils"

	_ "forecastbot/internal/storage/file"
	_ "forecastbot/internal/storage/redis"
	_ "forecastbot/internal/storage/sqlite"
)

type Loader struct {
	config       *Config
	logger       *slog.Logger
	registry     *components.Registry
	storageComp  *components.StorageComponent
	platformComp *components.PlatformComponent
	metrics      *metrics.Metrics
}

func NewLoader(cfg *Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		config:   cfg,
		logger:   logger,
		registry: components.NewRegistry(logger),
	}
}

// Initialize opens every component and returns a bot ready to Start.
func (l *Loader) Initialize(ctx context.Context) (*core.Bot, error) {
	if err := l.initializeComponents(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	orch, err := l.buildOrchestrator()
	if err != nil {
		_ = l.registry.CloseAll(ctx)
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	shutdownFn := func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return l.Shutdown(shutdownCtx)
	}

	bot := core.NewBot(core.BotConfig{
		Name:       l.config.Bot.Name,
		Runner:     orch,
		Interval:   l.config.Bot.IntervalDuration(),
		RunOnce:    l.config.Bot.RunOnce,
		Logger:     l.logger,
		ShutdownFn: shutdownFn,
	})

	if l.config.Metrics.Listen != "" && !l.config.Bot.RunOnce {
		srv := server.New(l.config.Bot.Name, l.config.Metrics.Listen, l.metrics.Registry(), statusOf(bot), l.logger)
		if err := l.registry.Register(components.NewServerComponent(srv)); err != nil {
			return nil, err
		}
		if err := l.registry.InitializeAll(ctx); err != nil {
			_ = l.registry.CloseAll(ctx)
			return nil, fmt.Errorf("failed to start status server: %w", err)
		}
	}

	return bot, nil
}

func (l *Loader) initializeComponents(ctx context.Context) error {
	l.logger.Info("Initializing components", "state", l.config.State.Type, "channel", l.config.Channel.Type)

	l.storageComp = components.NewStorageComponent(storage.Config{
		Type:     l.config.State.Type,
		Path:     l.config.State.Path,
		Key:      l.config.State.Key,
		Address:  l.config.State.Address,
		Password: l.config.State.Password,
		DB:       l.config.State.DB,
	})
	l.platformComp = components.NewPlatformComponent(l.platformConfig())

	for _, comp := range []components.IComponent{l.storageComp, l.platformComp} {
		if err := l.registry.Register(comp); err != nil {
			return err
		}
	}
	if err := l.registry.InitializeAll(ctx); err != nil {
		_ = l.registry.CloseAll(ctx)
		return err
	}

	l.logger.Info("All components initialized", "store", l.storageComp.Store().Name())
	return nil
}

func (l *Loader) platformConfig() components.PlatformConfig {
	var pc components.PlatformConfig
	s := l.config.Channel.Settings

	switch l.config.Channel.Type {
	case targets.TypeDiscord:
		pc.Discord = &components.DiscordSettings{
			Token:      GetString(s, "token", ""),
			Timeout:    l.config.Timeouts.DeliveryTimeout(),
			MaxRetries: GetInt(s, "max_retries", 1),
		}
	case targets.TypeBluesky:
		pc.Bluesky = &components.BlueskySettings{
			Host:       GetString(s, "host", ""),
			Identifier: GetString(s, "identifier", ""),
			Password:   GetString(s, "password", ""),
		}
	}

	if l.config.Summary.Type == SummaryOllama {
		pc.Ollama = &components.OllamaSettings{
			Model:   l.config.Summary.Model,
			Host:    l.config.Summary.Host,
			Timeout: l.config.Timeouts.SummaryTimeout(),
		}
	}
	return pc
}

func (l *Loader) buildOrchestrator() (*core.Orchestrator, error) {
	cfg := l.config
	loc := cfg.Location()

	source, err := l.createSource()
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}

	filter, err := processors.NewFilter(cfg.Filter.TargetCodes, l.logger)
	if err != nil {
		return nil, err
	}

	archiver, err := archive.NewArchiver(archive.Config{
		Dir:         cfg.Archive.Dir,
		Prefix:      cfg.Archive.Prefix,
		Formats:     cfg.Archive.Formats,
		Columns:     cfg.Archive.Columns,
		WriteLatest: *cfg.Archive.WriteLatest,
		SiteURL:     cfg.Archive.SiteURL,
	}, l.logger)
	if err != nil {
		return nil, err
	}
	sweeper := archive.NewSweeper(cfg.Archive.Dir, cfg.Archive.Prefix, cfg.Archive.RetentionDays, loc, l.logger)

	summarizer, err := l.createSummarizer()
	if err != nil {
		return nil, fmt.Errorf("failed to create summarizer: %w", err)
	}

	notifier, err := l.createNotifier()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	builder := targets.NewMessageBuilder(targets.MessageConfig{
		Header:    cfg.Message.Header,
		Fields:    cfg.Message.Fields,
		Links:     cfg.Message.Links,
		Location:  loc,
		ZoneLabel: cfg.Bot.ZoneLabel,
	})

	dispatcher, err := dispatch.New(summarizer, notifier, dispatch.Options{
		SummaryTimeout:  cfg.Timeouts.SummaryTimeout(),
		DeliveryTimeout: cfg.Timeouts.DeliveryTimeout(),
		PerMinute:       cfg.Channel.PerMinute,
		Build:           builder.Build,
		Logger:          l.logger,
	})
	if err != nil {
		return nil, err
	}

	l.metrics = metrics.New(cfg.Bot.Name, cfg.Metrics.PushgatewayURL)

	return core.NewOrchestrator(core.Options{
		Source:        source,
		Filter:        filter,
		Identity:      identity.New(l.storageComp.Store(), l.logger),
		Archiver:      archiver,
		Sweeper:       sweeper,
		Dispatcher:    dispatcher,
		Metrics:       l.metrics,
		Location:      loc,
		FetchTimeout:  cfg.Timeouts.FetchTimeout(),
		CommitTimeout: cfg.Timeouts.CommitTimeout(),
		Logger:        l.logger,
	})
}

func (l *Loader) createSource() (types.Source, error) {
	cfg := l.config.Source
	s := cfg.Settings

	return sources.New(sources.Spec{
		Type:        cfg.Type,
		Name:        cfg.Name,
		URL:         cfg.URL,
		Timeout:     l.config.Timeouts.FetchTimeout(),
		Logger:      l.logger,
		IDField:     GetString(s, "id_field", GetString(s, "id_column", "")),
		CodeField:   GetString(s, "code_field", GetString(s, "code_column", "")),
		Selector:    GetString(s, "selector", ""),
		Feeds:       GetStringSlice(s, "feeds"),
		MaxItems:    GetInt(s, "max_items", 0),
		ScraperName: GetString(s, "scraper", ""),
		ScriptPath:  GetString(s, "script", ""),
		Config:      GetMap(s, "config"),
	})
}

func (l *Loader) createSummarizer() (types.Summarizer, error) {
	cfg := l.config.Summary

	switch cfg.Type {
	case SummaryOllama:
		return processors.NewOllamaSummarizer(cfg.Type, l.platformComp.Ollama(), l.logger)
	case SummaryOpenAI:
		return processors.NewOpenAISummarizer(cfg.Type, processors.OpenAIConfig{
			Model:   cfg.Model,
			Token:   cfg.Token,
			BaseURL: cfg.BaseURL,
		}, l.logger)
	default:
		return processors.NewFieldSummarizer(SummaryField, cfg.MaxChars), nil
	}
}

func (l *Loader) createNotifier() (types.Notifier, error) {
	cfg := l.config.Channel
	s := cfg.Settings

	var tmpl *template.Template
	if cfg.Template != "" {
		var err error
		tmpl, err = utils.LoadTemplate(cfg.Template)
		if err != nil {
			return nil, err
		}
	}

	return targets.NewNotifier(targets.ChannelSpec{
		Type:        cfg.Type,
		Name:        cfg.Name,
		Timeout:     l.config.Timeouts.DeliveryTimeout(),
		Template:    tmpl,
		Logger:      l.logger,
		WebhookURL:  GetString(s, "webhook_url", ""),
		Discord:     l.platformComp.Discord(),
		ChannelID:   GetString(s, "channel_id", ""),
		ChannelType: GetString(s, "channel_type", ""),
		Bluesky:     l.platformComp.Bluesky(),
		Languages:   GetStringSlice(s, "languages"),
	})
}

func statusOf(bot *core.Bot) server.StatusFunc {
	return func() server.Status {
		st := server.Status{Name: bot.Name()}
		if rep := bot.LastReport(); rep != nil {
			st.LastResult = rep.Result()
			st.LastRunAt = rep.FinishedAt
			if rep.Err != nil {
				st.LastError = rep.Err.Error()
			}
		}
		return st
	}
}

func (l *Loader) Shutdown(ctx context.Context) error {
	l.logger.Info("Shutting down components")
	return l.registry.CloseAll(ctx)
}

func (l *Loader) Metrics() *metrics.Metrics {
	return l.metrics
}

func LoadAndBuild(ctx context.Context, configPath string, logger *slog.Logger) (*core.Bot, error) {
	cfg, err := Load(configPath)
	if err != nil {
		return nil, err
	}
	return NewLoader(cfg, logger).Initialize(ctx)
}
