package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"forecastbot/internal/archive"
	"forecastbot/internal/sources"
	"forecastbot/internal/storage"
	"forecastbot/internal/targets"
	"forecastbot/internal/types"

	"github.com/BurntSushi/toml"
)

const (
	SummaryField  = "field"
	SummaryOllama = "ollama"
	SummaryOpenAI = "openai"

	defaultTimezone = "America/New_York"
)

type Config struct {
	Bot      BotConfig      `toml:"bot"`
	Log      LogConfig      `toml:"log"`
	Filter   FilterConfig   `toml:"filter"`
	Source   SourceConfig   `toml:"source"`
	State    StateConfig    `toml:"state"`
	Archive  ArchiveConfig  `toml:"archive"`
	Summary  SummaryConfig  `toml:"summary"`
	Channel  ChannelConfig  `toml:"channel"`
	Message  MessageConfig  `toml:"message"`
	Timeouts TimeoutsConfig `toml:"timeouts"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type BotConfig struct {
	Name      string `toml:"name"`
	Interval  string `toml:"interval"`
	RunOnce   bool   `toml:"run_once"`
	Timezone  string `toml:"timezone"`
	ZoneLabel string `toml:"zone_label"`
}

type LogConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type FilterConfig struct {
	TargetCodes []string `toml:"target_codes"`
}

type SourceConfig struct {
	Type     string         `toml:"type"`
	Name     string         `toml:"name"`
	URL      string         `toml:"url"`
	Settings map[string]any `toml:"settings"`
}

type StateConfig struct {
	Type     string `toml:"type"`
	Path     string `toml:"path"`
	Key      string `toml:"key"`
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type ArchiveConfig struct {
	Dir           string           `toml:"dir"`
	Prefix        string           `toml:"prefix"`
	Formats       []string         `toml:"formats"`
	WriteLatest   *bool            `toml:"write_latest"`
	RetentionDays int              `toml:"retention_days"`
	SiteURL       string           `toml:"site_url"`
	Columns       []archive.Column `toml:"columns"`
}

type SummaryConfig struct {
	Type     string `toml:"type"`
	Model    string `toml:"model"`
	Host     string `toml:"host"`
	Token    string `toml:"token"`
	BaseURL  string `toml:"base_url"`
	MaxChars int    `toml:"max_chars"`
}

type ChannelConfig struct {
	Type      string         `toml:"type"`
	Name      string         `toml:"name"`
	PerMinute int            `toml:"per_minute"`
	Template  string         `toml:"template"`
	Settings  map[string]any `toml:"settings"`
}

type MessageConfig struct {
	Header string              `toml:"header"`
	Fields []targets.FieldSpec `toml:"fields"`
	Links  []targets.LinkSpec  `toml:"links"`
}

type TimeoutsConfig struct {
	Fetch    string `toml:"fetch"`
	Summary  string `toml:"summary"`
	Delivery string `toml:"delivery"`
	Commit   string `toml:"commit"`
}

type MetricsConfig struct {
	PushgatewayURL string `toml:"pushgateway_url"`
	Listen         string `toml:"listen"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes TOML, fills defaults, applies environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config.applyDefaults()
	config.applyEnv(os.LookupEnv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.Name == "" {
		c.Bot.Name = "forecastbot"
	}
	if c.Bot.Interval == "" {
		c.Bot.Interval = "1h"
	}
	if c.Bot.Timezone == "" {
		c.Bot.Timezone = defaultTimezone
	}
	if c.Bot.ZoneLabel == "" && c.Bot.Timezone == defaultTimezone {
		c.Bot.ZoneLabel = "ET"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 5
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 3
	}

	if c.Source.Type == "" {
		c.Source.Type = sources.TypeAPFS
	}
	if c.Source.Settings == nil {
		c.Source.Settings = map[string]any{}
	}

	if c.State.Type == "" {
		c.State.Type = "file"
	}
	if c.State.Type == "file" && c.State.Path == "" {
		c.State.Path = "seen_ids.json"
	}
	if c.State.Type == "sqlite" && c.State.Path == "" {
		c.State.Path = "forecastbot.db"
	}

	if c.Archive.Dir == "" {
		c.Archive.Dir = "archive"
	}
	if len(c.Archive.Formats) == 0 {
		c.Archive.Formats = []string{archive.FormatCSV}
	}
	if c.Archive.WriteLatest == nil {
		latest := true
		c.Archive.WriteLatest = &latest
	}
	if c.Archive.RetentionDays == 0 {
		c.Archive.RetentionDays = archive.DefaultRetentionDays
	}
	if len(c.Archive.Columns) == 0 && c.Source.Type == sources.TypeAPFS {
		c.Archive.Columns = archive.APFSColumns
	}

	if c.Summary.Type == "" {
		c.Summary.Type = SummaryField
	}

	if c.Channel.Name == "" {
		c.Channel.Name = c.Channel.Type
	}
	if c.Channel.PerMinute == 0 {
		c.Channel.PerMinute = 30
	}
	if c.Channel.Settings == nil {
		c.Channel.Settings = map[string]any{}
	}

	if c.Timeouts.Fetch == "" {
		c.Timeouts.Fetch = "2m"
	}
	if c.Timeouts.Summary == "" {
		c.Timeouts.Summary = "60s"
	}
	if c.Timeouts.Delivery == "" {
		c.Timeouts.Delivery = "15s"
	}
	if c.Timeouts.Commit == "" {
		c.Timeouts.Commit = "30s"
	}
}

// applyEnv lets secrets come from the environment instead of the file.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("TEAMS_WEBHOOK_URL"); ok && v != "" && c.Channel.Type == targets.TypeTeams {
		c.Channel.Settings["webhook_url"] = v
	}
	if v, ok := lookup("DISCORD_BOT_TOKEN"); ok && v != "" && c.Channel.Type == targets.TypeDiscord {
		c.Channel.Settings["token"] = v
	}
	if v, ok := lookup("BLUESKY_PASSWORD"); ok && v != "" && c.Channel.Type == targets.TypeBluesky {
		c.Channel.Settings["password"] = v
	}
	if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" && c.Summary.Token == "" {
		c.Summary.Token = v
	}
	if v, ok := lookup("FORECASTBOT_REDIS_PASSWORD"); ok && v != "" {
		c.State.Password = v
	}
}

func (c *Config) Validate() error {
	for field, value := range map[string]string{
		"bot.interval":      c.Bot.Interval,
		"timeouts.fetch":    c.Timeouts.Fetch,
		"timeouts.summary":  c.Timeouts.Summary,
		"timeouts.delivery": c.Timeouts.Delivery,
		"timeouts.commit":   c.Timeouts.Commit,
	} {
		d, err := time.ParseDuration(value)
		if err != nil || d <= 0 {
			return types.NewConfigError(field, fmt.Sprintf("invalid duration %q", value))
		}
	}
	if _, err := time.LoadLocation(c.Bot.Timezone); err != nil {
		return types.NewConfigError("bot.timezone", err.Error())
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return types.NewConfigError("log.level", fmt.Sprintf("unknown level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return types.NewConfigError("log.format", fmt.Sprintf("must be text or json, got %q", c.Log.Format))
	}

	codes := 0
	for _, code := range c.Filter.TargetCodes {
		if strings.TrimSpace(code) != "" {
			codes++
		}
	}
	if codes == 0 {
		return types.NewConfigError("filter.target_codes", "at least one target code is required")
	}

	if !slices.Contains([]string{sources.TypeAPFS, sources.TypeHTMLTable, sources.TypeRSS, sources.TypeScraper}, c.Source.Type) {
		return types.NewConfigError("source.type", fmt.Sprintf("unknown source type %q", c.Source.Type))
	}

	if !slices.Contains(storage.Types(), c.State.Type) {
		return types.NewConfigError("state.type", fmt.Sprintf("unknown state backend %q, have %v", c.State.Type, storage.Types()))
	}

	if c.Archive.RetentionDays < 0 {
		return types.NewConfigError("archive.retention_days", "must not be negative")
	}
	for _, f := range c.Archive.Formats {
		if f != archive.FormatCSV && f != archive.FormatAtom {
			return types.NewConfigError("archive.formats", fmt.Sprintf("unsupported format %q", f))
		}
	}

	switch c.Summary.Type {
	case SummaryField:
	case SummaryOllama:
		if c.Summary.Model == "" {
			return types.NewConfigError("summary.model", "ollama summaries need a model")
		}
	case SummaryOpenAI:
		if c.Summary.Token == "" {
			return types.NewConfigError("summary.token", "openai summaries need a token or OPENAI_API_KEY")
		}
	default:
		return types.NewConfigError("summary.type", fmt.Sprintf("unknown summarizer %q", c.Summary.Type))
	}

	return c.validateChannel()
}

func (c *Config) validateChannel() error {
	s := c.Channel.Settings
	switch c.Channel.Type {
	case targets.TypeTeams:
		if GetString(s, "webhook_url", "") == "" {
			return types.NewConfigError("channel.settings.webhook_url", "required for teams (or set TEAMS_WEBHOOK_URL)")
		}
	case targets.TypeDiscord:
		if GetString(s, "token", "") == "" {
			return types.NewConfigError("channel.settings.token", "required for discord (or set DISCORD_BOT_TOKEN)")
		}
		if GetString(s, "channel_id", "") == "" {
			return types.NewConfigError("channel.settings.channel_id", "required for discord")
		}
	case targets.TypeBluesky:
		if GetString(s, "identifier", "") == "" {
			return types.NewConfigError("channel.settings.identifier", "required for bluesky")
		}
		if GetString(s, "password", "") == "" {
			return types.NewConfigError("channel.settings.password", "required for bluesky (or set BLUESKY_PASSWORD)")
		}
	case "":
		return types.NewConfigError("channel.type", "a notification channel is required")
	default:
		return types.NewConfigError("channel.type", fmt.Sprintf("unknown channel type %q", c.Channel.Type))
	}
	return nil
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Bot.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func mustDuration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func (t TimeoutsConfig) FetchTimeout() time.Duration    { return mustDuration(t.Fetch) }
func (t TimeoutsConfig) SummaryTimeout() time.Duration  { return mustDuration(t.Summary) }
func (t TimeoutsConfig) DeliveryTimeout() time.Duration { return mustDuration(t.Delivery) }
func (t TimeoutsConfig) CommitTimeout() time.Duration   { return mustDuration(t.Commit) }

func (b BotConfig) IntervalDuration() time.Duration { return mustDuration(b.Interval) }

func GetString(settings map[string]any, key string, defaultValue string) string {
	if val, ok := settings[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return defaultValue
}

func GetInt(settings map[string]any, key string, defaultValue int) int {
	if val, ok := settings[key]; ok {
		if i, ok := val.(int64); ok {
			return int(i)
		}
		if i, ok := val.(int); ok {
			return i
		}
	}
	return defaultValue
}

func GetBool(settings map[string]any, key string, defaultValue bool) bool {
	if val, ok := settings[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return defaultValue
}

func GetStringSlice(settings map[string]any, key string) []string {
	if val, ok := settings[key]; ok {
		if arr, ok := val.([]any); ok {
			result := make([]string, 0, len(arr))
			for _, item := range arr {
				if str, ok := item.(string); ok {
					result = append(result, str)
				}
			}
			return result
		}
	}
	return []string{}
}

func GetMap(settings map[string]any, key string) map[string]any {
	if val, ok := settings[key]; ok {
		if m, ok := val.(map[string]any); ok {
			return m
		}
	}
	return map[string]any{}
}

func GetDuration(settings map[string]any, key string, defaultValue time.Duration) time.Duration {
	if val, ok := settings[key]; ok {
		if str, ok := val.(string); ok {
			if d, err := time.ParseDuration(str); err == nil {
				return d
			}
		}
	}
	return defaultValue
}
