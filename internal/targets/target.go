package targets

import (
	"fmt"
	"log/slog"
	"text/template"
	"time"

	"forecastbot/internal/platforms"
	blueskypkg "forecastbot/internal/targets/bluesky"
	discordpkg "forecastbot/internal/targets/discord"
	teamspkg "forecastbot/internal/targets/teams"
	"forecastbot/internal/types"
)

const (
	TypeTeams   = "teams"
	TypeDiscord = "discord"
	TypeBluesky = "bluesky"
)

// ChannelSpec carries everything any channel type may need; each type reads
// only its own fields.
type ChannelSpec struct {
	Type     string
	Name     string
	Timeout  time.Duration
	Template *template.Template
	Logger   *slog.Logger

	WebhookURL string

	Discord     *platforms.DiscordPlatform
	ChannelID   string
	ChannelType string

	Bluesky   *platforms.BlueskyPlatform
	Languages []string
}

func NewNotifier(spec ChannelSpec) (types.Notifier, error) {
	name := spec.Name
	if name == "" {
		name = spec.Type
	}

	switch spec.Type {
	case TypeTeams:
		return teamspkg.New(name, teamspkg.Config{
			WebhookURL: spec.WebhookURL,
			Timeout:    spec.Timeout,
			Template:   spec.Template,
			Logger:     spec.Logger,
		})
	case TypeDiscord:
		return discordpkg.New(name, spec.Discord, spec.ChannelID, spec.ChannelType)
	case TypeBluesky:
		return blueskypkg.New(name, spec.Bluesky, spec.Languages)
	default:
		return nil, types.NewConfigError("channel.type", fmt.Sprintf("unknown channel type %q", spec.Type))
	}
}
