package components

import (
	"context"
	"fmt"
	"time"

	"forecastbot/internal/platforms"
)

type DiscordSettings struct {
	Token      string
	Timeout    time.Duration
	MaxRetries int
}

type BlueskySettings struct {
	Host       string
	Identifier string
	Password   string
}

type OllamaSettings struct {
	Model   string
	Host    string
	Timeout time.Duration
}

// PlatformConfig enables a platform by setting its pointer.
type PlatformConfig struct {
	Discord *DiscordSettings
	Bluesky *BlueskySettings
	Ollama  *OllamaSettings
}

// PlatformComponent holds the authenticated clients shared by channels and
// summarizers.
type PlatformComponent struct {
	config  PlatformConfig
	discord *platforms.DiscordPlatform
	bluesky *platforms.BlueskyPlatform
	ollama  *platforms.OllamaPlatform
}

func NewPlatformComponent(config PlatformConfig) *PlatformComponent {
	return &PlatformComponent{config: config}
}

func (c *PlatformComponent) Name() string {
	return PlatformComponentName
}

func (c *PlatformComponent) Validate() error {
	if d := c.config.Discord; d != nil && d.Token == "" {
		return fmt.Errorf("discord platform requires a bot token")
	}
	if b := c.config.Bluesky; b != nil && (b.Identifier == "" || b.Password == "") {
		return fmt.Errorf("bluesky platform requires identifier and password")
	}
	if o := c.config.Ollama; o != nil && o.Model == "" {
		return fmt.Errorf("ollama platform requires a model")
	}
	return nil
}

func (c *PlatformComponent) Initialize(ctx context.Context) error {
	if d := c.config.Discord; d != nil {
		discord, err := platforms.NewDiscordPlatform(d.Token, d.Timeout, d.MaxRetries)
		if err != nil {
			return fmt.Errorf("failed to create discord platform: %w", err)
		}
		if err := discord.Initialize(ctx); err != nil {
			return fmt.Errorf("discord platform initialization failed: %w", err)
		}
		c.discord = discord
	}

	if b := c.config.Bluesky; b != nil {
		bluesky, err := platforms.NewBlueskyPlatform(b.Host, b.Identifier, b.Password)
		if err != nil {
			return fmt.Errorf("failed to create bluesky platform: %w", err)
		}
		if err := bluesky.Initialize(ctx); err != nil {
			return fmt.Errorf("bluesky platform initialization failed: %w", err)
		}
		c.bluesky = bluesky
	}

	if o := c.config.Ollama; o != nil {
		ollama, err := platforms.NewOllamaPlatform(o.Model, o.Host, o.Timeout)
		if err != nil {
			return fmt.Errorf("failed to create ollama platform: %w", err)
		}
		c.ollama = ollama
	}
	return nil
}

func (c *PlatformComponent) Close(ctx context.Context) error {
	if c.discord != nil {
		c.discord.Close(ctx)
	}
	if c.bluesky != nil {
		c.bluesky.Close(ctx)
	}
	return nil
}

func (c *PlatformComponent) Discord() *platforms.DiscordPlatform {
	return c.discord
}

func (c *PlatformComponent) Bluesky() *platforms.BlueskyPlatform {
	return c.bluesky
}

func (c *PlatformComponent) Ollama() *platforms.OllamaPlatform {
	return c.ollama
}
