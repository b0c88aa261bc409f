package platforms

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
)

const discordUserAgent = "forecastbot (https://github.com/forecastbot, 1.0)"

// DiscordPlatform holds a REST-only discordgo session. The gateway is never
// opened.
type DiscordPlatform struct {
	botToken   string
	timeout    time.Duration
	maxRetries int
	session    *discordgo.Session
}

func NewDiscordPlatform(botToken string, timeout time.Duration, maxRetries int) (*DiscordPlatform, error) {
	if botToken == "" {
		return nil, fmt.Errorf("discord platform: bot token is required (or set DISCORD_BOT_TOKEN)")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &DiscordPlatform{botToken: botToken, timeout: timeout, maxRetries: maxRetries}, nil
}

func (p *DiscordPlatform) Initialize(ctx context.Context) error {
	session, err := discordgo.New("Bot " + p.botToken)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Client = &http.Client{Timeout: p.timeout}
	session.UserAgent = discordUserAgent
	session.MaxRestRetries = p.maxRetries
	// A 429 surfaces as a failed item; pacing belongs to the dispatcher.
	session.ShouldRetryOnRateLimit = false
	p.session = session
	return nil
}

func (p *DiscordPlatform) Close(ctx context.Context) error {
	p.session = nil
	return nil
}

func (p *DiscordPlatform) Session() *discordgo.Session {
	return p.session
}
