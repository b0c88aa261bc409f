// Package discord posts opportunity announcements as Discord embeds.
package discord

import (
	"context"
	"fmt"
	"time"

	"forecastbot/internal/platforms"
	"forecastbot/internal/types"
	"forecastbot/internal/utils"

	"github.com/bwmarrin/discordgo"
)

const (
	ChannelText  = "text"
	ChannelForum = "forum"

	embedColor       = 0x2E7D32
	maxTitle         = 256
	maxThreadName    = 100
	maxDescription   = 4096
	maxFieldValue    = 1024
	autoArchiveHours = 1440
)

type Target struct {
	name        string
	platform    *platforms.DiscordPlatform
	channelID   string
	channelType string
}

func New(name string, platform *platforms.DiscordPlatform, channelID, channelType string) (*Target, error) {
	if platform == nil {
		return nil, fmt.Errorf("discord target %s: platform is required", name)
	}
	if channelID == "" {
		return nil, types.NewConfigError("channel.settings.channel_id", "discord channel id is required")
	}
	if channelType == "" {
		channelType = ChannelText
	}
	if channelType != ChannelText && channelType != ChannelForum {
		return nil, types.NewConfigError("channel.settings.channel_type", fmt.Sprintf("unsupported channel type %q", channelType))
	}
	return &Target{
		name:        name,
		platform:    platform,
		channelID:   channelID,
		channelType: channelType,
	}, nil
}

func (d *Target) Name() string {
	return d.name
}

func (d *Target) Notify(ctx context.Context, msg *types.Message) (*types.DeliveryResult, error) {
	session := d.platform.Session()
	if session == nil {
		return nil, fmt.Errorf("discord target %s: platform not initialized", d.name)
	}

	embed := BuildEmbed(msg)

	var messageID string
	var err error
	switch d.channelType {
	case ChannelForum:
		var thread *discordgo.Channel
		thread, err = session.ForumThreadStartEmbed(d.channelID, utils.Truncate(msg.Title, maxThreadName), autoArchiveHours, embed, discordgo.WithContext(ctx))
		if err == nil {
			messageID = thread.ID
		}
	default:
		var sent *discordgo.Message
		sent, err = session.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx))
		if err == nil {
			messageID = sent.ID
		}
	}

	if err != nil {
		err = fmt.Errorf("discord send to %s: %w", d.channelID, err)
		return &types.DeliveryResult{
			Success:   false,
			Target:    d.name,
			ItemID:    msg.OpportunityID,
			Timestamp: time.Now(),
			Error:     err,
		}, err
	}

	return &types.DeliveryResult{
		Success:   true,
		Target:    d.name,
		ItemID:    msg.OpportunityID,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"message_id": messageID,
			"channel_id": d.channelID,
		},
	}, nil
}

// BuildEmbed maps a message onto a single embed within Discord's size limits.
func BuildEmbed(msg *types.Message) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       utils.Truncate(msg.Title, maxTitle),
		Description: utils.Truncate(msg.Summary, maxDescription),
		Color:       embedColor,
		Author:      &discordgo.MessageEmbedAuthor{Name: msg.Header},
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.Format(time.RFC3339)
	}
	if len(msg.Links) > 0 {
		embed.URL = msg.Links[0].URL
	}

	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Label,
			Value:  utils.Truncate(f.Value, maxFieldValue),
			Inline: len(f.Value) <= 40,
		})
	}
	for _, l := range msg.Links {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  l.Title,
			Value: l.URL,
		})
	}

	if msg.Pulled != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Pulled " + msg.Pulled}
	}
	return embed
}
