// Package teams posts messages to a Microsoft Teams incoming webhook.
package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"text/template"
	"time"

	"forecastbot/internal/types"
)

const (
	defaultTimeout = 15 * time.Second
	userAgent      = "forecastbot/1"
)

type Config struct {
	WebhookURL string
	Timeout    time.Duration
	Template   *template.Template
	Logger     *slog.Logger
}

type Target struct {
	name       string
	url        string
	template   *template.Template
	httpClient *http.Client
	logger     *slog.Logger
}

func New(name string, cfg Config) (*Target, error) {
	if cfg.WebhookURL == "" {
		return nil, types.NewConfigError("channel.webhook_url", "teams webhook URL is required (or set TEAMS_WEBHOOK_URL)")
	}
	u, err := url.Parse(cfg.WebhookURL)
	if err != nil {
		return nil, types.NewConfigError("channel.webhook_url", err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, types.NewConfigError("channel.webhook_url", fmt.Sprintf("must use http or https, got %q", u.Scheme))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Target{
		name:       name,
		url:        cfg.WebhookURL,
		template:   cfg.Template,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

func (t *Target) Name() string {
	return t.name
}

func (t *Target) Notify(ctx context.Context, msg *types.Message) (*types.DeliveryResult, error) {
	text, err := t.render(msg)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal teams payload: %w", err)
	}

	if err := t.post(ctx, body); err != nil {
		return &types.DeliveryResult{
			Success:   false,
			Target:    t.name,
			ItemID:    msg.OpportunityID,
			Timestamp: time.Now(),
			Error:     err,
		}, err
	}

	t.logger.Debug("Posted notification to Teams", "target", t.name, "item_id", msg.OpportunityID)
	return &types.DeliveryResult{
		Success:   true,
		Target:    t.name,
		ItemID:    msg.OpportunityID,
		Timestamp: time.Now(),
	}, nil
}

func (t *Target) render(msg *types.Message) (string, error) {
	if t.template == nil {
		return Markdown(msg), nil
	}
	var buf bytes.Buffer
	if err := t.template.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (t *Target) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("teams webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("teams webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Markdown renders msg in the subset of markdown Teams webhooks display.
func Markdown(msg *types.Message) string {
	var b strings.Builder
	b.WriteString("✅ **" + msg.Header + "**<br/>")
	if msg.Pulled != "" {
		b.WriteString(msg.Pulled + "<br/>")
	}
	b.WriteString("<br/>**" + msg.Title + "**<br/>")
	if msg.Summary != "" {
		b.WriteString(msg.Summary + "<br/>")
	}
	b.WriteString("<br/>")
	for _, f := range msg.Fields {
		b.WriteString("**" + f.Label + ":** " + f.Value + "<br/>")
	}
	if len(msg.Links) > 0 {
		parts := make([]string, 0, len(msg.Links))
		for _, l := range msg.Links {
			parts = append(parts, "["+l.Title+"]("+l.URL+")")
		}
		b.WriteString("<br/>" + strings.Join(parts, " | ") + "<br/>")
	}
	return b.String()
}
