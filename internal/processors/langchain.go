package processors

import (
	"context"
	"fmt"
	"log/slog"

	"forecastbot/internal/types"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

type LLMSummarizer struct {
	name   string
	model  llms.Model
	logger *slog.Logger
}

type OpenAIConfig struct {
	Model   string
	Token   string
	BaseURL string
}

func NewOpenAISummarizer(name string, cfg OpenAIConfig, logger *slog.Logger) (*LLMSummarizer, error) {
	opts := []openai.Option{}
	if cfg.Model != "" {
		opts = append(opts, openai.WithModel(cfg.Model))
	}
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("summary %s: failed to create openai client: %w", name, err)
	}
	return NewLLMSummarizer(name, llm, logger), nil
}

// NewLLMSummarizer wraps any langchaingo model.
func NewLLMSummarizer(name string, model llms.Model, logger *slog.Logger) *LLMSummarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMSummarizer{name: name, model: model, logger: logger}
}

func (s *LLMSummarizer) Name() string {
	return s.name
}

func (s *LLMSummarizer) Summarize(ctx context.Context, opp *types.Opportunity) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, s.model, buildPrompt(opp),
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(200),
	)
	if err != nil {
		return "", fmt.Errorf("llm generate: %w", err)
	}

	summary, err := cleanSummary(out)
	if err != nil {
		return "", err
	}
	s.logger.Debug("Generated summary", "summarizer", s.name, "item_id", opp.ID, "chars", len(summary))
	return summary, nil
}
