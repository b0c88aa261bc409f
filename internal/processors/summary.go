package processors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"forecastbot/internal/platforms"
	"forecastbot/internal/types"
	"forecastbot/internal/utils"

	"github.com/ollama/ollama/api"
)

const maxSummaryRunes = 600

var descriptionFields = []string{"REQUIREMENT", "DESCRIPTION", "SUMMARY"}

func description(opp *types.Opportunity) string {
	for _, key := range descriptionFields {
		if v := utils.StripHTML(opp.Field(key)); v != "" {
			return v
		}
	}
	return ""
}

func buildPrompt(opp *types.Opportunity) string {
	var b strings.Builder
	b.WriteString("You summarize U.S. government contract forecast listings for a business development team. ")
	b.WriteString("Reply with two sentences at most: what is being bought and who is buying it. No preamble.\n\n")
	fmt.Fprintf(&b, "Title: %s\n", opp.Title())
	if org := opp.Field("ORGANIZATION"); org != "" {
		fmt.Fprintf(&b, "Agency: %s\n", org)
	}
	fmt.Fprintf(&b, "NAICS: %s\n", opp.TargetCode)
	if dr := opp.Field("DOLLAR_RANGE"); dr != "" {
		fmt.Fprintf(&b, "Dollar range: %s\n", dr)
	}
	fmt.Fprintf(&b, "Requirement:\n\"\"\"\n%s\n\"\"\"\n", utils.Truncate(description(opp), 4000))
	return b.String()
}

func cleanSummary(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}
	return utils.Truncate(s, maxSummaryRunes), nil
}

type OllamaSummarizer struct {
	name   string
	ollama *platforms.OllamaPlatform
	logger *slog.Logger
}

func NewOllamaSummarizer(name string, ollama *platforms.OllamaPlatform, logger *slog.Logger) (*OllamaSummarizer, error) {
	if ollama == nil {
		return nil, fmt.Errorf("summary %s: ollama platform cannot be nil", name)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaSummarizer{name: name, ollama: ollama, logger: logger}, nil
}

func (s *OllamaSummarizer) Name() string {
	return s.name
}

func (s *OllamaSummarizer) Summarize(ctx context.Context, opp *types.Opportunity) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Prompt: buildPrompt(opp),
		Stream: &stream,
	}

	var out strings.Builder
	respFunc := func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	}

	if err := s.ollama.Generate(ctx, req, respFunc); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	summary, err := cleanSummary(out.String())
	if err != nil {
		return "", err
	}
	s.logger.Debug("Generated summary", "summarizer", s.name, "item_id", opp.ID, "chars", len(summary))
	return summary, nil
}

// FieldSummarizer uses the listing's own requirement text. It never fails, so
// items are not held back when no model is configured.
type FieldSummarizer struct {
	name  string
	limit int
}

func NewFieldSummarizer(name string, limit int) *FieldSummarizer {
	if limit <= 0 {
		limit = maxSummaryRunes
	}
	return &FieldSummarizer{name: name, limit: limit}
}

func (s *FieldSummarizer) Name() string {
	return s.name
}

func (s *FieldSummarizer) Summarize(ctx context.Context, opp *types.Opportunity) (string, error) {
	text := description(opp)
	if text == "" {
		return "No description provided.", nil
	}
	return utils.Truncate(text, s.limit), nil
}
