package processors

import (
	"log/slog"
	"regexp"
	"strings"

	"forecastbot/internal/types"
	"forecastbot/internal/utils"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

var leadingNAICS = regexp.MustCompile(`^(\d{2,6})(?:$|[\s\-–—:|/])`)

// NormalizeCode maps the many spellings of a classification code that show up
// in source data ("541612", " 541612 ", "541612 - Human Resources Consulting
// Services", full-width digits) onto one comparable key.
func NormalizeCode(code string) string {
	s := norm.NFKC.String(code)
	s = width.Fold.String(s)
	s = cases.Fold().String(s)
	s = strings.Join(strings.Fields(s), " ")

	if m := leadingNAICS.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

type Filter struct {
	targets map[string]struct{}
	logger  *slog.Logger
}

// NewFilter refuses an empty target set: a bot with nothing to look for is misconfigured.
func NewFilter(codes []string, logger *slog.Logger) (*Filter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	targets := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		normalized := NormalizeCode(code)
		if normalized == "" {
			continue
		}
		targets[normalized] = struct{}{}
	}

	if len(targets) == 0 {
		return nil, types.NewConfigError("filter.target_codes", "at least one non-empty target code is required")
	}

	return &Filter{targets: targets, logger: logger}, nil
}

func (f *Filter) Targets() []string {
	out := make([]string, 0, len(f.targets))
	for code := range f.targets {
		out = append(out, code)
	}
	return out
}

func (f *Filter) Matches(opp *types.Opportunity) bool {
	_, ok := f.targets[NormalizeCode(opp.TargetCode)]
	return ok
}

// Apply returns the subsequence of batch whose target code is configured, preserving order.
func (f *Filter) Apply(batch []*types.Opportunity) []*types.Opportunity {
	filtered := utils.FilterArray(batch, f.Matches)
	f.logger.Info("Filter applied", "input", len(batch), "matched", len(filtered))
	return filtered
}
