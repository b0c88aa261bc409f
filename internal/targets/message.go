package targets

import (
	"strings"
	"time"

	"forecastbot/internal/types"
)

const DefaultHeader = "New Forecast Opportunity"

// FieldSpec selects one opportunity field for the message body.
type FieldSpec struct {
	Label string `toml:"label"`
	Field string `toml:"field"`
}

// LinkSpec is a link shown under every message. "{date}" in URL is replaced
// with the run date.
type LinkSpec struct {
	Title string `toml:"title"`
	URL   string `toml:"url"`
}

var DefaultFields = []FieldSpec{
	{"Organization", "ORGANIZATION"},
	{"NAICS", "NAICS"},
	{"Est. Start", "ESTIMATED_PERIOD_OF_PERFORMANCE_START"},
	{"Dollar Range", "DOLLAR_RANGE"},
	{"Competitive", "COMPETITIVE"},
}

var DefaultLinks = []LinkSpec{
	{"Visit the APFS Forecast site", "https://apfs-cloud.dhs.gov/forecast/"},
}

type MessageConfig struct {
	Header    string
	Fields    []FieldSpec
	Links     []LinkSpec
	Location  *time.Location
	ZoneLabel string
}

type MessageBuilder struct {
	cfg MessageConfig
	now func() time.Time
}

func NewMessageBuilder(cfg MessageConfig) *MessageBuilder {
	if cfg.Header == "" {
		cfg.Header = DefaultHeader
	}
	if cfg.Fields == nil {
		cfg.Fields = DefaultFields
	}
	if cfg.Links == nil {
		cfg.Links = DefaultLinks
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ZoneLabel == "" {
		cfg.ZoneLabel = cfg.Location.String()
	}
	return &MessageBuilder{cfg: cfg, now: time.Now}
}

// WithClock pins the builder's notion of now, so a whole run shares one timestamp.
func (b *MessageBuilder) WithClock(now func() time.Time) *MessageBuilder {
	clone := *b
	clone.now = now
	return &clone
}

func (b *MessageBuilder) Build(opp *types.Opportunity, summary string) *types.Message {
	now := b.now().In(b.cfg.Location)

	msg := &types.Message{
		OpportunityID: opp.ID,
		Header:        b.cfg.Header,
		Title:         opp.Title(),
		Pulled:        now.Format("January 02, 2006 at 03:04 PM") + " " + b.cfg.ZoneLabel,
		Summary:       summary,
		Timestamp:     now,
	}

	for _, f := range b.cfg.Fields {
		value := opp.Field(f.Field)
		if value == "" && strings.EqualFold(f.Field, "NAICS") {
			value = opp.TargetCode
		}
		if value == "" {
			value = "N/A"
		}
		msg.Fields = append(msg.Fields, types.Field{Label: f.Label, Value: value})
	}

	date := now.Format("2006-01-02")
	for _, l := range b.cfg.Links {
		if l.URL == "" {
			continue
		}
		msg.Links = append(msg.Links, types.Link{
			Title: l.Title,
			URL:   strings.ReplaceAll(l.URL, "{date}", date),
		})
	}

	return msg
}
