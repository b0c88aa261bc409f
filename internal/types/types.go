package types

import (
	"context"
	"strings"
	"time"
)

type Opportunity struct {
	ID         string
	TargetCode string
	Source     string
	Fields     map[string]string
	FetchedAt  time.Time
}

func (o *Opportunity) Field(key string) string {
	if o.Fields == nil {
		return ""
	}
	return o.Fields[strings.ToUpper(key)]
}

func (o *Opportunity) SetField(key, value string) {
	if o.Fields == nil {
		o.Fields = make(map[string]string)
	}
	o.Fields[strings.ToUpper(key)] = value
}

// Title returns the best available human-readable name for the opportunity.
func (o *Opportunity) Title() string {
	for _, key := range []string{"REQUIREMENTS_TITLE", "TITLE", "NAME"} {
		if v := strings.TrimSpace(o.Field(key)); v != "" {
			return v
		}
	}
	return o.ID
}

func IDs(batch []*Opportunity) []string {
	ids := make([]string, 0, len(batch))
	for _, opp := range batch {
		ids = append(ids, opp.ID)
	}
	return ids
}

type Field struct {
	Label string
	Value string
}

type Link struct {
	Title string
	URL   string
}

// Message is a channel-agnostic rendering of one opportunity announcement.
type Message struct {
	OpportunityID string
	Header        string
	Title         string
	Pulled        string
	Summary       string
	Fields        []Field
	Links         []Link
	Timestamp     time.Time
}

type DeliveryResult struct {
	Success   bool
	Target    string
	ItemID    string
	Timestamp time.Time
	Error     error
	Metadata  map[string]any
}

type Source interface {
	Name() string
	Initialize(ctx context.Context) error
	Fetch(ctx context.Context) ([]*Opportunity, error)
	Shutdown(ctx context.Context) error
}

type Summarizer interface {
	Name() string
	Summarize(ctx context.Context, opp *Opportunity) (string, error)
}

type Notifier interface {
	Name() string
	Notify(ctx context.Context, msg *Message) (*DeliveryResult, error)
}

// Membership is the read-only view of the identity set used for deduplication.
type Membership interface {
	Contains(id string) bool
}
