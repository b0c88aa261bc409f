package sources

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"forecastbot/internal/lua"
	"forecastbot/internal/types"

	"github.com/PuerkitoBio/goquery"
)

// HTMLTableSource reads listings published as an HTML table, one row per
// opportunity, header cells naming the fields.
type HTMLTableSource struct {
	name       string
	url        string
	selector   string
	idColumn   string
	codeColumn string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTMLTableSource(spec Spec) (*HTMLTableSource, error) {
	if spec.URL == "" {
		return nil, types.NewConfigError("source.url", "html_table source requires a url")
	}
	if spec.CodeField == "" {
		return nil, types.NewConfigError("source.settings.code_column", "html_table source requires a code column")
	}
	selector := spec.Selector
	if selector == "" {
		selector = "table"
	}
	return &HTMLTableSource{
		name:       spec.Name,
		url:        spec.URL,
		selector:   selector,
		idColumn:   spec.IDField,
		codeColumn: spec.CodeField,
		httpClient: &http.Client{Timeout: spec.Timeout},
		logger:     spec.Logger,
	}, nil
}

func (h *HTMLTableSource) Name() string {
	return h.name
}

func (h *HTMLTableSource) Initialize(ctx context.Context) error {
	h.logger.Info("HTML table source initializing", "source", h.name, "url", h.url, "selector", h.selector)
	return nil
}

func (h *HTMLTableSource) Fetch(ctx context.Context) ([]*types.Opportunity, error) {
	body, err := fetchBody(ctx, h.httpClient, h.url, "text/html")
	if err != nil {
		return nil, err
	}
	return h.parse(body, time.Now())
}

func (h *HTMLTableSource) parse(body []byte, now time.Time) ([]*types.Opportunity, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	tbl := doc.Find(h.selector).First()
	if tbl.Length() == 0 {
		return nil, fmt.Errorf("no element matches %q", h.selector)
	}

	headers, rows := lua.TableRows(tbl)
	batch := make([]*types.Opportunity, 0, len(rows))
	for i, row := range rows {
		fields := make(map[string]string, len(headers))
		for j, cell := range row {
			if j < len(headers) {
				fields[headers[j]] = cell
			}
		}
		opp, err := newOpportunity(h.name, fields, h.idColumn, h.codeColumn, now)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		batch = append(batch, opp)
	}

	h.logger.Info("HTML table source fetched listings", "source", h.name, "count", len(batch))
	return batch, nil
}

func (h *HTMLTableSource) Shutdown(ctx context.Context) error {
	h.httpClient.CloseIdleConnections()
	return nil
}
