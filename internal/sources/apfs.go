package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"forecastbot/internal/types"
)

const DefaultAPFSURL = "https://apfs-cloud.dhs.gov/api/forecast/"

// APFSSource reads the DHS Acquisition Planning Forecast System JSON API: a
// single array of flat records, some fields being {display_name: ...} objects.
type APFSSource struct {
	name       string
	url        string
	idField    string
	codeField  string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

func NewAPFSSource(spec Spec) (*APFSSource, error) {
	u := spec.URL
	if u == "" {
		u = DefaultAPFSURL
	}
	if _, err := url.Parse(u); err != nil {
		return nil, types.NewConfigError("source.url", err.Error())
	}
	idField := spec.IDField
	if idField == "" {
		idField = "ID"
	}
	codeField := spec.CodeField
	if codeField == "" {
		codeField = "NAICS"
	}
	return &APFSSource{
		name:       spec.Name,
		url:        u,
		idField:    idField,
		codeField:  codeField,
		httpClient: &http.Client{Timeout: spec.Timeout},
		logger:     spec.Logger,
		now:        time.Now,
	}, nil
}

func (a *APFSSource) Name() string {
	return a.name
}

func (a *APFSSource) Initialize(ctx context.Context) error {
	a.logger.Info("APFS source initializing", "source", a.name, "url", a.url)
	return nil
}

func (a *APFSSource) Fetch(ctx context.Context) ([]*types.Opportunity, error) {
	now := a.now()

	// The API sits behind a cache; the timestamp query defeats it.
	u, _ := url.Parse(a.url)
	q := u.Query()
	q.Set("_", strconv.FormatInt(now.UnixMilli(), 10))
	u.RawQuery = q.Encode()

	body, err := fetchBody(ctx, a.httpClient, u.String(), "application/json")
	if err != nil {
		return nil, err
	}

	records, err := decodeRecords(body)
	if err != nil {
		return nil, err
	}

	batch := make([]*types.Opportunity, 0, len(records))
	for i, rec := range records {
		opp, err := newOpportunity(a.name, rec, a.idField, a.codeField, now)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		batch = append(batch, opp)
	}

	a.logger.Info("APFS source fetched listings", "source", a.name, "count", len(batch))
	return batch, nil
}

func (a *APFSSource) Shutdown(ctx context.Context) error {
	a.httpClient.CloseIdleConnections()
	return nil
}

func decodeRecords(body []byte) ([]map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode forecast listing: %w", err)
	}

	out := make([]map[string]string, 0, len(raw))
	for _, rec := range raw {
		fields := make(map[string]string, len(rec))
		for k, v := range rec {
			fields[strings.ToUpper(k)] = flatten(v)
		}
		out = append(out, fields)
	}
	return out, nil
}

// flatten renders one JSON value as a field string. Objects carrying a
// display_name collapse to it.
func flatten(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case map[string]any:
		if name, ok := x["display_name"]; ok {
			return flatten(name)
		}
		b, _ := json.Marshal(x)
		return string(b)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			if s := flatten(e); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprintf("%v", x)
	}
}
