package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"forecastbot/internal/types"
	"forecastbot/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMessage() *types.Message {
	return &types.Message{
		OpportunityID: "F-1",
		Header:        "New Forecast Opportunity",
		Title:         "HR Consulting",
		Pulled:        "March 04, 2025 at 09:05 AM ET",
		Summary:       "USCIS needs HR consulting.",
		Fields:        []types.Field{{Label: "Organization", Value: "USCIS"}, {Label: "NAICS", Value: "541612"}},
		Links:         []types.Link{{Title: "Site", URL: "https://example.gov/"}},
	}
}

func TestTeamsPostsTextPayload(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("1"))
	}))
	defer srv.Close()

	target, err := New("teams", Config{WebhookURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	res, err := target.Notify(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "F-1", res.ItemID)

	text := got["text"]
	assert.Contains(t, text, "**New Forecast Opportunity**")
	assert.Contains(t, text, "March 04, 2025 at 09:05 AM ET")
	assert.Contains(t, text, "**Organization:** USCIS<br/>")
	assert.Contains(t, text, "[Site](https://example.gov/)")
}

func TestTeamsNon2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	target, err := New("teams", Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	res, err := target.Notify(context.Background(), testMessage())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Contains(t, err.Error(), "400")
}

func TestTeamsHonorsContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	target, err := New("teams", Config{WebhookURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = target.Notify(ctx, testMessage())
	require.Error(t, err)
}

func TestTeamsTemplate(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	tmpl, err := utils.ParseTemplate("teams", `{{ .Header }}: {{ truncate .Title 6 }}`)
	require.NoError(t, err)
	target, err := New("teams", Config{WebhookURL: srv.URL, Template: tmpl})
	require.NoError(t, err)

	_, err = target.Notify(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, "New Forecast Opportunity: HR ...", got["text"])
}

func TestTeamsLogsToInjectedLogger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	target, err := New("teams-hr", Config{WebhookURL: srv.URL, Logger: logger})
	require.NoError(t, err)

	_, err = target.Notify(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Posted notification to Teams")
	assert.Contains(t, buf.String(), "target=teams-hr")
	assert.Contains(t, buf.String(), "item_id=F-1")
}

func TestTeamsRequiresValidURL(t *testing.T) {
	_, err := New("teams", Config{})
	assert.True(t, types.IsConfigError(err))

	_, err = New("teams", Config{WebhookURL: "ftp://example.com"})
	assert.True(t, types.IsConfigError(err))
}
