package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New("apfs", "")

	m.Opportunities(StageFetched, 10)
	m.Opportunities(StageFiltered, 3)
	m.Opportunities(StageNew, 0)
	m.Notifications(OutcomeDelivered, 2)
	m.Notifications(OutcomeFailed, 1)
	m.Swept(4)

	start := time.Unix(1_700_000_000, 0)
	m.Run(ResultPartial, start, start.Add(2*time.Second))

	assert.Equal(t, 10.0, testutil.ToFloat64(m.opportunities.WithLabelValues(StageFetched)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.opportunities.WithLabelValues(StageFiltered)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.opportunities.WithLabelValues(StageNew)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.notifications.WithLabelValues(OutcomeDelivered)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.swept))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(ResultPartial)))
	assert.Equal(t, float64(start.Add(2*time.Second).Unix()), testutil.ToFloat64(m.lastSuccess))
}

func TestFailedRunKeepsLastSuccess(t *testing.T) {
	m := New("apfs", "")
	start := time.Unix(1_700_000_000, 0)

	m.Run(ResultDone, start, start)
	m.Run(ResultFailed, start.Add(time.Hour), start.Add(time.Hour))

	assert.Equal(t, float64(start.Unix()), testutil.ToFloat64(m.lastSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(ResultFailed)))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Opportunities(StageFetched, 1)
	m.Notifications(OutcomeDelivered, 1)
	m.Run(ResultDone, time.Now(), time.Now())
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.Push(context.Background()))
}

func TestPush(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New("apfs", srv.URL)
	m.Opportunities(StageFetched, 1)

	require.NoError(t, m.Push(context.Background()))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/forecastbot_apfs", gotPath)
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New("apfs", srv.URL).Push(context.Background())
	require.Error(t, err)
}
