package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthReportsLastRun(t *testing.T) {
	s := New("apfs", ":0", nil, func() Status {
		return Status{Name: "apfs", LastResult: "partial"}
	}, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "apfs", st.Name)
	assert.Equal(t, "partial", st.LastResult)
	assert.False(t, st.Time.IsZero())
}

func TestHealthFailedRunIsUnavailable(t *testing.T) {
	s := New("apfs", ":0", nil, func() Status { return Status{LastResult: "failed"} }, nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "forecastbot_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	s := New("apfs", "127.0.0.1:0", reg, nil, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Shutdown(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "forecastbot_test_total 1")
}
