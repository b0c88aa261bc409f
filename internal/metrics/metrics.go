// Package metrics exposes run counters on a per-bot Prometheus registry and
// optionally pushes them to a Pushgateway when a run ends.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "forecastbot"

const (
	StageFetched  = "fetched"
	StageFiltered = "filtered"
	StageNew      = "new"
	StageSeen     = "seen"

	OutcomeDelivered = "delivered"
	OutcomeDuplicate = "duplicate"
	OutcomeFailed    = "failed"

	ResultDone    = "done"
	ResultPartial = "partial"
	ResultFailed  = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	opportunities *prometheus.CounterVec
	notifications *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	lastSuccess   prometheus.Gauge
	swept         prometheus.Counter

	pushURL string
	job     string
}

func New(bot, pushURL string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	labels := prometheus.Labels{"bot": bot}

	return &Metrics{
		registry: reg,
		opportunities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "opportunities_total",
			Help:        "Opportunities seen by pipeline stage.",
			ConstLabels: labels,
		}, []string{"stage"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "notifications_total",
			Help:        "Notification attempts by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "runs_total",
			Help:        "Pipeline runs by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Wall time of a pipeline run.",
			ConstLabels: labels,
			Buckets:     []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_success_timestamp_seconds",
			Help:        "Unix time of the last run that committed its state.",
			ConstLabels: labels,
		}),
		swept: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "archive_swept_total",
			Help:        "Archive artifacts removed by retention.",
			ConstLabels: labels,
		}),
		pushURL: pushURL,
		job:     namespace + "_" + bot,
	}
}

// All methods are no-ops on a nil *Metrics.

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Opportunities(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.opportunities.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) Notifications(outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.notifications.WithLabelValues(outcome).Add(float64(n))
}

func (m *Metrics) Swept(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(float64(n))
}

func (m *Metrics) Run(result string, started, finished time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.runDuration.Observe(finished.Sub(started).Seconds())
	if result != ResultFailed {
		m.lastSuccess.Set(float64(finished.Unix()))
	}
}

// Push sends the registry to the configured Pushgateway. Without a URL it
// does nothing.
func (m *Metrics) Push(ctx context.Context) error {
	if m == nil || m.pushURL == "" {
		return nil
	}
	if err := push.New(m.pushURL, m.job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", m.pushURL, err)
	}
	return nil
}
